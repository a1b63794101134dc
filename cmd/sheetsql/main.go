// Command sheetsql converts XLSX worksheets into SQLite tables and views
// driven by an INI configuration file.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/sheetsql/sheetsql"
	"github.com/sheetsql/sheetsql/internal/logging"
)

const version = "1.0.0"

// CLI defines the command-line interface for sheetsql.
var CLI struct {
	Config  string `name:"config" short:"c" default:"config.ini" help:"Path to the INI configuration file" type:"path"`
	Verbose bool   `name:"verbose" short:"v" help:"Enable debug logging"`

	InitializeDB InitializeDBCmd `cmd:"" name:"initialize-db" help:"Create and populate one table per configured worksheet"`
	Update       UpdateCmd       `cmd:"" help:"Re-import a worksheet and replace its rows keyed on the primary key"`
	DropTables   DropTablesCmd   `cmd:"" name:"drop-tables" help:"Drop all configured tables"`
	CreateViews  CreateViewsCmd  `cmd:"" name:"create-views" help:"Create views from the configured SQL files"`
	DropViews    DropViewsCmd    `cmd:"" name:"drop-views" help:"Drop the configured views"`
	ExportView   ExportViewCmd   `cmd:"" name:"export-view" help:"Export a view to a tabular file"`
	ListDef      ListDefCmd      `cmd:"" name:"list-def" help:"List tables and views defined in the database"`
	Dump         DumpCmd         `cmd:"" help:"Write the database as SQL text"`
	Version      VersionCmd      `cmd:"" help:"Print version information"`
}

// withController loads the configuration, opens the database session and
// hands a ready controller to fn. The session is closed on return.
func withController(fn func(ctx context.Context, c *sheetsql.Controller) error) error {
	config, err := sheetsql.LoadConfig(CLI.Config)
	if err != nil {
		return err
	}
	session, err := sheetsql.NewSession(config.DBPath)
	if err != nil {
		return err
	}
	controller := sheetsql.NewController(config, session, logging.GetLogger())
	defer func() {
		_ = controller.Close()
	}()
	return fn(context.Background(), controller)
}

// confirm asks the user before a destructive operation. force bypasses the
// prompt.
func confirm(prompt string, force bool) bool {
	if force {
		return true
	}
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// InitializeDBCmd creates and populates the configured tables.
type InitializeDBCmd struct{}

func (c *InitializeDBCmd) Run() error {
	return withController(func(ctx context.Context, ctrl *sheetsql.Controller) error {
		if err := ctrl.InitializeDB(ctx); err != nil {
			return err
		}
		fmt.Println("Created database tables.")
		return nil
	})
}

// UpdateCmd replaces the rows of one table from its worksheet.
type UpdateCmd struct {
	TableName string `arg:"" help:"Configured worksheet name to re-import"`
}

func (c *UpdateCmd) Run() error {
	return withController(func(ctx context.Context, ctrl *sheetsql.Controller) error {
		if err := ctrl.InsertOrReplace(ctx, c.TableName); err != nil {
			return err
		}
		fmt.Printf("Updated table %s.\n", c.TableName)
		return nil
	})
}

// DropTablesCmd drops every configured table.
type DropTablesCmd struct {
	Force bool `help:"Skip the confirmation prompt"`
}

func (c *DropTablesCmd) Run() error {
	if !confirm("Drop all configured tables?", c.Force) {
		fmt.Println("Aborted.")
		return nil
	}
	return withController(func(ctx context.Context, ctrl *sheetsql.Controller) error {
		if err := ctrl.DropTables(ctx); err != nil {
			return err
		}
		fmt.Println("Dropped tables.")
		return nil
	})
}

// CreateViewsCmd creates one view per SQL file in the views directory.
type CreateViewsCmd struct{}

func (c *CreateViewsCmd) Run() error {
	return withController(func(ctx context.Context, ctrl *sheetsql.Controller) error {
		if err := ctrl.CreateViews(ctx); err != nil {
			return err
		}
		fmt.Println("Created views.")
		return nil
	})
}

// DropViewsCmd drops the configured views.
type DropViewsCmd struct {
	Force bool `help:"Skip the confirmation prompt"`
}

func (c *DropViewsCmd) Run() error {
	if !confirm("Drop all configured views?", c.Force) {
		fmt.Println("Aborted.")
		return nil
	}
	return withController(func(ctx context.Context, ctrl *sheetsql.Controller) error {
		if err := ctrl.DropViews(ctx); err != nil {
			return err
		}
		fmt.Println("Dropped views.")
		return nil
	})
}

// ExportViewCmd exports a view (or table) to a file.
type ExportViewCmd struct {
	Name   string `arg:"" help:"View or table name to export"`
	Format string `name:"format" short:"f" default:"csv" help:"Output format: csv, tsv, json, yaml, xlsx, parquet"`
	Output string `name:"output" short:"o" help:"Output file path (default: <name>.<format>)"`
}

func (c *ExportViewCmd) Run() error {
	format, err := sheetsql.ParseExportFormat(c.Format)
	if err != nil {
		return err
	}
	output := c.Output
	if output == "" {
		output = c.Name + format.Extension()
	}
	return withController(func(ctx context.Context, ctrl *sheetsql.Controller) error {
		if err := ctrl.ExportView(ctx, c.Name, format, output); err != nil {
			return err
		}
		fmt.Printf("Exported %s to %s.\n", c.Name, output)
		return nil
	})
}

// ListDefCmd lists tables and views from the database catalog.
type ListDefCmd struct {
	Kind string `arg:"" optional:"" default:"all" enum:"table,view,all" help:"Entity kind to list"`
}

func (c *ListDefCmd) Run() error {
	return withController(func(ctx context.Context, ctrl *sheetsql.Controller) error {
		entities, err := ctrl.ListEntities(ctx, c.Kind)
		if err != nil {
			return err
		}
		if len(entities) == 0 {
			fmt.Println("No entities found.")
			return nil
		}
		for _, e := range entities {
			fmt.Printf("%s\t%s\n", e.Type, e.Name)
		}
		return nil
	})
}

// DumpCmd writes the whole database as replayable SQL.
type DumpCmd struct {
	Output string `name:"output" short:"o" help:"Output file path (default: stdout)"`
}

func (c *DumpCmd) Run() error {
	return withController(func(ctx context.Context, ctrl *sheetsql.Controller) error {
		out := os.Stdout
		if c.Output != "" {
			f, err := os.Create(c.Output)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer func() {
				_ = f.Close()
			}()
			out = f
		}
		return ctrl.DumpDatabase(ctx, out)
	})
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("sheetsql version %s\n", version)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("sheetsql"),
		kong.Description("Convert XLSX worksheets into SQLite tables and views"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	level := slog.LevelInfo
	if CLI.Verbose {
		level = slog.LevelDebug
	}
	logging.InitLogger(level, logging.FormatText)

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
