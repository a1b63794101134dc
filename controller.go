package sheetsql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Controller sequences a run: load config, read worksheets into datasets,
// build schemas, render SQL and apply it on the session. Datasets are cached
// by worksheet name so a table is read from the workbook at most once per
// invocation.
type Controller struct {
	config     *Config
	session    *Session
	collection map[string]*Dataset
	logger     *slog.Logger
}

// NewController creates a controller over an open session. Statement events
// are forwarded to the logger and, when the config declares a log file,
// appended there as well.
func NewController(config *Config, session *Session, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		config:     config,
		session:    session,
		collection: make(map[string]*Dataset),
		logger:     logger,
	}
	session.Observe(c.observeStatement)
	return c
}

// observeStatement is the audit sink for executed statements.
func (c *Controller) observeStatement(event StatementEvent) {
	if event.Err != nil {
		c.logger.Error("statement failed", "sql", event.SQL, "error", event.Err)
	} else {
		c.logger.Debug("statement executed", "sql", event.SQL, "rows", event.Rows)
	}
	if c.config.LogPath == "" {
		return
	}
	f, err := os.OpenFile(c.config.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer func() {
		_ = f.Close()
	}()
	line := event.SQL
	if event.Err != nil {
		line += " -- error: " + event.Err.Error()
	}
	_, _ = fmt.Fprintln(f, line)
}

// Has reports whether a worksheet has already been loaded into the
// collection.
func (c *Controller) Has(worksheet string) bool {
	_, ok := c.collection[worksheet]
	return ok
}

// Get returns the cached dataset for a worksheet.
func (c *Controller) Get(worksheet string) (*Dataset, bool) {
	d, ok := c.collection[worksheet]
	return d, ok
}

// importTable loads a worksheet into the collection, or returns the cached
// dataset from an earlier import. The configured column subset is applied on
// load; extraColumns are kept in addition to the subset when the worksheet
// carries them, so an upsert can retain the table's key column even if the
// subset omits it.
func (c *Controller) importTable(worksheet string, extraColumns ...string) (*Dataset, Model, error) {
	model, err := c.config.GetModel(worksheet)
	if err != nil {
		return nil, Model{}, err
	}
	if dataset, ok := c.collection[worksheet]; ok {
		return dataset, model, nil
	}

	dataset, err := ReadWorksheet(c.config.WorkbookPath, worksheet, model.HeaderRow)
	if err != nil {
		return nil, Model{}, err
	}
	if len(model.Columns) > 0 {
		columns := slices.Clone(model.Columns)
		for _, extra := range extraColumns {
			if dataset.HasColumn(extra) && !slices.Contains(columns, extra) {
				columns = append(columns, extra)
			}
		}
		dataset, err = dataset.Subset(columns)
		if err != nil {
			return nil, Model{}, err
		}
	}
	c.collection[worksheet] = dataset
	return dataset, model, nil
}

// buildSchema resolves the schema definition for a loaded worksheet.
func (c *Controller) buildSchema(dataset *Dataset, model Model) (*Schema, error) {
	firstRow, err := dataset.FirstRow()
	if err != nil {
		return nil, err
	}
	return BuildSchema(model.DBTableName, dataset.Headers(), firstRow, model)
}

// insertRows converts dataset rows into statement argument rows, one per
// data column of the schema.
func insertRows(dataset *Dataset, columns int) [][]any {
	rows := make([][]any, dataset.Len())
	for i, record := range dataset.Rows() {
		args := make([]any, columns)
		for j := 0; j < columns && j < len(record); j++ {
			args[j] = record[j]
		}
		rows[i] = args
	}
	return rows
}

// InitializeDB creates one table per configured worksheet and populates it
// with the worksheet's rows. A schema failure on one table is reported and
// does not abort the remaining tables.
func (c *Controller) InitializeDB(ctx context.Context) error {
	var errs []error
	for _, worksheet := range c.config.TableNames() {
		if err := c.initializeTable(ctx, worksheet); err != nil {
			c.logger.Error("table initialization failed", "worksheet", worksheet, "error", err)
			errs = append(errs, NewErrorContext("initialize").WithTable(worksheet).Error(err))
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) initializeTable(ctx context.Context, worksheet string) error {
	dataset, model, err := c.importTable(worksheet)
	if err != nil {
		return err
	}
	schema, err := c.buildSchema(dataset, model)
	if err != nil {
		return err
	}

	insertSQL, columns := InsertSQL(schema)
	return c.session.Apply(ctx, func(tx *Tx) error {
		if err := tx.Exec(CreateTableSQL(schema)); err != nil {
			return err
		}
		return tx.ExecMany(insertSQL, insertRows(dataset, columns))
	})
}

// InsertOrReplace re-imports a worksheet and REPLACEs its rows into the
// existing table, keyed on the table's primary key as probed from the
// database.
//
// The operation aborts without row changes when the target table does not
// exist or when the probed key column is absent from the newly supplied
// data. A synthesized key is never present in worksheet data, so a table
// created without a declared key cannot be upserted.
func (c *Controller) InsertOrReplace(ctx context.Context, worksheet string) error {
	if !c.config.HasTable(worksheet) {
		return fmt.Errorf("%w: %s", ErrTableNotFound, worksheet)
	}
	dbTable := c.config.DBTableName(worksheet)
	keyColumn, err := c.primaryKeyColumn(ctx, dbTable)
	if err != nil {
		return err
	}

	dataset, model, err := c.importTable(worksheet, keyColumn)
	if err != nil {
		return err
	}
	if keyColumn != "" && !dataset.HasColumn(keyColumn) {
		return fmt.Errorf("%w: column %q is missing from the new data for %s",
			ErrMissingPrimaryKey, keyColumn, dbTable)
	}

	schema, err := c.buildSchema(dataset, model)
	if err != nil {
		return err
	}
	replaceSQL, columns, err := ReplaceSQL(schema)
	if err != nil {
		return err
	}
	return c.session.Apply(ctx, func(tx *Tx) error {
		return tx.ExecMany(replaceSQL, insertRows(dataset, columns))
	})
}

// primaryKeyColumn probes PRAGMA table_info for the table's primary key
// column name. It returns ErrTableNotFound when the table has no columns,
// and "" when the table exists but declares no explicit key.
func (c *Controller) primaryKeyColumn(ctx context.Context, table string) (string, error) {
	keyColumn := ""
	found := false
	err := c.session.Apply(ctx, func(tx *Tx) error {
		rows, err := tx.Query(TableInfoSQL(table))
		if err != nil {
			return err
		}
		defer func() {
			_ = rows.Close()
		}()
		for rows.Next() {
			var (
				cid, notNull, pk int
				name, colType    string
				dflt             sql.NullString
			)
			if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
				return err
			}
			found = true
			if pk > 0 && keyColumn == "" {
				keyColumn = name
			}
		}
		return rows.Err()
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return keyColumn, nil
}

// DropTables drops every configured table. A failure on one table is
// reported and the batch continues.
func (c *Controller) DropTables(ctx context.Context) error {
	var errs []error
	for _, worksheet := range c.config.TableNames() {
		if err := c.DropTable(ctx, worksheet); err != nil {
			c.logger.Error("drop failed", "worksheet", worksheet, "error", err)
			errs = append(errs, NewErrorContext("drop").WithTable(worksheet).Error(err))
		}
	}
	return errors.Join(errs...)
}

// DropTable drops the database table backing one worksheet.
func (c *Controller) DropTable(ctx context.Context, worksheet string) error {
	sqlText, err := DropEntitySQL(c.config.DBTableName(worksheet), EntityTable)
	if err != nil {
		return err
	}
	return c.session.Apply(ctx, func(tx *Tx) error {
		return tx.Exec(sqlText)
	})
}

// viewFiles lists the *.sql files under the configured views directory.
// Each file's stem is the view name and its content the SELECT body.
func (c *Controller) viewFiles() ([]string, error) {
	if c.config.ViewsPath == "" {
		return nil, nil
	}
	var files []string
	err := filepath.WalkDir(c.config.ViewsPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".sql") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list view files: %w", err)
	}
	return files, nil
}

// CreateViews creates one view per *.sql file in the views directory.
func (c *Controller) CreateViews(ctx context.Context) error {
	files, err := c.viewFiles()
	if err != nil {
		return err
	}
	return c.session.Apply(ctx, func(tx *Tx) error {
		for _, path := range files {
			body, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read view file %s: %w", path, err)
			}
			name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			if err := tx.Exec(CreateViewSQL(name, string(body))); err != nil {
				return err
			}
		}
		return nil
	})
}

// DropViews drops every view declared by the views directory.
func (c *Controller) DropViews(ctx context.Context) error {
	files, err := c.viewFiles()
	if err != nil {
		return err
	}
	return c.session.Apply(ctx, func(tx *Tx) error {
		for _, path := range files {
			name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			sqlText, err := DropEntitySQL(name, EntityView)
			if err != nil {
				return err
			}
			if err := tx.Exec(sqlText); err != nil {
				return err
			}
		}
		return nil
	})
}

// materialize loads the configured worksheets and views into the in-memory
// database so queries within the same invocation see them. File-backed
// databases already hold the data.
func (c *Controller) materialize(ctx context.Context) error {
	if !c.session.InMemory() {
		return nil
	}
	if err := c.InitializeDB(ctx); err != nil {
		return err
	}
	return c.CreateViews(ctx)
}

// SelectAll queries every row of a table or view and returns the result as
// a dataset. On an in-memory database the configured worksheets and views
// are materialized first.
func (c *Controller) SelectAll(ctx context.Context, name, whereClause string) (*Dataset, error) {
	if err := c.materialize(ctx); err != nil {
		return nil, err
	}

	target := name
	if c.config.HasTable(name) {
		target = c.config.DBTableName(name)
	}

	var result *Dataset
	err := c.session.Apply(ctx, func(tx *Tx) error {
		rows, err := tx.Query(SelectSQL(target, nil, whereClause))
		if err != nil {
			return err
		}
		defer func() {
			_ = rows.Close()
		}()
		result, err = datasetFromRows(name, rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// EntityInfo is one row of a ListEntities result.
type EntityInfo struct {
	Type string
	Name string
}

// ListEntities lists tables and/or views from sqlite_master. kind is
// "table", "view" or "all".
func (c *Controller) ListEntities(ctx context.Context, kind string) ([]EntityInfo, error) {
	where := "type IN ('table','view')"
	switch kind {
	case "table", "view":
		where = fmt.Sprintf("type='%s'", kind)
	case "all", "":
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidEntityKind, kind)
	}

	var entities []EntityInfo
	err := c.session.Apply(ctx, func(tx *Tx) error {
		rows, err := tx.Query(SelectSQL("sqlite_master", []string{"type", "name"}, where))
		if err != nil {
			return err
		}
		defer func() {
			_ = rows.Close()
		}()
		for rows.Next() {
			var e EntityInfo
			if err := rows.Scan(&e.Type, &e.Name); err != nil {
				return err
			}
			entities = append(entities, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return entities, nil
}

// Close closes the underlying session.
func (c *Controller) Close() error {
	return c.session.Close()
}

// datasetFromRows drains a query result into a dataset.
func datasetFromRows(name string, rows *sql.Rows) (*Dataset, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []Record
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		record := make(Record, len(columns))
		for i, v := range values {
			// The driver hands back []byte for TEXT in some paths; keep
			// cells printable.
			if b, ok := v.([]byte); ok {
				record[i] = string(b)
			} else {
				record[i] = v
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return newDataset(name, newHeader(columns), records), nil
}
