package sheetsql

import (
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

// INI section and key names.
const (
	sectionPaths      = "PATHS"
	sectionWorksheets = "WORKSHEETS"

	keyRootPath  = "root_path"
	keyXLSXFile  = "xlsx_file"
	keyDBFile    = "db_file"
	keySQLViews  = "sql_views"
	keyLogFile   = "log_file"
	keyNames     = "names"
	keyDBTable   = "db_table"
	keyColumns   = "columns"
	keyPrimary   = "primary_key"
	keyUnique    = "unique"
	keyNotNull   = "not_null"
	keyHeaderRow = "header"
)

// defaultHeaderRow is the worksheet row assumed to hold headers when a table
// section does not declare one.
const defaultHeaderRow = 1

// Config is the parsed INI configuration driving a whole run: workbook and
// database locations plus one model per declared worksheet.
type Config struct {
	// WorkbookPath is the XLSX file worksheets are read from.
	WorkbookPath string
	// DBPath is the SQLite database file. Empty means an in-memory database.
	DBPath string
	// ViewsPath is the directory holding *.sql view definition files.
	ViewsPath string
	// LogPath is an optional file statement events are appended to.
	LogPath string

	worksheets []string
	models     map[string]Model
}

// LoadConfig parses and validates the INI file at path. Mandatory sections
// and keys are checked here, before any database work; identifier validation
// also happens here because generated SQL quotes names without escaping.
func LoadConfig(path string) (*Config, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return parseConfig(file)
}

// LoadConfigFromBytes parses an in-memory INI document. Used by tests.
func LoadConfigFromBytes(data []byte) (*Config, error) {
	file, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return parseConfig(file)
}

func parseConfig(file *ini.File) (*Config, error) {
	for _, name := range []string{sectionPaths, sectionWorksheets} {
		if _, err := file.GetSection(name); err != nil {
			return nil, fmt.Errorf("%w: mandatory section [%s] is missing", ErrConfiguration, name)
		}
	}

	paths := file.Section(sectionPaths)
	if !paths.HasKey(keyXLSXFile) {
		return nil, fmt.Errorf("%w: [%s] must declare %s", ErrConfiguration, sectionPaths, keyXLSXFile)
	}

	root := paths.Key(keyRootPath).String()
	resolve := func(p string) string {
		if p == "" || root == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(root, p)
	}

	cfg := &Config{
		WorkbookPath: resolve(paths.Key(keyXLSXFile).String()),
		DBPath:       resolve(paths.Key(keyDBFile).String()),
		ViewsPath:    resolve(paths.Key(keySQLViews).String()),
		LogPath:      resolve(paths.Key(keyLogFile).String()),
		models:       make(map[string]Model),
	}

	names := splitList(file.Section(sectionWorksheets).Key(keyNames).String())
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: [%s] must declare %s", ErrConfiguration, sectionWorksheets, keyNames)
	}
	cfg.worksheets = names

	for _, name := range names {
		model, err := parseModel(file, name)
		if err != nil {
			return nil, err
		}
		cfg.models[name] = model
	}
	return cfg, nil
}

// parseModel reads the per-worksheet section. The section itself is
// optional; a worksheet without one gets a synthetic rowid key and all its
// columns.
func parseModel(file *ini.File, worksheet string) (Model, error) {
	if err := validateIdentifier(worksheet); err != nil {
		return Model{}, fmt.Errorf("%w: worksheet %v", ErrConfiguration, err)
	}

	model := Model{
		DBTableName: worksheet,
		HeaderRow:   defaultHeaderRow,
	}
	section, err := file.GetSection(worksheet)
	if err != nil {
		return model, nil
	}

	if section.HasKey(keyDBTable) {
		model.DBTableName = strings.TrimSpace(section.Key(keyDBTable).String())
	}
	model.Columns = splitList(section.Key(keyColumns).String())
	model.PrimaryKey = splitList(section.Key(keyPrimary).String())
	model.Unique = splitList(section.Key(keyUnique).String())
	model.NotNull = splitList(section.Key(keyNotNull).String())
	if section.HasKey(keyHeaderRow) {
		row, err := section.Key(keyHeaderRow).Int()
		if err != nil || row < 1 {
			return Model{}, fmt.Errorf("%w: %s: %s must be a positive row number",
				ErrConfiguration, worksheet, keyHeaderRow)
		}
		model.HeaderRow = row
	}

	if err := validateIdentifier(model.DBTableName); err != nil {
		return Model{}, fmt.Errorf("%w: %s: %v", ErrConfiguration, worksheet, err)
	}
	for _, list := range [][]string{model.Columns, model.PrimaryKey, model.Unique, model.NotNull} {
		for _, col := range list {
			if err := validateIdentifier(col); err != nil {
				return Model{}, fmt.Errorf("%w: %s: %v", ErrConfiguration, worksheet, err)
			}
		}
	}
	return model, nil
}

// TableNames returns the declared worksheet names in declaration order.
func (c *Config) TableNames() []string {
	out := make([]string, len(c.worksheets))
	copy(out, c.worksheets)
	return out
}

// HasTable reports whether the worksheet is declared in the configuration.
func (c *Config) HasTable(name string) bool {
	_, ok := c.models[name]
	return ok
}

// GetModel returns the model for a declared worksheet.
func (c *Config) GetModel(name string) (Model, error) {
	model, ok := c.models[name]
	if !ok {
		return Model{}, fmt.Errorf("%w: worksheet %q is not declared", ErrConfiguration, name)
	}
	return model, nil
}

// DBTableName resolves the public table name for a worksheet: the configured
// alias when one is declared, the worksheet name otherwise.
func (c *Config) DBTableName(worksheet string) string {
	if model, ok := c.models[worksheet]; ok && model.DBTableName != "" {
		return model.DBTableName
	}
	return worksheet
}

// splitList splits a comma-delimited option into trimmed non-empty items.
func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, commaDelim)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
