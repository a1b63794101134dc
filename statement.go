package sheetsql

import (
	"fmt"
	"strings"
)

const commaDelim = ","

// EntityKind identifies a droppable database entity.
type EntityKind int

const (
	// EntityTable is a database table.
	EntityTable EntityKind = iota
	// EntityView is a database view.
	EntityView
)

// String returns the SQL keyword for the entity kind.
func (k EntityKind) String() string {
	if k == EntityView {
		return "VIEW"
	}
	return "TABLE"
}

// columnDef renders one column definition for CREATE TABLE.
func columnDef(col ColumnSpec) string {
	parts := []string{quoteColumn(col.Name), col.Type.String()}
	if kw := col.Constraint.keywords(); kw != "" {
		parts = append(parts, kw)
	}
	return strings.Join(parts, " ")
}

// constraintClause renders one table-level constraint clause, for example
// UNIQUE(`col1`,`col2`).
func constraintClause(tc TableConstraint) string {
	quoted := make([]string, len(tc.Columns))
	for i, col := range tc.Columns {
		quoted[i] = quoteColumn(col)
	}
	return fmt.Sprintf("%s(%s)", tc.Kind.keyword(), strings.Join(quoted, commaDelim))
}

// CreateTableSQL renders a CREATE TABLE IF NOT EXISTS statement for the
// schema. The statement is idempotent: re-running it against an existing
// table is a no-op.
func CreateTableSQL(schema *Schema) string {
	defs := make([]string, 0, len(schema.Columns)+len(schema.TableConstraints))
	for _, col := range schema.Columns {
		defs = append(defs, columnDef(col))
	}
	for _, tc := range schema.TableConstraints {
		defs = append(defs, constraintClause(tc))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);",
		quoteEntity(schema.TableName), strings.Join(defs, commaDelim))
}

// columnList renders the backtick-quoted data column list for INSERT and
// REPLACE. A synthesized key column is omitted so SQLite assigns rowids.
func columnList(schema *Schema) (string, int) {
	cols := schema.DataColumns()
	labels := make([]string, len(cols))
	for i, col := range cols {
		labels[i] = quoteColumn(col.Name)
	}
	return strings.Join(labels, commaDelim), len(cols)
}

// placeholders renders n comma-separated parameter markers.
func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("?"+commaDelim, n-1) + "?"
}

// InsertSQL renders a multi-row-capable INSERT statement for the schema and
// returns the number of parameter placeholders per row.
func InsertSQL(schema *Schema) (string, int) {
	fields, n := columnList(schema)
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);",
		quoteEntity(schema.TableName), fields, placeholders(n))
	return sql, n
}

// ReplaceSQL renders a REPLACE statement for the schema. The schema must
// carry a key constraint; a REPLACE keyed on nothing would insert duplicate
// rows instead of replacing them.
func ReplaceSQL(schema *Schema) (string, int, error) {
	if !schema.HasKey() {
		return "", 0, fmt.Errorf("%w: table %s has no key constraint",
			ErrMissingPrimaryKey, schema.TableName)
	}
	fields, n := columnList(schema)
	sql := fmt.Sprintf("REPLACE INTO %s (%s) VALUES (%s);",
		quoteEntity(schema.TableName), fields, placeholders(n))
	return sql, n, nil
}

// CreateViewSQL renders a CREATE VIEW IF NOT EXISTS statement wrapping the
// given SELECT body.
func CreateViewSQL(name, selectStatement string) string {
	body := strings.TrimSpace(selectStatement)
	body = strings.TrimSuffix(body, ";")
	return fmt.Sprintf("CREATE VIEW IF NOT EXISTS %s AS %s;", quoteEntity(name), body)
}

// DropEntitySQL renders a DROP statement for a table or view.
func DropEntitySQL(name string, kind EntityKind) (string, error) {
	if kind != EntityTable && kind != EntityView {
		return "", fmt.Errorf("%w: %d", ErrInvalidEntityKind, kind)
	}
	return fmt.Sprintf("DROP %s IF EXISTS %s;", kind, quoteEntity(name)), nil
}

// SelectSQL renders a SELECT statement. An empty column list selects *, and
// an empty where clause omits WHERE.
func SelectSQL(table string, columns []string, whereClause string) string {
	cols := "*"
	if len(columns) > 0 {
		cols = strings.Join(columns, commaDelim)
	}
	sql := fmt.Sprintf("SELECT %s FROM %s", cols, quoteEntity(table))
	if whereClause != "" {
		sql += " WHERE " + whereClause
	}
	return sql + ";"
}

// TableInfoSQL renders the table_info PRAGMA for a table.
func TableInfoSQL(table string) string {
	return fmt.Sprintf("PRAGMA table_info(%s);", quoteEntity(table))
}

// DatabaseListSQL renders the database_list PRAGMA.
func DatabaseListSQL() string {
	return "PRAGMA database_list;"
}
