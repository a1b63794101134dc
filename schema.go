package sheetsql

import (
	"fmt"
)

// Model is the declarative per-table configuration read from the INI file.
// List fields hold column names in declaration order.
type Model struct {
	// DBTableName is the name the table gets in the database. It may differ
	// from the worksheet name when the config declares an alias.
	DBTableName string
	// PrimaryKey lists the primary key columns, or is empty for a synthetic
	// rowid-alias key.
	PrimaryKey []string
	// Unique lists columns covered by a table-level UNIQUE constraint.
	Unique []string
	// NotNull lists columns declared NOT NULL.
	NotNull []string
	// Columns optionally restricts which worksheet columns are imported.
	Columns []string
	// HeaderRow is the 1-based worksheet row holding the column headers.
	HeaderRow int
}

// ColumnSpec is one resolved column of a schema definition.
type ColumnSpec struct {
	Name       string
	Type       StorageType
	Constraint ColumnConstraint
}

// TableConstraint is a table-level constraint clause. It is needed when a
// key spans multiple columns, which a column-level constraint cannot express.
type TableConstraint struct {
	Kind    TableConstraintKind
	Columns []string
}

// Schema is the resolved, ordered column and constraint structure for one
// table. It is built fresh for every operation, is immutable once built, and
// is consumed exactly once by the statement builders.
type Schema struct {
	// TableName is the database table name.
	TableName string
	// Columns holds the ordered column list. A synthesized key column, if
	// any, comes first; the remaining columns keep header order.
	Columns []ColumnSpec
	// TableConstraints holds the table-level constraint clauses.
	TableConstraints []TableConstraint

	// syntheticKey reports whether the first column was synthesized rather
	// than read from the worksheet. A synthesized key never appears in the
	// data, so INSERT and REPLACE leave it to SQLite's rowid assignment.
	syntheticKey bool
}

// DataColumns returns the columns that carry worksheet data, excluding a
// synthesized key column.
func (s *Schema) DataColumns() []ColumnSpec {
	if s.syntheticKey {
		return s.Columns[1:]
	}
	return s.Columns
}

// HasKey reports whether the schema carries any key constraint, either a
// column-level PRIMARY KEY or a table-level clause.
func (s *Schema) HasKey() bool {
	for _, col := range s.Columns {
		if col.Constraint == ConstraintPrimaryKey {
			return true
		}
	}
	return len(s.TableConstraints) > 0
}

// BuildSchema resolves headers, a sample row and a model into a schema
// definition.
//
// Column types are derived once from the sample row and never re-inferred;
// the schema of a created table is fixed for its lifetime. Primary key
// resolution:
//
//   - no key declared: a synthetic `id` INTEGER PRIMARY KEY column is
//     prepended and becomes an alias for the rowid;
//   - a single declared name absent from the headers: a synthetic INTEGER
//     PRIMARY KEY column with that name is prepended;
//   - declared names present in the headers: each such column is constrained
//     NOT NULL and a table-level PRIMARY KEY clause covers them. Declaring
//     the columns PRIMARY KEY inline would not enforce uniqueness for
//     non-rowid-eligible columns, hence the table-level clause.
//
// The same inputs always produce the same schema, which keeps the generated
// CREATE TABLE IF NOT EXISTS statements idempotent.
func BuildSchema(tableName string, headers []string, sampleRow Record, model Model) (*Schema, error) {
	if len(headers) == 0 {
		return nil, fmt.Errorf("%w: headers must not be empty", ErrInvalidSchemaInput)
	}
	if sampleRow == nil {
		return nil, fmt.Errorf("%w: sample row must not be nil", ErrInvalidSchemaInput)
	}
	if len(headers) != len(sampleRow) {
		return nil, fmt.Errorf("%w: %d headers but %d cells in sample row",
			ErrInvalidSchemaInput, len(headers), len(sampleRow))
	}

	schema := &Schema{TableName: tableName}

	keyColumns := intersect(model.PrimaryKey, headers)
	var constrained map[string]ColumnConstraint

	switch {
	case len(model.PrimaryKey) == 0:
		// Rowid alias with the default name.
		schema.Columns = append(schema.Columns, ColumnSpec{
			Name:       "id",
			Type:       StorageInteger,
			Constraint: ConstraintPrimaryKey,
		})
		schema.syntheticKey = true

	case len(keyColumns) == 0:
		// Rowid alias with a custom name; the declared headers are left
		// untouched.
		schema.Columns = append(schema.Columns, ColumnSpec{
			Name:       model.PrimaryKey[0],
			Type:       StorageInteger,
			Constraint: ConstraintPrimaryKey,
		})
		schema.syntheticKey = true

	default:
		// The real key columns only get NOT NULL at column level; the
		// table-level clause enforces the key, composite or not.
		constrained = make(map[string]ColumnConstraint, len(keyColumns))
		for _, name := range keyColumns {
			constrained[name] = ConstraintNotNull
		}
		schema.TableConstraints = append(schema.TableConstraints, TableConstraint{
			Kind:    TableConstraintPrimaryKey,
			Columns: keyColumns,
		})
	}

	notNull := make(map[string]bool, len(model.NotNull))
	for _, name := range model.NotNull {
		notNull[name] = true
	}

	for i, name := range headers {
		constraint := ConstraintNone
		if c, ok := constrained[name]; ok {
			constraint = c
		} else if notNull[name] {
			constraint = ConstraintNotNull
		}
		schema.Columns = append(schema.Columns, ColumnSpec{
			Name:       name,
			Type:       ResolveAffinity(sampleRow[i]),
			Constraint: constraint,
		})
	}

	if len(model.Unique) > 0 {
		schema.TableConstraints = append(schema.TableConstraints, TableConstraint{
			Kind:    TableConstraintUnique,
			Columns: model.Unique,
		})
	}

	return schema, nil
}

// intersect returns the members of names present in headers, preserving the
// order of names.
func intersect(names, headers []string) []string {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	var out []string
	for _, n := range names {
		if present[n] {
			out = append(out, n)
		}
	}
	return out
}
