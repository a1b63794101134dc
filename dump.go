package sheetsql

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// DumpDatabase writes the full database as SQL text: the schema statements
// from sqlite_master followed by one INSERT per row of every table. The
// output replays into an empty database to reproduce the current state.
func (c *Controller) DumpDatabase(ctx context.Context, w io.Writer) error {
	if _, err := fmt.Fprintln(w, "BEGIN TRANSACTION;"); err != nil {
		return err
	}
	err := c.session.Apply(ctx, func(tx *Tx) error {
		tables, err := dumpSchema(tx, w)
		if err != nil {
			return err
		}
		for _, table := range tables {
			if err := dumpTableRows(tx, w, table); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, "COMMIT;")
	return err
}

// dumpSchema writes every schema statement and returns the table names in
// sqlite_master order. Internal sqlite_ objects are skipped.
func dumpSchema(tx *Tx, w io.Writer) ([]string, error) {
	rows, err := tx.Query(SelectSQL("sqlite_master",
		[]string{"type", "name", "sql"}, "sql NOT NULL AND name NOT LIKE 'sqlite_%'"))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var tables []string
	for rows.Next() {
		var entityType, name, schemaSQL string
		if err := rows.Scan(&entityType, &name, &schemaSQL); err != nil {
			return nil, err
		}
		if _, err := fmt.Fprintf(w, "%s;\n", schemaSQL); err != nil {
			return nil, err
		}
		if entityType == "table" {
			tables = append(tables, name)
		}
	}
	return tables, rows.Err()
}

func dumpTableRows(tx *Tx, w io.Writer, table string) error {
	rows, err := tx.Query(SelectSQL(table, nil, ""))
	if err != nil {
		return err
	}
	defer func() {
		_ = rows.Close()
	}()

	columns, err := rows.Columns()
	if err != nil {
		return err
	}
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return err
		}
		literals := make([]string, len(values))
		for i, v := range values {
			literals[i] = sqlLiteral(v)
		}
		_, err := fmt.Fprintf(w, "INSERT INTO %s VALUES (%s);\n",
			quoteEntity(table), strings.Join(literals, commaDelim))
		if err != nil {
			return err
		}
	}
	return rows.Err()
}

// sqlLiteral renders a scanned value as a SQL literal, with single quotes
// doubled inside strings.
func sqlLiteral(v any) string {
	switch value := v.(type) {
	case nil:
		return "NULL"
	case int64:
		return fmt.Sprintf("%d", value)
	case float64:
		return fmt.Sprintf("%g", value)
	case bool:
		if value {
			return "1"
		}
		return "0"
	case time.Time:
		return "'" + value.Format(time.RFC3339) + "'"
	case []byte:
		return "'" + strings.ReplaceAll(string(value), "'", "''") + "'"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprintf("%v", value), "'", "''") + "'"
	}
}
