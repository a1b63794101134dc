package sheetsql

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestController builds a workbook, a views directory and a config inside
// a temp dir, and returns a controller over an in-memory database.
func newTestController(t *testing.T) (*Controller, string) {
	t.Helper()

	dir := t.TempDir()
	workbook := filepath.Join(dir, "book.xlsx")
	require.NoError(t, WriteWorksheet(workbook, "People",
		[]string{"email", "name", "age"},
		[][]string{
			{"a@example.com", "alice", "30"},
			{"b@example.com", "bob", "25"},
		}))

	viewsDir := filepath.Join(dir, "views")
	require.NoError(t, os.MkdirAll(viewsDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(viewsDir, "adults.sql"),
		[]byte("SELECT name FROM \"People\" WHERE age >= 18;\n"), 0o600))

	iniText := fmt.Sprintf(`
[PATHS]
root_path = %s
xlsx_file = book.xlsx
sql_views = views

[WORKSHEETS]
names = People

[People]
primary_key = email
`, dir)

	config, err := LoadConfigFromBytes([]byte(iniText))
	require.NoError(t, err)

	session, err := NewSession("")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = session.Close()
	})
	return NewController(config, session, nil), dir
}

func TestController_InitializeDB(t *testing.T) {
	t.Parallel()

	t.Run("Creates and populates tables", func(t *testing.T) {
		t.Parallel()

		controller, _ := newTestController(t)
		ctx := context.Background()
		require.NoError(t, controller.InitializeDB(ctx))

		entities, err := controller.ListEntities(ctx, "table")
		require.NoError(t, err)
		require.Len(t, entities, 1)
		assert.Equal(t, "People", entities[0].Name)

		dataset, err := controller.SelectAll(ctx, "People", "")
		require.NoError(t, err)
		assert.Equal(t, 2, dataset.Len())
		assert.Equal(t, []string{"email", "name", "age"}, dataset.Headers())
	})

	t.Run("Second run does not duplicate rows", func(t *testing.T) {
		t.Parallel()

		controller, _ := newTestController(t)
		ctx := context.Background()
		require.NoError(t, controller.InitializeDB(ctx))

		// The repeated CREATE is a no-op and the repeated inserts violate the
		// key, so the second batch is discarded.
		require.NoError(t, controller.InitializeDB(ctx))

		dataset, err := controller.SelectAll(ctx, "People", "")
		require.NoError(t, err)
		assert.Equal(t, 2, dataset.Len())
	})

	t.Run("Worksheet is read only once per run", func(t *testing.T) {
		t.Parallel()

		controller, _ := newTestController(t)
		require.NoError(t, controller.InitializeDB(context.Background()))

		assert.True(t, controller.Has("People"))
		dataset, ok := controller.Get("People")
		require.True(t, ok)
		assert.Equal(t, 2, dataset.Len())
	})
}

// countRows queries COUNT(*) directly on the session so the check does not
// go through SelectAll's in-memory materialization.
func countRows(t *testing.T, session *Session, table string) int {
	t.Helper()

	var count int
	require.NoError(t, session.Apply(context.Background(), func(tx *Tx) error {
		rows, err := tx.Query(SelectSQL(table, []string{"COUNT(*)"}, ""))
		if err != nil {
			return err
		}
		defer func() {
			_ = rows.Close()
		}()
		require.True(t, rows.Next())
		return rows.Scan(&count)
	}))
	return count
}

func TestController_InsertOrReplace(t *testing.T) {
	t.Parallel()

	t.Run("Replaces rows keyed on the primary key", func(t *testing.T) {
		t.Parallel()

		controller, dir := newTestController(t)
		ctx := context.Background()
		require.NoError(t, controller.InitializeDB(ctx))

		// Rewrite the workbook with an updated row and a new one, then
		// re-import through a fresh controller so the file is re-read.
		workbook := filepath.Join(dir, "book.xlsx")
		require.NoError(t, WriteWorksheet(workbook, "People",
			[]string{"email", "name", "age"},
			[][]string{
				{"a@example.com", "alice", "31"},
				{"c@example.com", "carol", "40"},
			}))

		fresh := NewController(controller.config, controller.session, nil)
		require.NoError(t, fresh.InsertOrReplace(ctx, "People"))

		dataset, err := fresh.SelectAll(ctx, "People", "")
		require.NoError(t, err)
		require.Equal(t, 3, dataset.Len())

		byEmail := make(map[string]Record, dataset.Len())
		for _, row := range dataset.Rows() {
			byEmail[row[0].(string)] = row
		}
		assert.Equal(t, int64(31), byEmail["a@example.com"][2], "existing row must be replaced")
		assert.Contains(t, byEmail, "c@example.com")
		assert.Contains(t, byEmail, "b@example.com")
	})

	t.Run("Unconfigured worksheet is refused", func(t *testing.T) {
		t.Parallel()

		controller, _ := newTestController(t)
		err := controller.InsertOrReplace(context.Background(), "Nope")
		assert.ErrorIs(t, err, ErrTableNotFound)
	})

	t.Run("Missing database table is refused", func(t *testing.T) {
		t.Parallel()

		controller, _ := newTestController(t)
		err := controller.InsertOrReplace(context.Background(), "People")
		assert.ErrorIs(t, err, ErrTableNotFound)
	})

	t.Run("Key column missing from new data aborts without changes", func(t *testing.T) {
		t.Parallel()

		controller, dir := newTestController(t)
		ctx := context.Background()
		require.NoError(t, controller.InitializeDB(ctx))

		// Drop the key column from the workbook.
		workbook := filepath.Join(dir, "book.xlsx")
		require.NoError(t, WriteWorksheet(workbook, "People",
			[]string{"name", "age"},
			[][]string{{"mallory", "99"}}))

		fresh := NewController(controller.config, controller.session, nil)
		err := fresh.InsertOrReplace(ctx, "People")
		assert.ErrorIs(t, err, ErrMissingPrimaryKey)

		dataset, err := controller.SelectAll(ctx, "People", "")
		require.NoError(t, err)
		assert.Equal(t, 2, dataset.Len(), "aborted upsert must not change rows")
	})

	t.Run("Synthesized key table aborts without changes", func(t *testing.T) {
		t.Parallel()

		// No primary_key in the config: the table is created with a
		// synthesized id key that worksheet data can never carry.
		dir := t.TempDir()
		workbook := filepath.Join(dir, "book.xlsx")
		require.NoError(t, WriteWorksheet(workbook, "People",
			[]string{"name", "age"},
			[][]string{
				{"alice", "30"},
				{"bob", "25"},
			}))

		config, err := LoadConfigFromBytes([]byte(fmt.Sprintf(
			"[PATHS]\nroot_path = %s\nxlsx_file = book.xlsx\n[WORKSHEETS]\nnames = People\n", dir)))
		require.NoError(t, err)

		session, err := NewSession("")
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = session.Close()
		})

		ctx := context.Background()
		controller := NewController(config, session, nil)
		require.NoError(t, controller.InitializeDB(ctx))
		require.Equal(t, 2, countRows(t, session, "People"))

		fresh := NewController(config, session, nil)
		err = fresh.InsertOrReplace(ctx, "People")
		assert.ErrorIs(t, err, ErrMissingPrimaryKey)
		assert.Equal(t, 2, countRows(t, session, "People"),
			"aborted upsert must not duplicate rows")
	})

	t.Run("Key column is re-added to a configured column subset", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		workbook := filepath.Join(dir, "book.xlsx")
		require.NoError(t, WriteWorksheet(workbook, "People",
			[]string{"email", "name", "age"},
			[][]string{
				{"a@example.com", "alice", "30"},
				{"b@example.com", "bob", "25"},
			}))

		baseINI := "[PATHS]\nroot_path = %s\nxlsx_file = book.xlsx\n[WORKSHEETS]\nnames = People\n[People]\nprimary_key = email\n"
		fullConfig, err := LoadConfigFromBytes([]byte(fmt.Sprintf(baseINI, dir)))
		require.NoError(t, err)

		session, err := NewSession("")
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = session.Close()
		})

		ctx := context.Background()
		require.NoError(t, NewController(fullConfig, session, nil).InitializeDB(ctx))
		require.Equal(t, 2, countRows(t, session, "People"))

		// Narrow the configured subset so it omits the key column, then
		// upsert an updated workbook. The key is pulled back into the import
		// so the REPLACE still matches existing rows.
		require.NoError(t, WriteWorksheet(workbook, "People",
			[]string{"email", "name", "age"},
			[][]string{
				{"a@example.com", "alice", "31"},
				{"b@example.com", "bob", "25"},
			}))

		subsetConfig, err := LoadConfigFromBytes([]byte(fmt.Sprintf(
			baseINI+"columns = name,age\n", dir)))
		require.NoError(t, err)

		fresh := NewController(subsetConfig, session, nil)
		require.NoError(t, fresh.InsertOrReplace(ctx, "People"))

		dataset, ok := fresh.Get("People")
		require.True(t, ok)
		assert.True(t, dataset.HasColumn("email"))
		assert.Equal(t, 2, countRows(t, session, "People"),
			"keyed REPLACE must not grow the table")

		var age int64
		require.NoError(t, session.Apply(ctx, func(tx *Tx) error {
			rows, err := tx.Query(SelectSQL("People", []string{"age"}, "email = 'a@example.com'"))
			if err != nil {
				return err
			}
			defer func() {
				_ = rows.Close()
			}()
			require.True(t, rows.Next())
			return rows.Scan(&age)
		}))
		assert.Equal(t, int64(31), age)
	})
}

func TestController_DropTables(t *testing.T) {
	t.Parallel()

	controller, _ := newTestController(t)
	ctx := context.Background()
	require.NoError(t, controller.InitializeDB(ctx))
	require.NoError(t, controller.DropTables(ctx))

	entities, err := controller.ListEntities(ctx, "table")
	require.NoError(t, err)
	assert.Empty(t, entities)

	// Dropping again is a no-op thanks to IF EXISTS.
	require.NoError(t, controller.DropTables(ctx))
}

func TestController_Views(t *testing.T) {
	t.Parallel()

	t.Run("Create, query and drop", func(t *testing.T) {
		t.Parallel()

		controller, _ := newTestController(t)
		ctx := context.Background()
		require.NoError(t, controller.InitializeDB(ctx))
		require.NoError(t, controller.CreateViews(ctx))

		entities, err := controller.ListEntities(ctx, "view")
		require.NoError(t, err)
		require.Len(t, entities, 1)
		assert.Equal(t, "adults", entities[0].Name)

		dataset, err := controller.SelectAll(ctx, "adults", "")
		require.NoError(t, err)
		assert.Equal(t, 2, dataset.Len())

		require.NoError(t, controller.DropViews(ctx))
		entities, err = controller.ListEntities(ctx, "view")
		require.NoError(t, err)
		assert.Empty(t, entities)
	})
}

func TestController_ListEntities(t *testing.T) {
	t.Parallel()

	controller, _ := newTestController(t)
	ctx := context.Background()
	require.NoError(t, controller.InitializeDB(ctx))
	require.NoError(t, controller.CreateViews(ctx))

	all, err := controller.ListEntities(ctx, "all")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = controller.ListEntities(ctx, "trigger")
	assert.ErrorIs(t, err, ErrInvalidEntityKind)
}

func TestController_SelectAllWhere(t *testing.T) {
	t.Parallel()

	controller, _ := newTestController(t)
	ctx := context.Background()
	require.NoError(t, controller.InitializeDB(ctx))

	dataset, err := controller.SelectAll(ctx, "People", "age > 26")
	require.NoError(t, err)
	require.Equal(t, 1, dataset.Len())
	assert.Equal(t, "alice", dataset.Rows()[0][1])
}
