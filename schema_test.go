package sheetsql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSchema(t *testing.T) {
	t.Parallel()

	t.Run("No declared key synthesizes id column", func(t *testing.T) {
		t.Parallel()

		schema, err := BuildSchema("users",
			[]string{"name", "age"},
			Record{"alice", int64(30)},
			Model{DBTableName: "users"})
		require.NoError(t, err)

		require.Len(t, schema.Columns, 3)
		assert.Equal(t, ColumnSpec{Name: "id", Type: StorageInteger, Constraint: ConstraintPrimaryKey}, schema.Columns[0])
		assert.Equal(t, ColumnSpec{Name: "name", Type: StorageText, Constraint: ConstraintNone}, schema.Columns[1])
		assert.Equal(t, ColumnSpec{Name: "age", Type: StorageInteger, Constraint: ConstraintNone}, schema.Columns[2])
		assert.Empty(t, schema.TableConstraints)
		assert.True(t, schema.HasKey())

		// The synthesized column never carries worksheet data.
		data := schema.DataColumns()
		require.Len(t, data, 2)
		assert.Equal(t, "name", data[0].Name)
	})

	t.Run("Declared key absent from headers synthesizes named column", func(t *testing.T) {
		t.Parallel()

		schema, err := BuildSchema("users",
			[]string{"name"},
			Record{"alice"},
			Model{DBTableName: "users", PrimaryKey: []string{"user_id"}})
		require.NoError(t, err)

		require.Len(t, schema.Columns, 2)
		assert.Equal(t, ColumnSpec{Name: "user_id", Type: StorageInteger, Constraint: ConstraintPrimaryKey}, schema.Columns[0])
		assert.Len(t, schema.DataColumns(), 1)
	})

	t.Run("Declared key present in headers uses table-level clause", func(t *testing.T) {
		t.Parallel()

		schema, err := BuildSchema("users",
			[]string{"email", "name"},
			Record{"a@example.com", "alice"},
			Model{DBTableName: "users", PrimaryKey: []string{"email"}})
		require.NoError(t, err)

		require.Len(t, schema.Columns, 2)
		assert.Equal(t, ConstraintNotNull, schema.Columns[0].Constraint)
		assert.Equal(t, ConstraintNone, schema.Columns[1].Constraint)
		require.Len(t, schema.TableConstraints, 1)
		assert.Equal(t, TableConstraint{
			Kind:    TableConstraintPrimaryKey,
			Columns: []string{"email"},
		}, schema.TableConstraints[0])
		assert.True(t, schema.HasKey())

		// Real key columns carry data in inserts.
		assert.Len(t, schema.DataColumns(), 2)
	})

	t.Run("Composite key covers every declared column", func(t *testing.T) {
		t.Parallel()

		schema, err := BuildSchema("orders",
			[]string{"region", "order_no", "amount"},
			Record{"eu", int64(1), float64(9.99)},
			Model{DBTableName: "orders", PrimaryKey: []string{"region", "order_no"}})
		require.NoError(t, err)

		assert.Equal(t, ConstraintNotNull, schema.Columns[0].Constraint)
		assert.Equal(t, ConstraintNotNull, schema.Columns[1].Constraint)
		assert.Equal(t, ConstraintNone, schema.Columns[2].Constraint)
		require.Len(t, schema.TableConstraints, 1)
		assert.Equal(t, []string{"region", "order_no"}, schema.TableConstraints[0].Columns)
	})

	t.Run("Partially present key keeps only present columns", func(t *testing.T) {
		t.Parallel()

		schema, err := BuildSchema("orders",
			[]string{"region", "amount"},
			Record{"eu", float64(9.99)},
			Model{DBTableName: "orders", PrimaryKey: []string{"order_no", "region"}})
		require.NoError(t, err)

		require.Len(t, schema.TableConstraints, 1)
		assert.Equal(t, []string{"region"}, schema.TableConstraints[0].Columns)
	})

	t.Run("Not-null columns are constrained", func(t *testing.T) {
		t.Parallel()

		schema, err := BuildSchema("users",
			[]string{"name", "email"},
			Record{"alice", "a@example.com"},
			Model{DBTableName: "users", NotNull: []string{"email"}})
		require.NoError(t, err)

		assert.Equal(t, ConstraintNone, schema.Columns[1].Constraint)
		assert.Equal(t, ConstraintNotNull, schema.Columns[2].Constraint)
	})

	t.Run("Key constraint is not overwritten by not-null list", func(t *testing.T) {
		t.Parallel()

		schema, err := BuildSchema("users",
			[]string{"email"},
			Record{"a@example.com"},
			Model{DBTableName: "users", PrimaryKey: []string{"email"}, NotNull: []string{"email"}})
		require.NoError(t, err)

		assert.Equal(t, ConstraintNotNull, schema.Columns[0].Constraint)
		require.Len(t, schema.TableConstraints, 1)
	})

	t.Run("Unique list becomes a table-level clause", func(t *testing.T) {
		t.Parallel()

		schema, err := BuildSchema("users",
			[]string{"name", "email"},
			Record{"alice", "a@example.com"},
			Model{DBTableName: "users", Unique: []string{"email"}})
		require.NoError(t, err)

		require.Len(t, schema.TableConstraints, 1)
		assert.Equal(t, TableConstraint{
			Kind:    TableConstraintUnique,
			Columns: []string{"email"},
		}, schema.TableConstraints[0])
	})

	t.Run("Affinity is resolved from the sample row", func(t *testing.T) {
		t.Parallel()

		schema, err := BuildSchema("mixed",
			[]string{"t", "i", "r", "ts", "b"},
			Record{"text", int64(1), float64(1.5), time.Now(), nil},
			Model{DBTableName: "mixed"})
		require.NoError(t, err)

		data := schema.DataColumns()
		require.Len(t, data, 5)
		assert.Equal(t, StorageText, data[0].Type)
		assert.Equal(t, StorageInteger, data[1].Type)
		assert.Equal(t, StorageReal, data[2].Type)
		assert.Equal(t, StorageTimestamp, data[3].Type)
		assert.Equal(t, StorageBlob, data[4].Type)
	})

	t.Run("Same input always builds the same schema", func(t *testing.T) {
		t.Parallel()

		model := Model{
			DBTableName: "users",
			PrimaryKey:  []string{"email"},
			Unique:      []string{"name"},
			NotNull:     []string{"age"},
		}
		headers := []string{"email", "name", "age"}
		row := Record{"a@example.com", "alice", int64(30)}

		first, err := BuildSchema("users", headers, row, model)
		require.NoError(t, err)
		second, err := BuildSchema("users", headers, row, model)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, CreateTableSQL(first), CreateTableSQL(second))
	})
}

func TestBuildSchema_InvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers []string
		row     Record
	}{
		{name: "Empty headers", headers: nil, row: Record{"x"}},
		{name: "Nil sample row", headers: []string{"a"}, row: nil},
		{name: "Length mismatch", headers: []string{"a", "b"}, row: Record{"x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := BuildSchema("t", tt.headers, tt.row, Model{DBTableName: "t"})
			assert.ErrorIs(t, err, ErrInvalidSchemaInput)
		})
	}
}
