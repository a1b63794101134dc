package sheetsql

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Cell is a single typed scalar read from a worksheet. Valid dynamic types
// are nil, string, int64, float64 and time.Time.
type Cell any

// Record is one worksheet row as an ordered sequence of cells.
type Record []Cell

// header is a worksheet header row.
type header []string

// newHeader creates a new header.
func newHeader(h []string) header {
	return header(h)
}

// equal compares headers.
func (h header) equal(h2 header) bool {
	if len(h) != len(h2) {
		return false
	}
	for i, v := range h {
		if v != h2[i] {
			return false
		}
	}
	return true
}

// StorageType is the SQLite type affinity a column is declared with.
type StorageType int

const (
	// StorageText represents the TEXT affinity.
	StorageText StorageType = iota
	// StorageInteger represents the INTEGER affinity.
	StorageInteger
	// StorageReal represents the REAL affinity.
	StorageReal
	// StorageTimestamp represents datetime values declared as TIMESTAMP.
	StorageTimestamp
	// StorageBlob represents the affinity-free BLOB fallback.
	StorageBlob
)

// String returns the SQL type keyword for the affinity.
func (st StorageType) String() string {
	switch st {
	case StorageText:
		return "TEXT"
	case StorageInteger:
		return "INTEGER"
	case StorageReal:
		return "REAL"
	case StorageTimestamp:
		return "TIMESTAMP"
	case StorageBlob:
		return "BLOB"
	default:
		return "TEXT"
	}
}

// ResolveAffinity maps a sample cell to the storage type its column is
// declared with. Total over all inputs; every value maps to exactly one tag.
//
// A nil sample yields BLOB. A column whose sample row happens to hold an
// empty cell is therefore declared affinity-free, which matches the historic
// behavior this tool's configurations depend on.
func ResolveAffinity(value Cell) StorageType {
	switch value.(type) {
	case string:
		return StorageText
	case int64, int:
		return StorageInteger
	case float64:
		return StorageReal
	case time.Time:
		return StorageTimestamp
	case nil:
		return StorageBlob
	default:
		return StorageText
	}
}

// ColumnConstraint is the closed set of column-level constraint variants.
type ColumnConstraint int

const (
	// ConstraintNone declares a plain column.
	ConstraintNone ColumnConstraint = iota
	// ConstraintUnique declares a UNIQUE column.
	ConstraintUnique
	// ConstraintPrimaryKey declares a NOT NULL PRIMARY KEY column. On an
	// INTEGER column this makes it an alias for the rowid.
	ConstraintPrimaryKey
	// ConstraintNotNull declares a NOT NULL column.
	ConstraintNotNull
)

// keywords returns the SQL keywords for the constraint, or "" for none.
func (cc ColumnConstraint) keywords() string {
	switch cc {
	case ConstraintUnique:
		return "UNIQUE"
	case ConstraintPrimaryKey:
		return "NOT NULL PRIMARY KEY"
	case ConstraintNotNull:
		return "NOT NULL"
	default:
		return ""
	}
}

// TableConstraintKind is the closed set of table-level constraint clauses.
type TableConstraintKind int

const (
	// TableConstraintUnique is a table-level UNIQUE(...) clause.
	TableConstraintUnique TableConstraintKind = iota
	// TableConstraintPrimaryKey is a table-level PRIMARY KEY(...) clause,
	// required when the key spans multiple columns.
	TableConstraintPrimaryKey
)

// keyword returns the SQL keyword for the clause.
func (tk TableConstraintKind) keyword() string {
	if tk == TableConstraintPrimaryKey {
		return "PRIMARY KEY"
	}
	return "UNIQUE"
}

// quoteColumn quotes a column name for use in SQL text. Leading and trailing
// whitespace is stripped; the name is never escaped beyond quoting.
func quoteColumn(name string) string {
	return "`" + strings.TrimSpace(name) + "`"
}

// quoteEntity quotes a table or view name for use in SQL text.
func quoteEntity(name string) string {
	return `"` + strings.TrimSpace(name) + `"`
}

// validateIdentifier rejects names that cannot be safely quoted. Quoted
// identifiers are never escaped, so a name containing a quote character
// would produce broken SQL; such names are refused up front.
func validateIdentifier(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("empty identifier")
	}
	if strings.ContainsAny(name, "`\"'") {
		return fmt.Errorf("%w: %q", errQuoteInIdentifier, name)
	}
	return nil
}

// validateColumnNames checks for duplicate column names. Comparison is
// case-sensitive.
func validateColumnNames(columns []string) error {
	seen := make(map[string]bool)
	for _, col := range columns {
		trimmed := strings.TrimSpace(col)
		if seen[trimmed] {
			return fmt.Errorf("duplicate column name: %s", col)
		}
		seen[trimmed] = true
	}
	return nil
}

// datetimePattern pairs a shape regexp with the layouts it may parse as.
type datetimePattern struct {
	pattern *regexp.Regexp
	formats []string
}

// Common datetime shapes, most common first for early termination.
var cachedDatetimePatterns = []datetimePattern{
	// ISO8601 with timezone
	{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})$`),
		[]string{time.RFC3339, time.RFC3339Nano},
	},
	// ISO8601 without timezone
	{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?$`),
		[]string{"2006-01-02T15:04:05", "2006-01-02T15:04:05.000"},
	},
	// ISO8601 date and time with space
	{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}(\.\d+)?$`),
		[]string{"2006-01-02 15:04:05", "2006-01-02 15:04:05.000"},
	},
	// ISO8601 date only
	{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
		[]string{"2006-01-02"},
	},
	// US formats
	{
		regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4} \d{1,2}:\d{2}:\d{2}( (AM|PM))?$`),
		[]string{"1/2/2006 15:04:05", "1/2/2006 3:04:05 PM", "01/02/2006 15:04:05"},
	},
	{
		regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`),
		[]string{"1/2/2006", "01/02/2006"},
	},
	// European formats
	{
		regexp.MustCompile(`^\d{1,2}\.\d{1,2}\.\d{4} \d{1,2}:\d{2}:\d{2}$`),
		[]string{"2.1.2006 15:04:05", "02.01.2006 15:04:05"},
	},
	{
		regexp.MustCompile(`^\d{1,2}\.\d{1,2}\.\d{4}$`),
		[]string{"2.1.2006", "02.01.2006"},
	},
}

// Datetime length bounds for cheap pre-filtering before regex matching.
const (
	minDatetimeLength = 4
	maxDatetimeLength = 35
)

// parseDatetime parses a string that looks like a datetime, reporting
// whether it matched any known shape.
func parseDatetime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if len(value) < minDatetimeLength || len(value) > maxDatetimeLength {
		return time.Time{}, false
	}

	// A datetime must contain at least one digit and one separator.
	hasDigit := false
	hasSeparator := false
	for _, r := range value {
		if r >= '0' && r <= '9' {
			hasDigit = true
		} else if r == '-' || r == '/' || r == '.' || r == ':' || r == 'T' || r == ' ' {
			hasSeparator = true
		}
		if hasDigit && hasSeparator {
			break
		}
	}
	if !hasDigit || !hasSeparator {
		return time.Time{}, false
	}

	for _, dp := range cachedDatetimePatterns {
		if dp.pattern.MatchString(value) {
			for _, format := range dp.formats {
				if t, err := time.Parse(format, value); err == nil {
					return t, true
				}
			}
		}
	}
	return time.Time{}, false
}

// isInteger checks if a value is an integer with a cheap pre-check.
func isInteger(value string) bool {
	if len(value) == 0 {
		return false
	}
	first := value[0]
	if first != '+' && first != '-' && (first < '0' || first > '9') {
		return false
	}
	_, err := strconv.ParseInt(value, 10, 64)
	return err == nil
}

// isFloat checks if a value is a float with a cheap pre-check.
func isFloat(value string) bool {
	hasDigit := false
	for _, r := range value {
		if r >= '0' && r <= '9' {
			hasDigit = true
			break
		}
	}
	if !hasDigit {
		return false
	}
	_, err := strconv.ParseFloat(value, 64)
	return err == nil
}

// parseCell converts a raw worksheet string into a typed cell. Empty strings
// become nil; datetimes are checked before numbers so date-like values keep
// their TIMESTAMP affinity.
func parseCell(raw string) Cell {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	if t, ok := parseDatetime(trimmed); ok {
		return t
	}
	if isInteger(trimmed) {
		n, _ := strconv.ParseInt(trimmed, 10, 64)
		return n
	}
	if isFloat(trimmed) {
		f, _ := strconv.ParseFloat(trimmed, 64)
		return f
	}
	return raw
}
