package sheetsql

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the failure modes callers are expected to branch on.
var (
	// ErrConfiguration indicates a mandatory section or key is missing from
	// the INI file. Fatal, detected before any database operation.
	ErrConfiguration = errors.New("sheetsql: invalid configuration")

	// ErrInvalidSchemaInput indicates headers and sample row do not line up
	// (nil, empty, or mismatched length).
	ErrInvalidSchemaInput = errors.New("sheetsql: invalid schema input")

	// ErrMissingPrimaryKey indicates a REPLACE was requested on a schema that
	// carries no key constraint. A REPLACE without a real key silently
	// degrades to INSERT, so it is refused.
	ErrMissingPrimaryKey = errors.New("sheetsql: missing primary key")

	// ErrInvalidEntityKind indicates a DROP was requested for something other
	// than TABLE or VIEW.
	ErrInvalidEntityKind = errors.New("sheetsql: invalid entity kind")

	// ErrTableNotFound indicates the upsert target table does not exist in
	// the database.
	ErrTableNotFound = errors.New("sheetsql: table not found")

	// ErrUnsupportedFormat indicates an unsupported export file format.
	ErrUnsupportedFormat = errors.New("sheetsql: unsupported export format")

	// errQuoteInIdentifier is returned when a configured table or column name
	// contains a quoting character. Identifiers are quoted but never escaped,
	// so such names are rejected at configuration load.
	errQuoteInIdentifier = errors.New("identifier contains a quote character")
)

// ErrorContext provides context for where an error occurred.
type ErrorContext struct {
	Operation string
	TableName string
	Details   string
}

// NewErrorContext creates a new error context for an operation.
func NewErrorContext(operation string) *ErrorContext {
	return &ErrorContext{Operation: operation}
}

// WithTable adds table context to the error.
func (ec *ErrorContext) WithTable(tableName string) *ErrorContext {
	ec.TableName = tableName
	return ec
}

// WithDetails adds details to the error context.
func (ec *ErrorContext) WithDetails(details string) *ErrorContext {
	ec.Details = details
	return ec
}

// Error creates a formatted error with context.
func (ec *ErrorContext) Error(baseErr error) error {
	parts := []string{fmt.Sprintf("sheetsql: %s failed", ec.Operation)}

	if ec.TableName != "" {
		parts = append(parts, "table: "+ec.TableName)
	}
	if ec.Details != "" {
		parts = append(parts, "details: "+ec.Details)
	}

	context := strings.Join(parts, ", ")
	if baseErr != nil {
		return fmt.Errorf("%s: %w", context, baseErr)
	}
	return fmt.Errorf("%s", context)
}
