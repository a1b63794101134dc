// Package sheetsql converts XLSX worksheets into SQLite tables and views.
//
// A run is driven by an INI configuration file that names the workbook, the
// database file, the worksheets to import and the per-table schema options
// (primary key, unique and not-null columns, header row). Column types are
// inferred from the first data row of each worksheet and the generated
// CREATE TABLE IF NOT EXISTS statements are idempotent, so re-running an
// import against an existing database is safe.
//
// The package exposes three layers:
//
//   - pure schema and SQL text building (BuildSchema, CreateTableSQL,
//     InsertSQL, ReplaceSQL and friends), usable without a database;
//   - worksheet I/O on top of excelize (ReadWorksheet, WriteWorksheet) and
//     the Dataset container;
//   - the Session/Controller pair that applies the generated SQL inside
//     scoped transactions and exports views back out to tabular formats.
//
// The cmd/sheetsql command wires these layers into a CLI.
package sheetsql
