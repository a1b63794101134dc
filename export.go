package sheetsql

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// ExportFormat represents the output file format for ExportView.
type ExportFormat int

const (
	// ExportFormatCSV represents comma-separated output
	ExportFormatCSV ExportFormat = iota
	// ExportFormatTSV represents tab-separated output
	ExportFormatTSV
	// ExportFormatJSON represents a JSON array of row objects
	ExportFormatJSON
	// ExportFormatYAML represents a YAML sequence of row mappings
	ExportFormatYAML
	// ExportFormatXLSX represents an Excel workbook with one sheet
	ExportFormatXLSX
	// ExportFormatParquet represents Apache Parquet columnar output
	ExportFormatParquet
)

// String returns the string representation of ExportFormat.
func (f ExportFormat) String() string {
	switch f {
	case ExportFormatCSV:
		return "csv"
	case ExportFormatTSV:
		return "tsv"
	case ExportFormatJSON:
		return "json"
	case ExportFormatYAML:
		return "yaml"
	case ExportFormatXLSX:
		return "xlsx"
	case ExportFormatParquet:
		return "parquet"
	default:
		return "csv"
	}
}

// Extension returns the file extension for the format.
func (f ExportFormat) Extension() string {
	return "." + f.String()
}

// ParseExportFormat maps a format name to an ExportFormat. Unknown names,
// including formats with no writer support such as dbf, return
// ErrUnsupportedFormat.
func ParseExportFormat(name string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "csv", "":
		return ExportFormatCSV, nil
	case "tsv":
		return ExportFormatTSV, nil
	case "json":
		return ExportFormatJSON, nil
	case "yaml", "yml":
		return ExportFormatYAML, nil
	case "xlsx":
		return ExportFormatXLSX, nil
	case "parquet":
		return ExportFormatParquet, nil
	default:
		return ExportFormatCSV, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

// CompressionType represents optional compression of the export output.
type CompressionType int

const (
	// CompressionNone represents no compression
	CompressionNone CompressionType = iota
	// CompressionGZ represents gzip compression
	CompressionGZ
	// CompressionXZ represents xz compression
	CompressionXZ
	// CompressionZSTD represents zstd compression
	CompressionZSTD
)

// DetectCompressionType detects the compression type from a file path.
func DetectCompressionType(path string) CompressionType {
	switch {
	case strings.HasSuffix(strings.ToLower(path), ".gz"):
		return CompressionGZ
	case strings.HasSuffix(strings.ToLower(path), ".xz"):
		return CompressionXZ
	case strings.HasSuffix(strings.ToLower(path), ".zst"):
		return CompressionZSTD
	default:
		return CompressionNone
	}
}

// newCompressedWriter wraps a writer with the matching compressor. The
// returned cleanup flushes and closes the compressor, not the underlying
// writer.
func newCompressedWriter(w io.Writer, compression CompressionType) (io.Writer, func() error, error) {
	switch compression {
	case CompressionNone:
		return w, func() error { return nil }, nil
	case CompressionGZ:
		gzWriter := gzip.NewWriter(w)
		return gzWriter, gzWriter.Close, nil
	case CompressionXZ:
		xzWriter, err := xz.NewWriter(w)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create xz writer: %w", err)
		}
		return xzWriter, xzWriter.Close, nil
	case CompressionZSTD:
		zstdWriter, err := zstd.NewWriter(w)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return zstdWriter, zstdWriter.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported compression type for writing: %v", compression)
	}
}

// ExportView queries a view (or table) and writes all of its rows to
// outputPath in the requested format. An output path ending in .gz, .xz or
// .zst compresses the payload.
func (c *Controller) ExportView(ctx context.Context, name string, format ExportFormat, outputPath string) (err error) {
	dataset, err := c.SelectAll(ctx, name, "")
	if err != nil {
		return err
	}

	file, err := os.Create(outputPath) //nolint:gosec // User-provided path is necessary for file operations
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	writer, cleanup, err := newCompressedWriter(file, DetectCompressionType(outputPath))
	if err != nil {
		return err
	}
	defer func() {
		if cleanupErr := cleanup(); cleanupErr != nil && err == nil {
			err = cleanupErr
		}
	}()

	return writeDataset(writer, dataset, format)
}

func writeDataset(w io.Writer, dataset *Dataset, format ExportFormat) error {
	switch format {
	case ExportFormatCSV:
		return writeDelimited(w, dataset, ',')
	case ExportFormatTSV:
		return writeDelimited(w, dataset, '\t')
	case ExportFormatJSON:
		return writeJSON(w, dataset)
	case ExportFormatYAML:
		return writeYAML(w, dataset)
	case ExportFormatXLSX:
		return writeXLSX(w, dataset)
	case ExportFormatParquet:
		return writeParquet(w, dataset)
	default:
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
	}
}

// cellString renders a cell for delimited text output. NULL becomes the
// empty string.
func cellString(cell Cell) string {
	switch value := cell.(type) {
	case nil:
		return ""
	case string:
		return value
	case int64:
		return strconv.FormatInt(value, 10)
	case float64:
		return strconv.FormatFloat(value, 'g', -1, 64)
	case time.Time:
		return value.Format(time.DateTime)
	case []byte:
		return string(value)
	default:
		return fmt.Sprintf("%v", value)
	}
}

func writeDelimited(w io.Writer, dataset *Dataset, comma rune) error {
	csvWriter := csv.NewWriter(w)
	csvWriter.Comma = comma
	if err := csvWriter.Write(dataset.Headers()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, record := range dataset.Rows() {
		row := make([]string, len(record))
		for i, cell := range record {
			row[i] = cellString(cell)
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

// rowMaps converts the dataset into one map per row for the document
// formats. Cells keep their scalar types.
func rowMaps(dataset *Dataset) []map[string]any {
	headers := dataset.Headers()
	out := make([]map[string]any, 0, dataset.Len())
	for _, record := range dataset.Rows() {
		row := make(map[string]any, len(headers))
		for i, name := range headers {
			if i < len(record) {
				row[name] = record[i]
			} else {
				row[name] = nil
			}
		}
		out = append(out, row)
	}
	return out
}

func writeJSON(w io.Writer, dataset *Dataset) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(rowMaps(dataset)); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func writeYAML(w io.Writer, dataset *Dataset) error {
	encoder := yaml.NewEncoder(w)
	defer func() {
		_ = encoder.Close()
	}()
	if err := encoder.Encode(rowMaps(dataset)); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return nil
}

func writeXLSX(w io.Writer, dataset *Dataset) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	sheet := dataset.Name()
	if sheet == "" {
		sheet = "Sheet1"
	}
	f.SetSheetName("Sheet1", sheet)

	headerCells := make([]any, len(dataset.Headers()))
	for i, name := range dataset.Headers() {
		headerCells[i] = name
	}
	cellRef, err := excelize.CoordinatesToCellName(1, 1)
	if err != nil {
		return fmt.Errorf("failed to compute cell reference: %w", err)
	}
	if err := f.SetSheetRow(sheet, cellRef, &headerCells); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}
	for i, record := range dataset.Rows() {
		cells := make([]any, len(record))
		for j, cell := range record {
			cells[j] = cell
		}
		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to compute cell reference: %w", err)
		}
		if err := f.SetSheetRow(sheet, cellRef, &cells); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// arrowType maps a column's storage affinity onto an Arrow type. TIMESTAMP
// and BLOB columns are exported as strings.
func arrowType(storage StorageType) arrow.DataType {
	switch storage {
	case StorageInteger:
		return arrow.PrimitiveTypes.Int64
	case StorageReal:
		return arrow.PrimitiveTypes.Float64
	default:
		return arrow.BinaryTypes.String
	}
}

func writeParquet(w io.Writer, dataset *Dataset) error {
	headers := dataset.Headers()
	storages := make([]StorageType, len(headers))
	fields := make([]arrow.Field, len(headers))
	firstRow, err := dataset.FirstRow()
	if err != nil {
		// An empty dataset still produces a valid file with string columns.
		firstRow = make(Record, len(headers))
	}
	for i, name := range headers {
		var sample Cell
		if i < len(firstRow) {
			sample = firstRow[i]
		}
		storages[i] = ResolveAffinity(sample)
		fields[i] = arrow.Field{Name: name, Type: arrowType(storages[i]), Nullable: true}
	}

	schema := arrow.NewSchema(fields, nil)
	builder := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer builder.Release()

	for _, record := range dataset.Rows() {
		for i := range headers {
			var cell Cell
			if i < len(record) {
				cell = record[i]
			}
			appendArrowCell(builder.Field(i), cell)
		}
	}

	arrowRecord := builder.NewRecord()
	defer arrowRecord.Release()

	table := array.NewTableFromRecords(schema, []arrow.Record{arrowRecord})
	defer table.Release()

	rows := int64(dataset.Len())
	if rows == 0 {
		rows = 1
	}
	if err := pqarrow.WriteTable(table, w, rows, nil, pqarrow.DefaultWriterProps()); err != nil {
		return fmt.Errorf("failed to write parquet data: %w", err)
	}
	return nil
}

func appendArrowCell(b array.Builder, cell Cell) {
	if cell == nil {
		b.AppendNull()
		return
	}
	switch builder := b.(type) {
	case *array.Int64Builder:
		if value, ok := cell.(int64); ok {
			builder.Append(value)
		} else {
			builder.AppendNull()
		}
	case *array.Float64Builder:
		switch value := cell.(type) {
		case float64:
			builder.Append(value)
		case int64:
			builder.Append(float64(value))
		default:
			builder.AppendNull()
		}
	case *array.StringBuilder:
		builder.Append(cellString(cell))
	default:
		b.AppendNull()
	}
}
