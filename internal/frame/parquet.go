package frame

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// rowGroupSize bounds the number of rows per Parquet row group.
const rowGroupSize = 64 * 1024

// ReaderAtSeeker is what the Parquet reader needs from its source; *os.File
// and *bytes.Reader both satisfy it.
type ReaderAtSeeker interface {
	io.ReaderAt
	io.Seeker
}

func arrowType(k Kind) arrow.DataType {
	switch k {
	case KindInt64:
		return arrow.PrimitiveTypes.Int64
	case KindFloat64:
		return arrow.PrimitiveTypes.Float64
	case KindString:
		return arrow.BinaryTypes.String
	case KindBool:
		return arrow.FixedWidthTypes.Boolean
	case KindTimestamp:
		return arrow.FixedWidthTypes.Timestamp_us
	}
	return nil
}

func kindOf(dt arrow.DataType) (Kind, bool) {
	switch dt.ID() {
	case arrow.INT64:
		return KindInt64, true
	case arrow.FLOAT64:
		return KindFloat64, true
	case arrow.STRING, arrow.LARGE_STRING:
		return KindString, true
	case arrow.BOOL:
		return KindBool, true
	case arrow.TIMESTAMP:
		return KindTimestamp, true
	}
	return 0, false
}

// arrowSchema returns the Arrow schema the frame is written with. Every field is
// nullable.
func (f *Frame) arrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, len(f.cols))
	for i, c := range f.cols {
		fields[i] = arrow.Field{Name: c.name, Type: arrowType(c.kind), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

func (f *Frame) record(mem memory.Allocator) (arrow.Record, error) {
	schema := f.arrowSchema()
	rb := array.NewRecordBuilder(mem, schema)
	defer rb.Release()
	rb.Reserve(f.rows)

	for i, c := range f.cols {
		switch b := rb.Field(i).(type) {
		case *array.Int64Builder:
			for _, v := range c.values {
				if v == nil {
					b.AppendNull()
				} else {
					b.Append(v.(int64))
				}
			}
		case *array.Float64Builder:
			for _, v := range c.values {
				if v == nil {
					b.AppendNull()
				} else {
					b.Append(v.(float64))
				}
			}
		case *array.StringBuilder:
			for _, v := range c.values {
				if v == nil {
					b.AppendNull()
				} else {
					b.Append(v.(string))
				}
			}
		case *array.BooleanBuilder:
			for _, v := range c.values {
				if v == nil {
					b.AppendNull()
				} else {
					b.Append(v.(bool))
				}
			}
		case *array.TimestampBuilder:
			for _, v := range c.values {
				if v == nil {
					b.AppendNull()
				} else {
					b.Append(arrow.Timestamp(v.(time.Time).UnixMicro()))
				}
			}
		default:
			return nil, fmt.Errorf("frame: column %q: no builder for %s", c.name, c.kind)
		}
	}
	return rb.NewRecord(), nil
}

// WriteParquet encodes f as a Snappy-compressed Parquet file. The Arrow
// schema is stored in the file footer so kinds and nullability survive a
// round trip.
func WriteParquet(w io.Writer, f *Frame) error {
	if f.NumCols() == 0 {
		return fmt.Errorf("frame: cannot write a frame without columns")
	}
	mem := memory.DefaultAllocator

	rec, err := f.record(mem)
	if err != nil {
		return err
	}
	defer rec.Release()

	tbl := array.NewTableFromRecords(rec.Schema(), []arrow.Record{rec})
	defer tbl.Release()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithAllocator(mem),
	)
	arrProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	if err := pqarrow.WriteTable(tbl, w, rowGroupSize, props, arrProps); err != nil {
		return fmt.Errorf("frame: write parquet: %w", err)
	}
	return nil
}

// ReadParquet decodes a Parquet file written by WriteParquet (or any file
// whose columns map onto the supported kinds).
func ReadParquet(ctx context.Context, r ReaderAtSeeker) (*Frame, error) {
	mem := memory.DefaultAllocator
	tbl, err := pqarrow.ReadTable(ctx, r, parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, fmt.Errorf("frame: read parquet: %w", err)
	}
	defer tbl.Release()

	cols := make([]*Column, 0, tbl.NumCols())
	for i := 0; i < int(tbl.NumCols()); i++ {
		col := tbl.Column(i)
		kind, ok := kindOf(col.DataType())
		if !ok {
			return nil, fmt.Errorf("frame: column %q: unsupported type %s", col.Name(), col.DataType())
		}
		values := make([]any, 0, col.Len())
		for _, chunk := range col.Data().Chunks() {
			values, err = appendChunk(values, kind, chunk)
			if err != nil {
				return nil, fmt.Errorf("frame: column %q: %w", col.Name(), err)
			}
		}
		cols = append(cols, &Column{name: col.Name(), kind: kind, values: values})
	}
	return New(cols...)
}

func appendChunk(dst []any, kind Kind, chunk arrow.Array) ([]any, error) {
	n := chunk.Len()
	switch a := chunk.(type) {
	case *array.Int64:
		for j := 0; j < n; j++ {
			if a.IsNull(j) {
				dst = append(dst, nil)
			} else {
				dst = append(dst, a.Value(j))
			}
		}
	case *array.Float64:
		for j := 0; j < n; j++ {
			if a.IsNull(j) {
				dst = append(dst, nil)
			} else {
				dst = append(dst, a.Value(j))
			}
		}
	case *array.String:
		for j := 0; j < n; j++ {
			if a.IsNull(j) {
				dst = append(dst, nil)
			} else {
				dst = append(dst, a.Value(j))
			}
		}
	case *array.LargeString:
		for j := 0; j < n; j++ {
			if a.IsNull(j) {
				dst = append(dst, nil)
			} else {
				dst = append(dst, a.Value(j))
			}
		}
	case *array.Boolean:
		for j := 0; j < n; j++ {
			if a.IsNull(j) {
				dst = append(dst, nil)
			} else {
				dst = append(dst, a.Value(j))
			}
		}
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		for j := 0; j < n; j++ {
			if a.IsNull(j) {
				dst = append(dst, nil)
			} else {
				dst = append(dst, a.Value(j).ToTime(unit).UTC().Truncate(time.Microsecond))
			}
		}
	default:
		return nil, fmt.Errorf("unexpected %s array for %s", chunk.DataType(), kind)
	}
	return dst, nil
}
