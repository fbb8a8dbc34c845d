package dataset

import (
	"fmt"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/memory"
	"github.com/apache/arrow/go/v15/parquet/file"
	"github.com/apache/arrow/go/v15/parquet/pqarrow"
)

// Field describes a single column as it exists on disk, before any coercion.
type Field struct {
	Name     string
	Type     string
	Nullable bool
}

// Schema is the per-file column descriptor read from parquet metadata. The
// GUI-R1 parquet pack is heterogeneous (gt_bbox is int64 in some files and
// double in others; a few files carry extra columns), so every load starts by
// reading the physical schema and deciding how each column is coerced.
type Schema struct {
	Fields []Field
}

func (s Schema) Columns() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ReadSchema reads only the parquet metadata, not the row data.
func ReadSchema(path string) (Schema, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return Schema{}, fmt.Errorf("failed to open parquet file '%s': %w", path, err)
	}
	defer rdr.Close()

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return Schema{}, fmt.Errorf("failed to create arrow reader for '%s': %w", path, err)
	}

	arrowSchema, err := fr.Schema()
	if err != nil {
		return Schema{}, fmt.Errorf("failed to read schema of '%s': %w", path, err)
	}

	return fromArrowSchema(arrowSchema), nil
}

func fromArrowSchema(s *arrow.Schema) Schema {
	out := Schema{Fields: make([]Field, 0, len(s.Fields()))}
	for _, f := range s.Fields() {
		out.Fields = append(out.Fields, Field{
			Name:     f.Name,
			Type:     f.Type.String(),
			Nullable: f.Nullable,
		})
	}
	return out
}
