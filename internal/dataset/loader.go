package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
	"github.com/apache/arrow/go/v15/arrow/memory"
	"github.com/apache/arrow/go/v15/parquet/file"
	"github.com/apache/arrow/go/v15/parquet/pqarrow"
)

// LoadFile reads one parquet file and coerces every row to the unified
// Record layout. Coercion rules follow the dataset pack's conventions:
//   - "image" is raw binary, or the {bytes, path} struct encoding some
//     export pipelines produce; either way the raw bytes are kept.
//   - "gt_bbox" is a list of numbers; int64 and float32 files are widened
//     to float64. A NULL bbox stays nil so stats can tell absent from empty.
//   - every other column becomes a string ("" for NULL).
func LoadFile(ctx context.Context, path string) (*Dataset, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file '%s': %w", path, err)
	}
	defer rdr.Close()

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("failed to create arrow reader for '%s': %w", path, err)
	}

	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read table from '%s': %w", path, err)
	}
	defer tbl.Release()

	schema := fromArrowSchema(tbl.Schema())
	records := make([]Record, int(tbl.NumRows()))

	for c := 0; c < int(tbl.NumCols()); c++ {
		name := tbl.Schema().Field(c).Name
		row := 0
		for _, chunk := range tbl.Column(c).Data().Chunks() {
			for i := 0; i < chunk.Len(); i++ {
				assign(&records[row], name, chunk, i)
				row++
			}
		}
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &Dataset{
		Name:    stem,
		Path:    path,
		Columns: schema.Columns(),
		Schema:  schema,
		Records: records,
	}, nil
}

// LoadDir loads every *.parquet file under dir in sorted order, or just one
// when only names a file stem. A file that fails to load does not abort the
// scan; its error is returned in the second value keyed by stem.
func LoadDir(ctx context.Context, dir string, only string) ([]*Dataset, map[string]error, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read data dir '%s': %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".parquet") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	if only != "" && only != "all" {
		want := only + ".parquet"
		found := false
		for _, n := range names {
			if n == want {
				found = true
				break
			}
		}
		if !found {
			return nil, nil, fmt.Errorf("dataset '%s' not found in %s (available: %s)",
				only, dir, strings.Join(stems(names), ", "))
		}
		names = []string{want}
	}

	var datasets []*Dataset
	errs := map[string]error{}
	for _, n := range names {
		ds, err := LoadFile(ctx, filepath.Join(dir, n))
		if err != nil {
			errs[strings.TrimSuffix(n, ".parquet")] = err
			continue
		}
		datasets = append(datasets, ds)
	}
	return datasets, errs, nil
}

func stems(files []string) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = strings.TrimSuffix(f, ".parquet")
	}
	return out
}

func assign(r *Record, col string, a arrow.Array, i int) {
	switch col {
	case ColImage:
		r.Image = imageBytes(a, i)
	case ColGTBbox:
		r.GTBbox = bboxFloats(a, i)
	case ColInstruction:
		r.Instruction = stringify(a, i)
	case ColGTAction:
		r.GTAction = stringify(a, i)
	case ColHistory:
		r.History = stringify(a, i)
	case ColTaskType:
		r.TaskType = stringify(a, i)
	case ColGroup:
		r.Group = stringify(a, i)
	default:
		if r.Extra == nil {
			r.Extra = map[string]string{}
		}
		r.Extra[col] = stringify(a, i)
	}
}

func imageBytes(a arrow.Array, i int) []byte {
	if a.IsNull(i) {
		return nil
	}
	switch v := a.(type) {
	case *array.Binary:
		return append([]byte(nil), v.Value(i)...)
	case *array.LargeBinary:
		return append([]byte(nil), v.Value(i)...)
	case *array.FixedSizeBinary:
		return append([]byte(nil), v.Value(i)...)
	case *array.String:
		return []byte(v.Value(i))
	case *array.Struct:
		// HF datasets encode images as struct<bytes: binary, path: string>.
		st, ok := v.DataType().(*arrow.StructType)
		if !ok {
			return nil
		}
		idx, ok := st.FieldIdx("bytes")
		if !ok {
			return nil
		}
		return imageBytes(v.Field(idx), i)
	}
	return nil
}

func bboxFloats(a arrow.Array, i int) []float64 {
	if a.IsNull(i) {
		return nil
	}
	switch v := a.(type) {
	case *array.List:
		start, end := v.ValueOffsets(i)
		return floatRange(v.ListValues(), start, end)
	case *array.LargeList:
		start, end := v.ValueOffsets(i)
		return floatRange(v.ListValues(), start, end)
	case *array.FixedSizeList:
		// ListValues is the full child array, so a sliced parent's data
		// offset shifts where row i's values start.
		n := int64(v.DataType().(*arrow.FixedSizeListType).Len())
		start := int64(v.Data().Offset()+i) * n
		return floatRange(v.ListValues(), start, start+n)
	}
	return nil
}

func floatRange(values arrow.Array, start, end int64) []float64 {
	out := make([]float64, 0, end-start)
	for j := start; j < end; j++ {
		i := int(j)
		if values.IsNull(i) {
			out = append(out, 0)
			continue
		}
		switch v := values.(type) {
		case *array.Float64:
			out = append(out, v.Value(i))
		case *array.Float32:
			out = append(out, float64(v.Value(i)))
		case *array.Int64:
			out = append(out, float64(v.Value(i)))
		case *array.Int32:
			out = append(out, float64(v.Value(i)))
		default:
			out = append(out, 0)
		}
	}
	return out
}

func stringify(a arrow.Array, i int) string {
	if a.IsNull(i) {
		return ""
	}
	switch v := a.(type) {
	case *array.String:
		return v.Value(i)
	case *array.LargeString:
		return v.Value(i)
	case *array.Int64:
		return strconv.FormatInt(v.Value(i), 10)
	case *array.Int32:
		return strconv.FormatInt(int64(v.Value(i)), 10)
	case *array.Float64:
		return strconv.FormatFloat(v.Value(i), 'g', -1, 64)
	case *array.Float32:
		return strconv.FormatFloat(float64(v.Value(i)), 'g', -1, 32)
	case *array.Boolean:
		return strconv.FormatBool(v.Value(i))
	}
	// Timestamps and anything else exotic fall back to the array's own
	// string encoding.
	if vs, ok := a.(interface{ ValueStr(int) string }); ok {
		return vs.ValueStr(i)
	}
	return fmt.Sprintf("<%s>", a.DataType())
}
