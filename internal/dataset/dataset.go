package dataset

import "math/rand"

// Canonical column names of the GUI-R1 record layout. Anything else a file
// carries ends up in Record.Extra as a string.
const (
	ColImage       = "image"
	ColInstruction = "instruction"
	ColGTAction    = "gt_action"
	ColGTBbox      = "gt_bbox"
	ColHistory     = "history"
	ColTaskType    = "task_type"
	ColGroup       = "group"
)

// Record is one training example after coercion to the unified feature set:
// image as raw bytes, gt_bbox as float64s, everything else as strings.
type Record struct {
	Image       []byte
	Instruction string
	GTAction    string
	GTBbox      []float64
	History     string
	TaskType    string
	Group       string
	Extra       map[string]string
}

// Dataset is the in-memory result of loading one parquet file (or the
// concatenation of several). It is loader-local: nothing here persists.
type Dataset struct {
	Name    string
	Path    string
	Columns []string
	Schema  Schema
	Records []Record
}

func (d *Dataset) Len() int {
	return len(d.Records)
}

// HasColumn reports whether the dataset carries the named column.
func (d *Dataset) HasColumn(name string) bool {
	for _, c := range d.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Concat merges datasets into one, taking the union of their columns in
// first-seen order. Records from a dataset missing a column keep that
// column's zero value, which the stats pass then reports as missing.
func Concat(name string, parts ...*Dataset) *Dataset {
	out := &Dataset{Name: name}
	seen := map[string]bool{}
	for _, p := range parts {
		for _, c := range p.Columns {
			if !seen[c] {
				seen[c] = true
				out.Columns = append(out.Columns, c)
			}
		}
		out.Records = append(out.Records, p.Records...)
	}
	return out
}

// Sample returns record i as a display map: the binary image payload is
// replaced with a placeholder so samples can be printed or dumped to JSON.
func (d *Dataset) Sample(i int) map[string]interface{} {
	if i < 0 || i >= len(d.Records) {
		return nil
	}
	r := d.Records[i]

	out := map[string]interface{}{}
	for _, c := range d.Columns {
		switch c {
		case ColImage:
			out[c] = "<binary data>"
		case ColInstruction:
			out[c] = r.Instruction
		case ColGTAction:
			out[c] = r.GTAction
		case ColGTBbox:
			out[c] = r.GTBbox
		case ColHistory:
			out[c] = r.History
		case ColTaskType:
			out[c] = r.TaskType
		case ColGroup:
			out[c] = r.Group
		default:
			out[c] = r.Extra[c]
		}
	}
	return out
}

// SampleIndices picks which rows to display: the first min(n, total) rows,
// or n distinct random rows (without replacement) when randomize is set.
// The caller provides the rand source so selection is reproducible.
func SampleIndices(rng *rand.Rand, total, n int, randomize bool) []int {
	if n > total {
		n = total
	}
	if n <= 0 {
		return nil
	}
	if randomize {
		return rng.Perm(total)[:n]
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// missing reports whether record r has no value for the named column.
// The image column is never inspected here; binary presence is not a
// data-quality signal the stats pass cares about.
func (r Record) missing(col string) bool {
	switch col {
	case ColInstruction:
		return r.Instruction == ""
	case ColGTAction:
		return r.GTAction == ""
	case ColGTBbox:
		return r.GTBbox == nil
	case ColHistory:
		return r.History == ""
	case ColTaskType:
		return r.TaskType == ""
	case ColGroup:
		return r.Group == ""
	default:
		return r.Extra[col] == ""
	}
}
