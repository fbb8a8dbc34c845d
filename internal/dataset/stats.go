package dataset

// ColumnStat reports missing values for one column.
type ColumnStat struct {
	Column     string  `json:"column"`
	Missing    int     `json:"missing"`
	MissingPct float64 `json:"missing_pct"`
}

// LengthStats summarizes instruction text lengths.
type LengthStats struct {
	Avg float64 `json:"avg"`
	Min int     `json:"min"`
	Max int     `json:"max"`
}

type Stats struct {
	Rows           int          `json:"rows"`
	Columns        []string     `json:"columns"`
	Missing        []ColumnStat `json:"missing,omitempty"`
	InstructionLen *LengthStats `json:"instruction_len,omitempty"`
}

// Analyze computes per-column missing counts (the binary image column is
// skipped) and the instruction length distribution when present.
func Analyze(d *Dataset) Stats {
	st := Stats{Rows: d.Len(), Columns: d.Columns}

	for _, col := range d.Columns {
		if col == ColImage {
			continue
		}
		missing := 0
		for _, r := range d.Records {
			if r.missing(col) {
				missing++
			}
		}
		if missing > 0 {
			pct := 0.0
			if d.Len() > 0 {
				pct = float64(missing) / float64(d.Len()) * 100
			}
			st.Missing = append(st.Missing, ColumnStat{Column: col, Missing: missing, MissingPct: pct})
		}
	}

	if d.HasColumn(ColInstruction) && d.Len() > 0 {
		ls := LengthStats{Min: len(d.Records[0].Instruction), Max: len(d.Records[0].Instruction)}
		total := 0
		for _, r := range d.Records {
			n := len(r.Instruction)
			total += n
			if n < ls.Min {
				ls.Min = n
			}
			if n > ls.Max {
				ls.Max = n
			}
		}
		ls.Avg = float64(total) / float64(d.Len())
		st.InstructionLen = &ls
	}

	return st
}
