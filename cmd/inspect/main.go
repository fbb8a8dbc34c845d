// Command inspect loads the parquet dataset pack, reconciling each file's
// schema to the unified record layout, and reports what it found: row counts,
// columns, missing values, instruction lengths, and (optionally) decoded
// samples per file with the binary image data masked. Samples are taken
// sequentially by default; -num-samples and -random show several per dataset.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/guiagents/harness/internal/dataset"
)

func main() {
	dataDir := flag.String("data-dir", "datasets/GUI-R1", "Directory containing the parquet files")
	only := flag.String("dataset", "all", "Specific dataset stem to load, or \"all\"")
	verbose := flag.Bool("verbose", false, "Show schema and sample data")
	sampleIndex := flag.Int("sample-index", 0, "Index of the sample to show")
	numSamples := flag.Int("num-samples", 1, "Number of samples to show from each dataset")
	randomSel := flag.Bool("random", false, "Select random samples instead of sequential ones")
	seed := flag.Int64("seed", 0, "Seed for -random (0 seeds from the current time)")
	saveJSON := flag.Bool("save-json", false, "Save samples to a JSON file")
	jsonPath := flag.String("json-path", "samples.json", "Path of the JSON file to write")
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))
	multi := *numSamples > 1 || *randomSel

	ctx := context.Background()
	datasets, loadErrs, err := dataset.LoadDir(ctx, *dataDir, *only)
	if err != nil {
		log.Fatalf("%v", err)
	}

	fmt.Printf("Found %d parquet files in %s\n", len(datasets)+len(loadErrs), *dataDir)
	if multi {
		fmt.Printf("Showing %d samples from each dataset\n", *numSamples)
	}

	samples := map[string]interface{}{}
	for _, ds := range datasets {
		fmt.Printf("\nProcessing %s.parquet...\n", ds.Name)
		fmt.Printf("Successfully loaded %s dataset with %d examples\n", ds.Name, ds.Len())

		if *verbose {
			fmt.Printf("Schema for %s:\n", ds.Name)
			for _, f := range ds.Schema.Fields {
				fmt.Printf("  %s: %s\n", f.Name, f.Type)
			}
		}

		if multi {
			var collected []map[string]interface{}
			for _, idx := range dataset.SampleIndices(rng, ds.Len(), *numSamples, *randomSel) {
				s := ds.Sample(idx)
				fmt.Printf("Sample #%d:\n", idx)
				fmt.Println(strings.Repeat("-", 40))
				printSample(s)
				fmt.Println()
				collected = append(collected, s)
			}
			if len(collected) > 0 {
				samples[ds.Name] = collected
			}
		} else {
			if s := ds.Sample(*sampleIndex); s != nil {
				if *verbose {
					fmt.Printf("Sample %d from %s:\n", *sampleIndex, ds.Name)
					printSample(s)
				}
				samples[ds.Name] = s
			}
		}

		analyze(ds)
	}

	for stem, lerr := range loadErrs {
		fmt.Printf("\nError loading %s: %v\n", stem, lerr)
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 80))
	fmt.Println("SUMMARY OF LOADED DATASETS")
	fmt.Println(strings.Repeat("=", 80))
	for _, ds := range datasets {
		fmt.Printf("%s: %d examples, columns: %s\n", ds.Name, ds.Len(), strings.Join(ds.Columns, ", "))
	}
	for _, stem := range sortedKeys(loadErrs) {
		fmt.Printf("%s: Failed to load\n", stem)
	}

	if *saveJSON {
		data, err := json.MarshalIndent(samples, "", "  ")
		if err != nil {
			log.Fatalf("Failed to encode samples: %v", err)
		}
		if err := os.WriteFile(*jsonPath, data, 0o644); err != nil {
			log.Fatalf("Failed to write %s: %v", *jsonPath, err)
		}
		fmt.Printf("\nSaved samples to %s\n", *jsonPath)
	}
}

func analyze(ds *dataset.Dataset) {
	st := dataset.Analyze(ds)
	fmt.Printf("Analysis of %s dataset:\n", ds.Name)
	fmt.Printf("  - Number of examples: %d\n", st.Rows)
	fmt.Printf("  - Columns: %s\n", strings.Join(st.Columns, ", "))
	for _, m := range st.Missing {
		fmt.Printf("  - Missing values in '%s': %d (%.2f%%)\n", m.Column, m.Missing, m.MissingPct)
	}
	if st.InstructionLen != nil {
		fmt.Printf("  - Instruction length: avg=%.1f, min=%d, max=%d\n",
			st.InstructionLen.Avg, st.InstructionLen.Min, st.InstructionLen.Max)
	}
}

func printSample(s map[string]interface{}) {
	for _, k := range sortedKeys(s) {
		fmt.Printf("  %s: %v\n", k, s[k])
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
