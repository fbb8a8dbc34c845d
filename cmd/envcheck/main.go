// Command envcheck verifies the training environment against the pinned
// dependency manifest. The wrapped trainer breaks in confusing ways when
// vllm or transformers drift from their pins; this fails fast instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/guiagents/harness/internal/manifest"
)

func main() {
	manifestPath := flag.String("manifest", "requirements.txt", "Pinned requirements manifest")
	python := flag.String("python", "python3", "Python interpreter of the training environment")
	installedPath := flag.String("installed", "", "Read 'pip list --format=json' output from a file instead of running pip")
	flag.Parse()

	reqs, err := manifest.ParseFile(*manifestPath)
	if err != nil {
		log.Fatalf("%v", err)
	}

	var installed map[string]string
	if *installedPath != "" {
		f, err := os.Open(*installedPath)
		if err != nil {
			log.Fatalf("%v", err)
		}
		installed, err = manifest.ParseInstalled(f)
		f.Close()
		if err != nil {
			log.Fatalf("%v", err)
		}
	} else {
		installed, err = manifest.FromPip(context.Background(), *python)
		if err != nil {
			log.Fatalf("%v", err)
		}
	}

	rep := manifest.Verify(reqs, installed)
	fmt.Printf("%d of %d pins satisfied\n", rep.Satisfied, len(reqs))
	for _, p := range rep.Problems {
		fmt.Printf("  %s\n", p)
	}
	if !rep.OK() {
		os.Exit(1)
	}
}
