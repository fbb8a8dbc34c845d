package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/guiagents/harness/internal/config"
	"github.com/guiagents/harness/internal/launcher"
	"github.com/guiagents/harness/internal/preflight"
	"github.com/guiagents/harness/internal/store"
)

func main() {
	configPath := flag.String("config", "config/config.toml", "Path to the harness config file")
	experiment := flag.String("experiment", "", "Override trainer.experiment_name")
	dryRun := flag.Bool("dry-run", false, "Print the trainer command line and environment, then exit")
	skipPreflight := flag.Bool("skip-preflight", false, "Launch even if preflight checks fail")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.ApplyEnv()
	if *experiment != "" {
		cfg.Trainer.ExperimentName = *experiment
	}

	if *dryRun {
		fmt.Println(cfg.Trainer.Python)
		for _, a := range launcher.BuildArgs(cfg) {
			fmt.Printf("  %s\n", a)
		}
		fmt.Println("environment:")
		for _, e := range launcher.BuildEnv(cfg) {
			fmt.Printf("  %s\n", e)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	ctx := context.Background()

	if !*skipPreflight {
		res := (&preflight.Runner{}).RunAll(ctx, cfg)
		for _, c := range res.Checks {
			mark := "ok"
			if !c.OK {
				mark = "FAIL"
			}
			if c.Detail != "" {
				log.Printf("preflight %-16s %s (%s)", c.Name, mark, c.Detail)
			} else {
				log.Printf("preflight %-16s %s", c.Name, mark)
			}
		}
		if !res.OK() {
			log.Fatalf("Preflight failed (%d checks); fix the environment or pass -skip-preflight", len(res.Failed()))
		}
	}

	st, err := store.NewSQLiteStore(cfg.Registry.Path)
	if err != nil {
		log.Fatalf("Failed to open run registry: %v", err)
	}
	defer st.Close()

	l := &launcher.Launcher{Store: st}
	run, err := l.Start(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to start trainer: %v", err)
	}
	log.Printf("Started run %s (pid %d), logging to %s", run.ID, run.PID, run.LogPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received %s, stopping trainer", sig)
		run.Stop()
	}()

	waitErr := run.Wait()
	status := run.Status()
	log.Printf("Run %s finished: %s", run.ID, status)
	if waitErr != nil {
		if code := run.ExitCode(); code != nil {
			os.Exit(*code)
		}
		os.Exit(1)
	}
}
