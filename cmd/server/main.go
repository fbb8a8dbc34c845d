package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/guiagents/harness/internal/config"
	"github.com/guiagents/harness/internal/server"
	"github.com/guiagents/harness/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults")
	}

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.toml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.ApplyEnv()

	st, err := store.NewSQLiteStore(cfg.Registry.Path)
	if err != nil {
		log.Fatalf("Failed to open run registry: %v", err)
	}
	defer st.Close()

	srv := server.NewServer(cfg, st)
	r := srv.SetupRouter()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting server on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal(err)
	}
}
