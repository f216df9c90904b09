// StowPlan - 3D container loading planner
//
// Places cargo items into zoned storage containers, relocating lower
// priority items when a high priority item would otherwise miss its
// preferred zone. Runs one-shot from JSON files or as a queue worker
// against SQLite or PostgreSQL.
//
// Build:
//
//	go build -o stowplan ./cmd/stowplan
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/piwi3910/StowPlan/internal/model"
	"github.com/piwi3910/StowPlan/internal/project"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", project.DefaultConfigPath(), "Configuration file (.json or .yaml)")
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	command := flag.Arg(0)
	args := flag.Args()[1:]

	if command == "version" {
		fmt.Printf("stowplan version %s\n", version)
		return
	}
	if command == "help" {
		printUsage()
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Unable to load configuration: %v", err)
	}

	if err := run(cfg, command, args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run dispatches a subcommand. Output meant for the user goes to stdout.
func run(cfg model.AppConfig, command string, args []string, stdout io.Writer) error {
	switch command {
	case "place":
		return handlePlace(cfg, args, stdout)
	case "compare":
		return handleCompare(cfg, args, stdout)
	case "enqueue":
		return handleEnqueue(cfg, args, stdout)
	case "status":
		return handleStatus(cfg, args, stdout)
	case "worker":
		return handleWorker(cfg, args)
	case "migrate":
		return handleMigrate(cfg, stdout)
	case "export":
		return handleExport(args, stdout)
	case "import":
		return handleImport(args, stdout)
	case "config":
		return handleConfig(cfg, args, stdout)
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

// loadConfig reads the config file and applies environment overrides.
// A missing file yields the defaults.
func loadConfig(path string) (model.AppConfig, error) {
	cfg, err := project.LoadAppConfig(path)
	if err != nil {
		return cfg, err
	}
	if err := project.ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newLogger(component string) *log.Logger {
	return log.New(os.Stderr, "["+component+"] ", log.LstdFlags)
}

func printUsage() {
	fmt.Println(`stowplan - 3D container loading planner

Usage: stowplan [-config <file>] <command> [options]

Commands:
  place      Compute placements for a request file
  compare    Run a request under several settings and compare results
  enqueue    Submit a request file to the job queue
  status     Show the state and result of a queued job
  worker     Process queued jobs until interrupted
  migrate    Apply database migrations
  export     Render a result as pdf, labels, xlsx or dxf
  import     Build a request file from an Excel workbook
  config     Print or write the effective configuration
  version    Show stowplan version
  help       Show this help message

Environment:
  DATABASE_URL          PostgreSQL connection string (selects the postgres backend)
  STOWPLAN_SQLITE_PATH  SQLite database file
  STOWPLAN_WORKERS      Number of worker loops
  Variables may also be set in a .env file in the working directory.

Examples:
  stowplan place -in request.json -out result.json
  stowplan export -in result.json -request request.json -format pdf -out load.pdf
  stowplan enqueue -in request.json && stowplan worker`)
}
