package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/piwi3910/StowPlan/internal/engine"
	"github.com/piwi3910/StowPlan/internal/export"
	"github.com/piwi3910/StowPlan/internal/importer"
	"github.com/piwi3910/StowPlan/internal/jobs"
	"github.com/piwi3910/StowPlan/internal/model"
	"github.com/piwi3910/StowPlan/internal/project"
	"github.com/piwi3910/StowPlan/internal/worker"
	"gopkg.in/yaml.v3"
)

func handlePlace(cfg model.AppConfig, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("place", flag.ContinueOnError)
	in := fs.String("in", "", "Request file (required)")
	out := fs.String("out", "", "Result file (default: stdout)")
	archiveDir := fs.String("archive", "", "Also write a job archive to this directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("-in is required")
	}

	req, err := project.LoadRequest(*in)
	if err != nil {
		return err
	}

	placer := engine.New(cfg.Placement)
	placer.Logger = newLogger("placer")
	result, err := placer.ComputePlacements(req.Items, req.Containers, req.Occupancy)
	if err != nil {
		return err
	}

	if *archiveDir != "" {
		jobID := model.NewJobID()
		if err := project.ExportJobArchive(project.ArchivePath(*archiveDir, jobID), jobID, req, result); err != nil {
			return err
		}
	}

	if *out == "" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	if err := project.SaveOutput(*out, result); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Placed %d items, %d moves, %d failed\n",
		len(result.Placements), len(result.Rearrangements), len(result.FailedItemIDs))
	return nil
}

func handleCompare(cfg model.AppConfig, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("compare", flag.ContinueOnError)
	in := fs.String("in", "", "Request file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("-in is required")
	}

	req, err := project.LoadRequest(*in)
	if err != nil {
		return err
	}

	results, err := engine.CompareScenarios(engine.BuildDefaultScenarios(cfg.Placement), req)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tPLACED\tFAILED\tMOVES\tFILL")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.1f%%\n", r.Scenario.Name, r.Placed, r.Failed, r.Moves, r.FillPercent)
	}
	return tw.Flush()
}

func handleEnqueue(cfg model.AppConfig, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("enqueue", flag.ContinueOnError)
	in := fs.String("in", "", "Request file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("-in is required")
	}

	req, err := project.LoadRequest(*in)
	if err != nil {
		return err
	}

	ctx := context.Background()
	q, err := jobs.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer q.Close()

	jobID, err := q.Enqueue(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, jobID)
	return nil
}

func handleStatus(cfg model.AppConfig, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	jobID := fs.String("job", "", "Job ID (required)")
	out := fs.String("out", "", "Write the result to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *jobID == "" {
		return errors.New("-job is required")
	}

	ctx := context.Background()
	q, err := jobs.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer q.Close()

	job, err := q.Job(ctx, *jobID)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Job %s: %s (updated %s)\n", job.ID, job.Status, job.UpdatedAt.Format("2006-01-02 15:04:05"))
	if job.ErrorMessage != nil {
		fmt.Fprintf(stdout, "Error: %s\n", *job.ErrorMessage)
	}

	result, err := job.Output()
	if err != nil || result == nil {
		return err
	}
	if *out != "" {
		return project.SaveOutput(*out, *result)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func handleWorker(cfg model.AppConfig, args []string) error {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	once := fs.Bool("once", false, "Process at most one job and exit")
	workers := fs.Int("workers", cfg.Workers, "Number of worker loops")
	archiveDir := fs.String("archive", "", "Archive every finished job to this directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *workers < 1 {
		return fmt.Errorf("-workers must be at least 1, got %d", *workers)
	}
	cfg.Workers = *workers

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	q, err := jobs.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer q.Close()

	pool := worker.New(q, cfg, newLogger("worker"))
	pool.ArchiveDir = *archiveDir

	if *once {
		processed, err := pool.ProcessOne(ctx)
		if err != nil {
			return err
		}
		if !processed {
			pool.Logger.Printf("no pending job")
		}
		return nil
	}
	return pool.Run(ctx)
}

func handleMigrate(cfg model.AppConfig, stdout io.Writer) error {
	ctx := context.Background()
	// Opening a queue applies pending migrations.
	q, err := jobs.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer q.Close()

	if s, ok := q.(*jobs.SQLiteQueue); ok {
		v, dirty, err := s.MigrateVersion()
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "SQLite schema at version %d (dirty=%v)\n", v, dirty)
		return nil
	}
	fmt.Fprintln(stdout, "PostgreSQL schema applied")
	return nil
}

func handleExport(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	in := fs.String("in", "", "Result file (required)")
	requestPath := fs.String("request", "", "Request file supplying containers and items")
	format := fs.String("format", "pdf", "Output format: pdf, labels, xlsx or dxf")
	out := fs.String("out", "", "Output file (default: derived from -in)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("-in is required")
	}

	result, err := project.LoadOutput(*in)
	if err != nil {
		return err
	}
	var req model.PlacementRequest
	if *requestPath != "" {
		if req, err = project.LoadRequest(*requestPath); err != nil {
			return err
		}
	}

	path := *out
	if path == "" {
		path = exportPath(*in, *format)
	}

	switch *format {
	case "pdf":
		err = export.ExportPDF(path, result, req.Containers)
	case "labels":
		err = export.ExportLabels(path, result, req.Items, req.Containers)
	case "xlsx":
		err = export.ExportExcel(path, result, req.Containers)
	case "dxf":
		err = export.ExportDXF(path, result, req.Containers)
	default:
		return fmt.Errorf("unknown export format %q", *format)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s\n", path)
	return nil
}

// exportPath derives an output file name from the result file.
func exportPath(in, format string) string {
	base := strings.TrimSuffix(in, filepath.Ext(in))
	switch format {
	case "labels":
		return base + "-labels.pdf"
	default:
		return base + "." + format
	}
}

func handleImport(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	in := fs.String("in", "", "Excel workbook (required)")
	out := fs.String("out", "", "Request file to write; merged into when it exists (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return errors.New("-in and -out are required")
	}

	result := importer.ImportExcel(*in)
	for _, w := range result.Warnings {
		fmt.Fprintf(stdout, "warning: %s\n", w)
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("import failed: %s", strings.Join(result.Errors, "; "))
	}

	req := result.Request()
	if _, err := os.Stat(*out); err == nil {
		existing, err := project.LoadRequest(*out)
		if err != nil {
			return err
		}
		req = project.MergeRequest(existing, req)
	}

	if err := project.SaveRequest(*out, req); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Imported %d items and %d containers into %s\n", len(result.Items), len(result.Containers), *out)
	return nil
}

func handleConfig(cfg model.AppConfig, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	write := fs.String("write", "", "Write the effective configuration to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *write != "" {
		if err := project.SaveAppConfig(*write, cfg); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Wrote %s\n", *write)
		return nil
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = stdout.Write(data)
	return err
}
