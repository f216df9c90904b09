package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/piwi3910/StowPlan/internal/model"
)

// ArchiveVersion is written into every job archive.
const ArchiveVersion = "1.0.0"

// JobArchive bundles a placement job's input and result in one file.
type JobArchive struct {
	Version   string                 `json:"version"`
	CreatedAt string                 `json:"created_at"`
	JobID     string                 `json:"job_id"`
	Request   model.PlacementRequest `json:"request"`
	Output    model.PlacementOutput  `json:"output"`
}

// ArchivePath returns the archive file name for a job inside dir.
func ArchivePath(dir, jobID string) string {
	return filepath.Join(dir, "job-"+jobID+".json")
}

// ExportJobArchive writes the request and output of a job to exportPath.
func ExportJobArchive(exportPath, jobID string, req model.PlacementRequest, out model.PlacementOutput) error {
	archive := JobArchive{
		Version:   ArchiveVersion,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		JobID:     jobID,
		Request:   req,
		Output:    out,
	}
	data, err := json.MarshalIndent(archive, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal job archive: %w", err)
	}

	dir := filepath.Dir(exportPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	if err := os.WriteFile(exportPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write job archive: %w", err)
	}
	return nil
}

// ImportJobArchive reads a job archive written by ExportJobArchive.
func ImportJobArchive(importPath string) (JobArchive, error) {
	data, err := os.ReadFile(importPath)
	if err != nil {
		return JobArchive{}, fmt.Errorf("failed to read job archive: %w", err)
	}
	var archive JobArchive
	if err := json.Unmarshal(data, &archive); err != nil {
		return JobArchive{}, fmt.Errorf("failed to parse job archive: %w", err)
	}
	if archive.Version == "" {
		return JobArchive{}, fmt.Errorf("invalid job archive: missing version field")
	}
	if archive.JobID == "" {
		return JobArchive{}, fmt.Errorf("invalid job archive: missing job_id field")
	}
	return archive, nil
}
