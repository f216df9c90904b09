package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/piwi3910/StowPlan/internal/model"
)

// writeJSON writes v as indented JSON, creating parent directories.
func writeJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// SaveRequest writes a placement request to the specified JSON file.
func SaveRequest(path string, req model.PlacementRequest) error {
	return writeJSON(path, req)
}

// LoadRequest reads a placement request from the specified JSON file.
func LoadRequest(path string) (model.PlacementRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.PlacementRequest{}, err
	}
	var req model.PlacementRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return model.PlacementRequest{}, fmt.Errorf("failed to parse request %s: %w", path, err)
	}
	return req, nil
}

// SaveOutput writes a placement output to the specified JSON file.
func SaveOutput(path string, out model.PlacementOutput) error {
	return writeJSON(path, out)
}

// LoadOutput reads a placement output from the specified JSON file.
func LoadOutput(path string) (model.PlacementOutput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.PlacementOutput{}, err
	}
	var out model.PlacementOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return model.PlacementOutput{}, fmt.Errorf("failed to parse output %s: %w", path, err)
	}
	return out, nil
}

// MergeRequest adds the items and containers of imported to existing.
// Items and containers whose IDs are already present are skipped.
// Occupancy is taken from existing only.
func MergeRequest(existing, imported model.PlacementRequest) model.PlacementRequest {
	itemIDs := make(map[string]bool, len(existing.Items))
	for _, it := range existing.Items {
		itemIDs[it.ID] = true
	}
	containerIDs := make(map[string]bool, len(existing.Containers))
	for _, c := range existing.Containers {
		containerIDs[c.ID] = true
	}

	for _, it := range imported.Items {
		if !itemIDs[it.ID] {
			existing.Items = append(existing.Items, it)
			itemIDs[it.ID] = true
		}
	}
	for _, c := range imported.Containers {
		if !containerIDs[c.ID] {
			existing.Containers = append(existing.Containers, c)
			containerIDs[c.ID] = true
		}
	}
	return existing
}
