package export

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/piwi3910/StowPlan/internal/model"
)

func buildTestItems() []model.Item {
	return []model.Item{
		{ID: "A1", Name: "Food Packet", Width: 40, Depth: 30, Height: 20, Priority: 80},
		{ID: "A2", Name: "Oxygen Cylinder", Width: 30, Depth: 40, Height: 30, Priority: 95},
		{ID: "A3", Name: "First Aid Kit", Width: 60, Depth: 85, Height: 30, Priority: 60},
	}
}

func TestExportLabels_CreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "labels.pdf")

	err := ExportLabels(path, buildTestOutput(), buildTestItems(), buildTestContainers())
	if err != nil {
		t.Fatalf("ExportLabels returned error: %v", err)
	}
	assertFile(t, path)
}

func TestExportLabels_NoPlacements(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "no_placements.pdf")

	out := model.PlacementOutput{Success: false, FailedItemIDs: []string{"X"}}
	if err := ExportLabels(path, out, nil, nil); err == nil {
		t.Fatal("expected error for output with no placements, got nil")
	}
}

func TestExportLabels_WithoutItemDetails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bare.pdf")

	if err := ExportLabels(path, buildTestOutput(), nil, nil); err != nil {
		t.Fatalf("ExportLabels returned error: %v", err)
	}
	assertFile(t, path)
}

func TestExportLabels_ManyItems(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "many_labels.pdf")

	// 35 placements span two label pages
	placements := make([]model.PlacementResult, 35)
	for i := range placements {
		placements[i] = model.PlacementResult{
			ItemID:      fmt.Sprintf("item-%03d", i),
			ContainerID: "C1",
			Position:    box(float64(i), 0, 0, float64(i)+1, 1, 1),
		}
	}

	out := model.PlacementOutput{Success: true, Placements: placements}
	if err := ExportLabels(path, out, nil, buildTestContainers()); err != nil {
		t.Fatalf("ExportLabels returned error: %v", err)
	}
	assertFile(t, path)
}

func TestCollectLabelInfos(t *testing.T) {
	labels := CollectLabelInfos(buildTestOutput(), buildTestItems(), buildTestContainers())

	if len(labels) != 4 {
		t.Fatalf("expected 4 labels, got %d", len(labels))
	}

	if labels[0].ItemID != "A1" || labels[0].Name != "Food Packet" {
		t.Errorf("unexpected first label: %+v", labels[0])
	}
	if labels[0].Zone != "Crew Quarters" {
		t.Errorf("expected zone 'Crew Quarters', got %q", labels[0].Zone)
	}
	if labels[0].Rotated {
		t.Error("expected first label not rotated")
	}

	// A2 is 30x40x30 nominal but placed as 40x30x30.
	if !labels[1].Rotated {
		t.Error("expected second label to be rotated")
	}

	// B1 is unknown to the item list.
	if labels[3].Name != "" || labels[3].Rotated {
		t.Errorf("expected bare label for unknown item, got %+v", labels[3])
	}
	if labels[3].ContainerID != "C2" || labels[3].Zone != "Airlock" {
		t.Errorf("unexpected container for fourth label: %+v", labels[3])
	}
}

func TestLabelInfo_QRPayload(t *testing.T) {
	labels := CollectLabelInfos(buildTestOutput(), buildTestItems(), nil)

	data, err := json.Marshal(labels[2])
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if payload["itemId"] != "A3" || payload["containerId"] != "C1" {
		t.Errorf("unexpected payload: %s", data)
	}
	if _, ok := payload["zone"]; ok {
		t.Errorf("zone should be omitted when unknown: %s", data)
	}
}
