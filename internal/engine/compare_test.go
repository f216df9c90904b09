package engine

import (
	"testing"

	"github.com/piwi3910/StowPlan/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDefaultScenarios(t *testing.T) {
	scenarios := BuildDefaultScenarios(model.DefaultSettings())

	require.Len(t, scenarios, 4)
	assert.Equal(t, "Current Settings", scenarios[0].Name)
	assert.Equal(t, "No Rearrangement", scenarios[1].Name)
	assert.False(t, scenarios[1].Settings.EnableRearrangement)
	assert.Equal(t, 50, scenarios[2].Settings.GridDivisions)
	assert.Equal(t, 50, scenarios[3].Settings.HighPriorityThreshold)
}

func TestBuildDefaultScenarios_RearrangementOff(t *testing.T) {
	s := model.DefaultSettings()
	s.EnableRearrangement = false
	s.HighPriorityThreshold = 40

	scenarios := BuildDefaultScenarios(s)

	require.Len(t, scenarios, 3)
	assert.Equal(t, "With Rearrangement", scenarios[1].Name)
	assert.True(t, scenarios[1].Settings.EnableRearrangement)
}

func TestCompareScenarios(t *testing.T) {
	req := model.PlacementRequest{
		Items: []model.Item{zoned(cube("H", 10, 90), "z1")},
		Containers: []model.Container{
			{ID: "C1", Zone: "z1", Width: 10, Depth: 10, Height: 10},
			{ID: "C2", Zone: "z2", Width: 10, Depth: 10, Height: 10},
		},
		Occupancy: model.Occupancy{"C1": {slot("L", box(0, 0, 0, 10, 10, 10), 10)}},
	}

	results, err := CompareScenarios(BuildDefaultScenarios(model.DefaultSettings()), req)

	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, 1, results[0].Moves)
	assert.Equal(t, 0, results[1].Moves)
	for _, r := range results {
		assert.Equal(t, 1, r.Placed, r.Scenario.Name)
		assert.Equal(t, 0, r.Failed, r.Scenario.Name)
		assert.InDelta(t, 100.0, r.FillPercent, 1e-9, r.Scenario.Name)
	}
}

func TestCompareScenarios_InvalidInput(t *testing.T) {
	req := model.PlacementRequest{Containers: []model.Container{{ID: "C1"}}}

	_, err := CompareScenarios(BuildDefaultScenarios(model.DefaultSettings()), req)

	assert.ErrorIs(t, err, model.ErrInvalidInput)
}
