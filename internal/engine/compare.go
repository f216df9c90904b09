package engine

import (
	"fmt"

	"github.com/piwi3910/StowPlan/internal/model"
)

// ComparisonScenario defines a named set of settings to compare.
type ComparisonScenario struct {
	Name     string
	Settings model.PlacementSettings
}

// ComparisonResult holds the placement output and computed statistics
// for a single scenario.
type ComparisonResult struct {
	Scenario    ComparisonScenario
	Output      model.PlacementOutput
	Placed      int
	Failed      int
	Moves       int
	FillPercent float64
}

// CompareScenarios runs the same request under each scenario's settings and
// returns the results in scenario order. The occupancy snapshot is shared
// read-only between runs.
func CompareScenarios(scenarios []ComparisonScenario, req model.PlacementRequest) ([]ComparisonResult, error) {
	results := make([]ComparisonResult, 0, len(scenarios))

	for _, scenario := range scenarios {
		out, err := New(scenario.Settings).ComputePlacements(req.Items, req.Containers, req.Occupancy)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", scenario.Name, err)
		}

		usage := model.Utilization(req.Containers, out.Placements)

		results = append(results, ComparisonResult{
			Scenario:    scenario,
			Output:      out,
			Placed:      len(req.Items) - len(out.FailedItemIDs),
			Failed:      len(out.FailedItemIDs),
			Moves:       len(out.Rearrangements),
			FillPercent: model.TotalFill(usage),
		})
	}

	return results, nil
}

// BuildDefaultScenarios generates a set of comparison scenarios based on
// the current settings, varying key parameters to show what-if alternatives.
func BuildDefaultScenarios(base model.PlacementSettings) []ComparisonScenario {
	scenarios := []ComparisonScenario{
		{
			Name:     "Current Settings",
			Settings: base,
		},
	}

	// Scenario: Toggle rearrangement
	toggled := base
	toggled.EnableRearrangement = !base.EnableRearrangement
	name := "No Rearrangement"
	if toggled.EnableRearrangement {
		name = "With Rearrangement"
	}
	scenarios = append(scenarios, ComparisonScenario{Name: name, Settings: toggled})

	// Scenario: Finer grid (twice the divisions)
	divisions := base.GridDivisions
	if divisions <= 0 {
		divisions = model.DefaultSettings().GridDivisions
	}
	fine := base
	fine.GridDivisions = divisions * 2
	scenarios = append(scenarios, ComparisonScenario{
		Name:     fmt.Sprintf("Grid %d (fine)", fine.GridDivisions),
		Settings: fine,
	})

	// Scenario: Lower high-priority threshold
	if base.HighPriorityThreshold > 50 {
		lower := base
		lower.HighPriorityThreshold = 50
		scenarios = append(scenarios, ComparisonScenario{
			Name:     "High Priority >= 50",
			Settings: lower,
		})
	}

	return scenarios
}
