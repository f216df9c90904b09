package engine

import (
	"math"

	"github.com/piwi3910/StowPlan/internal/model"
)

// IsStable reports whether a box at the candidate position would be supported.
//
// A box on the container floor is always stable. Otherwise at least one occupied
// slot must have its top face at the candidate's base height (within
// model.SupportTolerance) and overlap the candidate's footprint by any positive
// amount. Partial overlap is enough; there is no minimum supported area and no
// centre-of-mass test. Only slots of the same container should be passed in.
func IsStable(candidate model.Position, placements []model.PlacementInfo) bool {
	if math.Abs(candidate.Start.Height) < model.Epsilon {
		return true
	}
	for _, p := range placements {
		if math.Abs(p.Position.End.Height-candidate.Start.Height) >= model.SupportTolerance {
			continue
		}
		if footprintsOverlap(candidate, p.Position) {
			return true
		}
	}
	return false
}
