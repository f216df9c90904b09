package engine

import "github.com/piwi3910/StowPlan/internal/model"

// BoxesOverlap returns true if two boxes interpenetrate on all three axes.
// Boxes that only share a face (within model.Epsilon) do not overlap.
func BoxesOverlap(a, b model.Position) bool {
	return axisOverlap(a.Start.Width, a.End.Width, b.Start.Width, b.End.Width) &&
		axisOverlap(a.Start.Depth, a.End.Depth, b.Start.Depth, b.End.Depth) &&
		axisOverlap(a.Start.Height, a.End.Height, b.Start.Height, b.End.Height)
}

// footprintsOverlap is BoxesOverlap restricted to the width/depth plane.
func footprintsOverlap(a, b model.Position) bool {
	return axisOverlap(a.Start.Width, a.End.Width, b.Start.Width, b.End.Width) &&
		axisOverlap(a.Start.Depth, a.End.Depth, b.Start.Depth, b.End.Depth)
}

// axisOverlap is the negation of the per-axis separation test.
func axisOverlap(aStart, aEnd, bStart, bEnd float64) bool {
	separated := aEnd <= bStart+model.Epsilon || bEnd <= aStart+model.Epsilon
	return !separated
}

// overlapsAny reports whether pos collides with any occupied slot.
func overlapsAny(pos model.Position, placements []model.PlacementInfo) bool {
	for _, p := range placements {
		if BoxesOverlap(pos, p.Position) {
			return true
		}
	}
	return false
}
