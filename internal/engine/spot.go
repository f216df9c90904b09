package engine

import (
	"math"
	"sort"

	"github.com/piwi3910/StowPlan/internal/model"
)

// Spot is a valid slot found by the spot search: the resolved box and the
// orientation the item was rotated into.
type Spot struct {
	Position    model.Position
	Orientation model.Orientation
}

// FindSpot searches a single container for the first valid slot for item using
// the default grid settings. See Placer.FindSpot.
func FindSpot(item model.Item, container model.Container, placements []model.PlacementInfo, highPriority bool) (Spot, bool) {
	return findSpot(model.DefaultSettings(), item, container, placements, highPriority)
}

// FindSpot searches a single container for the first valid slot for item.
//
// Orientations are tried in the fixed permutation order, then candidate base
// heights in ascending order, then depth, then width. High priority items scan
// depth from the front (d = 0) backwards; everything else scans from the back
// wall forwards. The first candidate that is in bounds, collision free and
// supported wins. placements must hold only the slots of this container.
func (p *Placer) FindSpot(item model.Item, container model.Container, placements []model.PlacementInfo, highPriority bool) (Spot, bool) {
	return findSpot(p.Settings, item, container, placements, highPriority)
}

func findSpot(settings model.PlacementSettings, item model.Item, c model.Container, placements []model.PlacementInfo, highPriority bool) (Spot, bool) {
	orientations := fittingOrientations(item, c)
	if len(orientations) == 0 {
		return Spot{}, false
	}

	heights := baseHeights(placements)
	depthStep := settings.GridStep(c.Depth)
	widthStep := settings.GridStep(c.Width)
	depthSteps := int(c.Depth/depthStep) + 2
	widthSteps := int(c.Width/widthStep) + 2

	for _, o := range orientations {
		maxW := c.Width - o.Width
		maxD := c.Depth - o.Depth

		for _, h := range heights {
			// Heights are ascending, so nothing further up can fit either.
			if h+o.Height > c.Height+model.Epsilon {
				break
			}

			lastD := math.NaN()
			for i := 0; i < depthSteps; i++ {
				var d float64
				if highPriority {
					d = float64(i) * depthStep
				} else {
					d = c.Depth - float64(i+1)*depthStep
				}
				d = clamp(d, 0, maxD)
				if d == lastD {
					continue
				}
				lastD = d

				lastW := math.NaN()
				for j := 0; j < widthSteps; j++ {
					w := clamp(float64(j)*widthStep, 0, maxW)
					if w == lastW {
						continue
					}
					lastW = w

					pos := model.NewPosition(model.Coordinates{Width: w, Depth: d, Height: h}, o)
					if !pos.Within(c) {
						continue
					}
					if overlapsAny(pos, placements) {
						continue
					}
					if !IsStable(pos, placements) {
						continue
					}
					return Spot{Position: pos, Orientation: o}, true
				}
			}
		}
	}
	return Spot{}, false
}

// fittingOrientations returns the distinct permutations of item that fit the
// container on every axis, in search order.
func fittingOrientations(item model.Item, c model.Container) []model.Orientation {
	var out []model.Orientation
	for _, o := range model.Permutations(item.Width, item.Depth, item.Height) {
		if o.Width > c.Width+model.Epsilon || o.Depth > c.Depth+model.Epsilon || o.Height > c.Height+model.Epsilon {
			continue
		}
		dup := false
		for _, seen := range out {
			if seen.Equal(o) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, o)
		}
	}
	return out
}

// baseHeights collects the floor plus the top face of every occupant,
// merging heights closer than model.SupportTolerance, sorted ascending.
func baseHeights(placements []model.PlacementInfo) []float64 {
	heights := []float64{0}
	for _, p := range placements {
		top := p.Position.End.Height
		known := false
		for _, h := range heights {
			if math.Abs(h-top) < model.SupportTolerance {
				known = true
				break
			}
		}
		if !known {
			heights = append(heights, top)
		}
	}
	sort.Float64s(heights)
	return heights
}

func clamp(v, lo, hi float64) float64 {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
