package engine

import (
	"fmt"
	"sort"

	"github.com/piwi3910/StowPlan/internal/model"
)

// ViolationKind classifies a broken placement rule.
type ViolationKind string

const (
	ViolationOverlap     ViolationKind = "overlap"
	ViolationBounds      ViolationKind = "out_of_bounds"
	ViolationUnsupported ViolationKind = "unsupported"
)

// Violation describes one slot that breaks a placement rule.
type Violation struct {
	Kind        ViolationKind
	ContainerID string
	ItemID      string
	OtherItemID string // set for overlaps
}

func (v Violation) String() string {
	if v.OtherItemID != "" {
		return fmt.Sprintf("%s: %s and %s in %s", v.Kind, v.ItemID, v.OtherItemID, v.ContainerID)
	}
	return fmt.Sprintf("%s: %s in %s", v.Kind, v.ItemID, v.ContainerID)
}

// CheckPlacements analyzes an occupancy and reports every slot that
// interpenetrates another slot of the same container, sticks out of its
// container, or floats without support. Containment is only checked for
// containers present in the list. Each overlapping pair is reported once.
func CheckPlacements(containers []model.Container, occupancy model.Occupancy) []Violation {
	byID := make(map[string]model.Container, len(containers))
	for _, c := range containers {
		byID[c.ID] = c
	}

	ids := make([]string, 0, len(occupancy))
	for cid := range occupancy {
		ids = append(ids, cid)
	}
	sort.Strings(ids)

	var violations []Violation
	for _, cid := range ids {
		slots := occupancy[cid]
		c, known := byID[cid]
		for i, s := range slots {
			if known && !s.Position.Within(c) {
				violations = append(violations, Violation{Kind: ViolationBounds, ContainerID: cid, ItemID: s.ItemID})
			}
			if !IsStable(s.Position, slots) {
				violations = append(violations, Violation{Kind: ViolationUnsupported, ContainerID: cid, ItemID: s.ItemID})
			}
			for _, other := range slots[i+1:] {
				if BoxesOverlap(s.Position, other.Position) {
					violations = append(violations, Violation{
						Kind:        ViolationOverlap,
						ContainerID: cid,
						ItemID:      s.ItemID,
						OtherItemID: other.ItemID,
					})
				}
			}
		}
	}
	return violations
}

// CheckOutput rebuilds the occupancy described by an output and checks it.
func CheckOutput(containers []model.Container, out model.PlacementOutput) []Violation {
	return CheckPlacements(containers, out.Occupancy(nil))
}
