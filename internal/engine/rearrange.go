package engine

import (
	"sort"

	"github.com/piwi3910/StowPlan/internal/model"
)

// rearrange gives blocked high priority items with a preferred zone a second
// chance. It first retries the zone directly, then tries to make room by
// moving one lower priority occupant of a zone container somewhere else.
// Items it cannot help are left pending for the fallback phase.
func (r *placementRun) rearrange() {
	if !r.placer.Settings.EnableRearrangement {
		return
	}
	r.placer.logf("phase 2: rearrangement (%d items)", len(r.pending))

	var next []model.Item
	for _, it := range r.pending {
		zone := it.Zone()
		if zone == "" || !r.placer.Settings.IsHighPriority(it.Priority) {
			next = append(next, it)
			continue
		}
		preferred := r.zoneContainers(zone)
		if r.tryContainers(it, preferred) || r.displaceFor(it, preferred) {
			continue
		}
		next = append(next, it)
	}
	r.pending = next
}

// displaceFor looks for a single lower priority occupant whose removal lets
// it fit in one of the preferred containers, and which can itself be stowed in
// another container. On success the move and the new placement are applied.
func (r *placementRun) displaceFor(it model.Item, preferred []model.Container) bool {
	for _, c := range preferred {
		for _, victim := range r.displacees(c.ID, it.Priority) {
			remaining := withoutItem(r.sim[c.ID], victim.ItemID)

			spot, ok := r.placer.FindSpot(it, c, remaining, true)
			if !ok {
				continue
			}
			newSlot := model.PlacementInfo{ItemID: it.ID, ContainerID: c.ID, Position: spot.Position, Priority: it.Priority}
			if !allSupported(remaining, newSlot) {
				continue
			}

			target, dest, ok := r.relocationFor(victim)
			if !ok {
				continue
			}

			r.move(victim, target, dest)
			r.place(it, c.ID, spot.Position)
			r.placer.logf("moved %s from %s to %s to make room for %s", victim.ItemID, c.ID, target, it.ID)
			return true
		}
	}
	return false
}

// displacees lists the occupants of a container with lower priority than
// priority, least important first. Equal priorities keep their stacking order.
func (r *placementRun) displacees(containerID string, priority int) []model.PlacementInfo {
	var out []model.PlacementInfo
	for _, s := range r.sim[containerID] {
		if s.Priority < priority {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// relocationFor finds the first other container, in list order, with room for
// victim. Victims are stowed with the back-first scan.
func (r *placementRun) relocationFor(victim model.PlacementInfo) (string, model.Position, bool) {
	item := r.itemOf(victim)
	for _, c := range r.containers {
		if c.ID == victim.ContainerID {
			continue
		}
		spot, ok := r.placer.FindSpot(item, c, r.sim[c.ID], false)
		if ok {
			return c.ID, spot.Position, true
		}
	}
	return "", model.Position{}, false
}

// itemOf returns the request item for an occupant, or one rebuilt from the
// extents of its slot when the occupant predates this request.
func (r *placementRun) itemOf(s model.PlacementInfo) model.Item {
	if it, ok := r.items[s.ItemID]; ok {
		return it
	}
	size := s.Position.Size()
	return model.Item{
		ID:       s.ItemID,
		Width:    size.Width,
		Depth:    size.Depth,
		Height:   size.Height,
		Priority: s.Priority,
	}
}

// move relocates an occupant and records the step.
func (r *placementRun) move(victim model.PlacementInfo, toContainer string, to model.Position) {
	from := victim.Position
	fromContainer := victim.ContainerID

	r.release(victim.ItemID, fromContainer)
	r.place(r.itemOf(victim), toContainer, to)

	r.steps = append(r.steps, model.RearrangementStep{
		Step:          len(r.steps) + 1,
		Action:        model.ActionMove,
		ItemID:        victim.ItemID,
		FromContainer: &fromContainer,
		FromPosition:  &from,
		ToContainer:   toContainer,
		ToPosition:    to,
	})
}

// allSupported reports whether every remaining slot is still supported once
// the new slot is added.
func allSupported(remaining []model.PlacementInfo, added model.PlacementInfo) bool {
	all := append(append([]model.PlacementInfo(nil), remaining...), added)
	for _, s := range remaining {
		if !IsStable(s.Position, all) {
			return false
		}
	}
	return true
}
