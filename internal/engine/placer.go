package engine

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/piwi3910/StowPlan/internal/model"
)

// Placer runs the multi-phase 3D placement algorithm.
type Placer struct {
	Settings model.PlacementSettings
	Logger   *log.Logger // optional; nil disables progress logging
}

func New(settings model.PlacementSettings) *Placer {
	return &Placer{Settings: settings}
}

// ComputePlacements places items into containers on top of the given occupancy.
//
// Items are processed in descending priority order (input order breaks ties).
// Items with a preferred zone first try the containers of that zone, blocked
// high priority items may then displace lower priority occupants, and whatever
// is left tries every container in list order. Items that fit nowhere are
// reported in FailedItemIDs and the output is marked unsuccessful; that is not
// an error. The returned error is non-nil only for structurally invalid input
// and wraps model.ErrInvalidInput.
//
// The occupancy snapshot is never modified.
func (p *Placer) ComputePlacements(items []model.Item, containers []model.Container, occupancy model.Occupancy) (model.PlacementOutput, error) {
	if err := model.ValidateRequest(items, containers); err != nil {
		return model.PlacementOutput{}, err
	}

	run := newPlacementRun(p, items, containers, occupancy)
	run.placePreferred()
	run.rearrange()
	run.placeAnywhere()
	out := run.collate()
	run.mustHoldInvariants()

	p.logf("placed %d of %d items, %d moves, %d failed",
		len(items)-len(out.FailedItemIDs), len(items), len(out.Rearrangements), len(out.FailedItemIDs))
	return out, nil
}

func (p *Placer) logf(format string, args ...any) {
	if p.Logger != nil {
		p.Logger.Printf(format, args...)
	}
}

// placementRun holds the mutable simulation for one ComputePlacements call.
type placementRun struct {
	placer     *Placer
	containers []model.Container
	byID       map[string]model.Container
	items      map[string]model.Item

	sim     model.Occupancy                  // container ID -> occupied slots
	final   map[string]model.PlacementResult // item ID -> resolved slot
	pending []model.Item
	failed  []string
	steps   []model.RearrangementStep
	touched map[string]bool // items placed or moved by this run
}

func newPlacementRun(p *Placer, items []model.Item, containers []model.Container, occupancy model.Occupancy) *placementRun {
	r := &placementRun{
		placer:     p,
		containers: containers,
		byID:       make(map[string]model.Container, len(containers)),
		items:      make(map[string]model.Item, len(items)),
		sim:        make(model.Occupancy),
		final:      make(map[string]model.PlacementResult),
		touched:    make(map[string]bool),
	}
	for _, c := range containers {
		r.byID[c.ID] = c
	}

	// Seed from the live snapshot, trusting the map key over the slot's own field.
	for cid, slots := range occupancy {
		for _, s := range slots {
			s.ContainerID = cid
			r.sim[cid] = append(r.sim[cid], s)
			r.final[s.ItemID] = model.PlacementResult{ItemID: s.ItemID, ContainerID: cid, Position: s.Position}
		}
	}

	sorted := make([]model.Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	for _, it := range sorted {
		r.items[it.ID] = it
		if prev, ok := r.final[it.ID]; ok {
			if r.supportsOthers(prev) {
				p.logf("item %s stays in %s: other items rest on it", it.ID, prev.ContainerID)
				continue
			}
			r.release(it.ID, prev.ContainerID)
		}
		r.pending = append(r.pending, it)
	}
	return r
}

// placePreferred tries every zoned item against the containers of its zone.
func (r *placementRun) placePreferred() {
	r.placer.logf("phase 1: preferred zones (%d items)", len(r.pending))
	var next []model.Item
	for _, it := range r.pending {
		if it.Zone() == "" || !r.tryContainers(it, r.zoneContainers(it.Zone())) {
			next = append(next, it)
		}
	}
	r.pending = next
}

// placeAnywhere tries every remaining item against all containers and records failures.
func (r *placementRun) placeAnywhere() {
	r.placer.logf("phase 3: fallback (%d items)", len(r.pending))
	for _, it := range r.pending {
		if !r.tryContainers(it, r.containers) {
			r.placer.logf("item %s: no spot found", it.ID)
			r.failed = append(r.failed, it.ID)
		}
	}
	r.pending = nil
}

// tryContainers places it in the first container that yields a spot.
func (r *placementRun) tryContainers(it model.Item, containers []model.Container) bool {
	high := r.placer.Settings.IsHighPriority(it.Priority)
	for _, c := range containers {
		spot, ok := r.placer.FindSpot(it, c, r.sim[c.ID], high)
		if !ok {
			continue
		}
		r.place(it, c.ID, spot.Position)
		return true
	}
	return false
}

func (r *placementRun) zoneContainers(zone string) []model.Container {
	var out []model.Container
	for _, c := range r.containers {
		if c.Zone == zone {
			out = append(out, c)
		}
	}
	return out
}

// place records a new slot in both the simulation and the final map.
func (r *placementRun) place(it model.Item, containerID string, pos model.Position) {
	r.sim[containerID] = append(r.sim[containerID], model.PlacementInfo{
		ItemID:      it.ID,
		ContainerID: containerID,
		Position:    pos,
		Priority:    it.Priority,
	})
	r.final[it.ID] = model.PlacementResult{ItemID: it.ID, ContainerID: containerID, Position: pos}
	r.touched[it.ID] = true
}

// release removes an item's slot from the simulation and the final map.
func (r *placementRun) release(itemID, containerID string) {
	r.sim[containerID] = withoutItem(r.sim[containerID], itemID)
	delete(r.final, itemID)
}

// supportsOthers reports whether any slot in the same container rests on res.
func (r *placementRun) supportsOthers(res model.PlacementResult) bool {
	remaining := withoutItem(r.sim[res.ContainerID], res.ItemID)
	for _, s := range remaining {
		if !IsStable(s.Position, remaining) {
			return true
		}
	}
	return false
}

// collate builds the output from the final map.
func (r *placementRun) collate() model.PlacementOutput {
	failed := make(map[string]bool, len(r.failed))
	for _, id := range r.failed {
		failed[id] = true
	}

	out := model.PlacementOutput{
		Success:        len(r.failed) == 0,
		Placements:     make([]model.PlacementResult, 0, len(r.final)),
		Rearrangements: make([]model.RearrangementStep, 0, len(r.steps)),
		FailedItemIDs:  make([]string, 0, len(r.failed)),
	}
	for id, res := range r.final {
		if failed[id] {
			continue
		}
		out.Placements = append(out.Placements, res)
	}
	sort.Slice(out.Placements, func(i, j int) bool {
		return out.Placements[i].ItemID < out.Placements[j].ItemID
	})
	out.Rearrangements = append(out.Rearrangements, r.steps...)
	out.FailedItemIDs = append(out.FailedItemIDs, r.failed...)

	if !out.Success {
		msg := fmt.Sprintf("Placement incomplete. Failed items: %s", strings.Join(r.failed, ", "))
		out.Error = &msg
	}
	return out
}

// mustHoldInvariants panics if a slot placed or moved by this run breaks the
// overlap, containment or support rules. Such a slot can only come from a bug.
func (r *placementRun) mustHoldInvariants() {
	for _, v := range CheckPlacements(r.containers, r.sim) {
		if r.touched[v.ItemID] || r.touched[v.OtherItemID] {
			panic(fmt.Sprintf("engine: invariant violated: %s", v))
		}
	}
}

func withoutItem(slots []model.PlacementInfo, itemID string) []model.PlacementInfo {
	out := make([]model.PlacementInfo, 0, len(slots))
	for _, s := range slots {
		if s.ItemID != itemID {
			out = append(out, s)
		}
	}
	return out
}
