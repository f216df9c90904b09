package model

import (
	"math"

	"github.com/google/uuid"
)

// Epsilon is the tolerance used for every geometric comparison.
const Epsilon = 1e-6

// SupportTolerance is the looser band used when matching a candidate base
// against the top face of a supporting item, and when de-duplicating base heights.
const SupportTolerance = 10 * Epsilon

// DefaultPriority is assumed for occupants whose item record carries no priority.
const DefaultPriority = 50

// ActionMove is the only rearrangement action the engine emits.
const ActionMove = "move"

// Coordinates is a point inside a container, measured from the front-left floor corner.
type Coordinates struct {
	Width  float64 `json:"width"`
	Depth  float64 `json:"depth"`
	Height float64 `json:"height"`
}

// Equal compares two points within Epsilon on every axis.
func (c Coordinates) Equal(o Coordinates) bool {
	return math.Abs(c.Width-o.Width) < Epsilon &&
		math.Abs(c.Depth-o.Depth) < Epsilon &&
		math.Abs(c.Height-o.Height) < Epsilon
}

// Position is the axis-aligned bounding box an item occupies inside a container.
type Position struct {
	Start Coordinates `json:"startCoordinates"`
	End   Coordinates `json:"endCoordinates"`
}

// NewPosition builds a Position from a start corner and an oriented size.
func NewPosition(start Coordinates, o Orientation) Position {
	return Position{
		Start: start,
		End: Coordinates{
			Width:  start.Width + o.Width,
			Depth:  start.Depth + o.Depth,
			Height: start.Height + o.Height,
		},
	}
}

// Equal compares both corners within Epsilon.
func (p Position) Equal(o Position) bool {
	return p.Start.Equal(o.Start) && p.End.Equal(o.End)
}

// Size returns the extents of the box as an Orientation.
func (p Position) Size() Orientation {
	return Orientation{
		Width:  p.End.Width - p.Start.Width,
		Depth:  p.End.Depth - p.Start.Depth,
		Height: p.End.Height - p.Start.Height,
	}
}

// Volume returns the box volume.
func (p Position) Volume() float64 {
	return p.Size().Volume()
}

// Within reports whether the box lies inside the container (within Epsilon).
func (p Position) Within(c Container) bool {
	return p.Start.Width >= -Epsilon && p.Start.Depth >= -Epsilon && p.Start.Height >= -Epsilon &&
		p.End.Width <= c.Width+Epsilon &&
		p.End.Depth <= c.Depth+Epsilon &&
		p.End.Height <= c.Height+Epsilon
}

// Orientation is one axis permutation of an item's (width, depth, height).
type Orientation struct {
	Width  float64 `json:"width"`
	Depth  float64 `json:"depth"`
	Height float64 `json:"height"`
}

// Volume returns width * depth * height.
func (o Orientation) Volume() float64 {
	return o.Width * o.Depth * o.Height
}

// Equal compares two orientations within Epsilon.
func (o Orientation) Equal(other Orientation) bool {
	return math.Abs(o.Width-other.Width) < Epsilon &&
		math.Abs(o.Depth-other.Depth) < Epsilon &&
		math.Abs(o.Height-other.Height) < Epsilon
}

// IsPermutationOf reports whether o is a rotation of the given nominal size.
func (o Orientation) IsPermutationOf(width, depth, height float64) bool {
	for _, p := range Permutations(width, depth, height) {
		if o.Equal(p) {
			return true
		}
	}
	return false
}

// Permutations returns the six axis permutations of a box in the fixed search order.
func Permutations(w, d, h float64) []Orientation {
	return []Orientation{
		{Width: w, Depth: d, Height: h},
		{Width: w, Depth: h, Height: d},
		{Width: d, Depth: w, Height: h},
		{Width: d, Depth: h, Height: w},
		{Width: h, Depth: w, Height: d},
		{Width: h, Depth: d, Height: w},
	}
}

// Item is a piece of cargo waiting to be stowed.
type Item struct {
	ID            string  `json:"itemId"`
	Name          string  `json:"name"`
	Width         float64 `json:"width"`
	Depth         float64 `json:"depth"`
	Height        float64 `json:"height"`
	Mass          float64 `json:"mass"`
	Priority      int     `json:"priority"`
	ExpiryDate    *string `json:"expiryDate,omitempty"` // ISO date as sent by the API
	UsageLimit    *int    `json:"usageLimit,omitempty"`
	PreferredZone *string `json:"preferredZone,omitempty"`
}

// NewItem creates an item with a short generated ID and the default priority.
func NewItem(name string, w, d, h float64) Item {
	return Item{
		ID:       uuid.New().String()[:8],
		Name:     name,
		Width:    w,
		Depth:    d,
		Height:   h,
		Priority: DefaultPriority,
	}
}

// Zone returns the preferred zone, or "" when the item has none.
func (it Item) Zone() string {
	if it.PreferredZone == nil {
		return ""
	}
	return *it.PreferredZone
}

// Volume returns the nominal item volume.
func (it Item) Volume() float64 {
	return it.Width * it.Depth * it.Height
}

// Container is a fixed-size storage bin belonging to a zone.
type Container struct {
	ID     string  `json:"containerId"`
	Zone   string  `json:"zone"`
	Width  float64 `json:"width"`
	Depth  float64 `json:"depth"`
	Height float64 `json:"height"`
}

// Volume returns the internal container volume.
func (c Container) Volume() float64 {
	return c.Width * c.Depth * c.Height
}

// PlacementInfo is a slot that is currently occupied.
type PlacementInfo struct {
	ItemID      string   `json:"itemId"`
	ContainerID string   `json:"containerId"`
	Position    Position `json:"position"`
	Priority    int      `json:"priority"`
}

// Occupancy maps a container ID to the slots occupied inside it.
type Occupancy map[string][]PlacementInfo

// Clone returns a deep copy so the caller's snapshot is never mutated.
func (o Occupancy) Clone() Occupancy {
	out := make(Occupancy, len(o))
	for id, slots := range o {
		cp := make([]PlacementInfo, len(slots))
		copy(cp, slots)
		out[id] = cp
	}
	return out
}

// Count returns the number of occupied slots across all containers.
func (o Occupancy) Count() int {
	n := 0
	for _, slots := range o {
		n += len(slots)
	}
	return n
}

// PlacementResult is the resolved slot for one item.
type PlacementResult struct {
	ItemID      string   `json:"itemId"`
	ContainerID string   `json:"containerId"`
	Position    Position `json:"position"`
}

// RearrangementStep records the relocation of an already placed item.
type RearrangementStep struct {
	Step          int       `json:"step"`
	Action        string    `json:"action"`
	ItemID        string    `json:"itemId"`
	FromContainer *string   `json:"fromContainer,omitempty"`
	FromPosition  *Position `json:"fromPosition,omitempty"`
	ToContainer   string    `json:"toContainer"`
	ToPosition    Position  `json:"toPosition"`
}

// PlacementOutput is the aggregate result of one placement job.
type PlacementOutput struct {
	Success        bool                `json:"success"`
	Error          *string             `json:"error,omitempty"`
	Placements     []PlacementResult   `json:"placements"`
	Rearrangements []RearrangementStep `json:"rearrangements"`
	FailedItemIDs  []string            `json:"failedItemIds"`
}

// Occupancy converts the output placements back into an occupancy snapshot.
// Priorities are looked up in prio; unknown items get DefaultPriority.
func (po PlacementOutput) Occupancy(prio map[string]int) Occupancy {
	occ := make(Occupancy)
	for _, p := range po.Placements {
		pr, ok := prio[p.ItemID]
		if !ok {
			pr = DefaultPriority
		}
		occ[p.ContainerID] = append(occ[p.ContainerID], PlacementInfo{
			ItemID:      p.ItemID,
			ContainerID: p.ContainerID,
			Position:    p.Position,
			Priority:    pr,
		})
	}
	return occ
}

// PlacementRequest is the job payload submitted by the API layer.
type PlacementRequest struct {
	Items      []Item      `json:"items"`
	Containers []Container `json:"containers"`
	Occupancy  Occupancy   `json:"occupancy,omitempty"`
}

// ContainerIDs returns the IDs of the request's containers in list order.
func (r PlacementRequest) ContainerIDs() []string {
	ids := make([]string, len(r.Containers))
	for i, c := range r.Containers {
		ids[i] = c.ID
	}
	return ids
}

// Priorities indexes the priority of every item mentioned by the request.
func (r PlacementRequest) Priorities() map[string]int {
	prio := make(map[string]int)
	for _, slots := range r.Occupancy {
		for _, s := range slots {
			prio[s.ItemID] = s.Priority
		}
	}
	for _, it := range r.Items {
		prio[it.ID] = it.Priority
	}
	return prio
}

// PlacementSettings tunes the spot search and the orchestrator.
type PlacementSettings struct {
	GridDivisions         int     `json:"grid_divisions" yaml:"grid_divisions"`                   // Grid cells per container axis
	MinGridStep           float64 `json:"min_grid_step" yaml:"min_grid_step"`                     // Lower bound on the grid step
	HighPriorityThreshold int     `json:"high_priority_threshold" yaml:"high_priority_threshold"` // Priority at or above which items scan front-first
	EnableRearrangement   bool    `json:"enable_rearrangement" yaml:"enable_rearrangement"`       // Run the rearrangement phase
}

// DefaultSettings returns the production search parameters.
func DefaultSettings() PlacementSettings {
	return PlacementSettings{
		GridDivisions:         25,
		MinGridStep:           0.02,
		HighPriorityThreshold: 75,
		EnableRearrangement:   true,
	}
}

// IsHighPriority reports whether an item of the given priority scans front-first.
func (s PlacementSettings) IsHighPriority(priority int) bool {
	return priority >= s.HighPriorityThreshold
}

// GridStep returns the scan step for a container extent.
func (s PlacementSettings) GridStep(extent float64) float64 {
	div := s.GridDivisions
	if div <= 0 {
		div = DefaultSettings().GridDivisions
	}
	return math.Max(extent/float64(div), s.MinGridStep)
}

// NewJobID returns a fresh job identifier.
func NewJobID() string {
	return uuid.New().String()
}

// StringPtr returns a pointer to a copy of s.
func StringPtr(s string) *string {
	return &s
}
