package export

import (
	"fmt"
	"math"

	"github.com/piwi3910/StowPlan/internal/model"
	"github.com/yofu/dxf"
	"github.com/yofu/dxf/color"
	"github.com/yofu/dxf/drawing"
)

// layerColors cycles through the basic DXF palette for item layers.
var layerColors = []color.ColorNumber{color.Red, color.Yellow, color.Green, color.Cyan, color.Blue, color.Magenta}

// ExportDXF writes a 3D wireframe of the loaded containers. Containers are
// laid out side by side along the X axis (X = width, Y = depth, Z = height).
// Each container outline goes on its own layer and its items on a second
// layer named "<container>-items", so CAD users can toggle them separately.
func ExportDXF(path string, out model.PlacementOutput, containers []model.Container) error {
	if len(containers) == 0 {
		return fmt.Errorf("no containers to export")
	}

	byContainer := groupPlacements(out.Placements)

	d := dxf.NewDrawing()
	gap := containerGap(containers)
	offset := 0.0

	for i, c := range containers {
		if _, err := d.AddLayer(c.ID, dxf.DefaultColor, dxf.DefaultLineType, true); err != nil {
			return fmt.Errorf("add layer %s: %w", c.ID, err)
		}
		outline := model.Position{End: model.Coordinates{Width: c.Width, Depth: c.Depth, Height: c.Height}}
		if err := wireframe(d, outline, offset); err != nil {
			return fmt.Errorf("draw container %s: %w", c.ID, err)
		}
		label := fmt.Sprintf("%s (%s)", c.ID, c.Zone)
		if _, err := d.Text(label, offset, -textHeight(c)*2, 0, textHeight(c)); err != nil {
			return fmt.Errorf("label container %s: %w", c.ID, err)
		}

		layer := c.ID + "-items"
		if _, err := d.AddLayer(layer, layerColors[i%len(layerColors)], dxf.DefaultLineType, true); err != nil {
			return fmt.Errorf("add layer %s: %w", layer, err)
		}
		for _, p := range byContainer[c.ID] {
			if err := wireframe(d, p.Position, offset); err != nil {
				return fmt.Errorf("draw item %s: %w", p.ItemID, err)
			}
			s := p.Position.Start
			if _, err := d.Text(p.ItemID, offset+s.Width, s.Depth, s.Height, textHeight(c)/2); err != nil {
				return fmt.Errorf("label item %s: %w", p.ItemID, err)
			}
		}

		offset += c.Width + gap
	}

	return d.SaveAs(path)
}

// wireframe draws the 12 edges of a box shifted by dx along X.
func wireframe(d *drawing.Drawing, p model.Position, dx float64) error {
	s, e := p.Start, p.End
	x0, x1 := s.Width+dx, e.Width+dx
	corners := [8][3]float64{
		{x0, s.Depth, s.Height}, {x1, s.Depth, s.Height}, {x1, e.Depth, s.Height}, {x0, e.Depth, s.Height},
		{x0, s.Depth, e.Height}, {x1, s.Depth, e.Height}, {x1, e.Depth, e.Height}, {x0, e.Depth, e.Height},
	}
	edges := [12][2]int{
		{0, 1}, {1, 2}, {2, 3}, {3, 0}, // floor
		{4, 5}, {5, 6}, {6, 7}, {7, 4}, // top
		{0, 4}, {1, 5}, {2, 6}, {3, 7}, // uprights
	}
	for _, edge := range edges {
		a, b := corners[edge[0]], corners[edge[1]]
		if _, err := d.Line(a[0], a[1], a[2], b[0], b[1], b[2]); err != nil {
			return err
		}
	}
	return nil
}

// containerGap spaces containers by a tenth of the widest one.
func containerGap(containers []model.Container) float64 {
	widest := 0.0
	for _, c := range containers {
		widest = math.Max(widest, c.Width)
	}
	return math.Max(widest/10, 1)
}

func textHeight(c model.Container) float64 {
	return math.Max(math.Min(c.Width, c.Depth)/20, 0.5)
}
