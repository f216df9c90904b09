// Package export writes placement results to PDF, label, Excel and DXF files.
package export

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-pdf/fpdf"
	"github.com/piwi3910/StowPlan/internal/model"
)

// itemColor represents an RGB color for a placed item.
type itemColor struct {
	R, G, B int
}

var itemColors = []itemColor{
	{R: 76, G: 175, B: 80},  // green
	{R: 33, G: 150, B: 243}, // blue
	{R: 255, G: 152, B: 0},  // orange
	{R: 156, G: 39, B: 176}, // purple
	{R: 0, G: 188, B: 212},  // cyan
	{R: 244, G: 67, B: 54},  // red
	{R: 255, G: 235, B: 59}, // yellow
	{R: 121, G: 85, B: 72},  // brown
}

// Page layout constants (A4 landscape in mm).
const (
	pageWidth    = 297.0
	pageHeight   = 210.0
	marginLeft   = 15.0
	marginRight  = 15.0
	marginTop    = 15.0
	marginBottom = 15.0
	headerHeight = 12.0
	legendHeight = 20.0
	viewGap      = 15.0
	drawAreaTop  = marginTop + headerHeight + 10.0
)

// ExportPDF generates a load report. Each container is rendered on its own
// page with a top view (width x depth) and a front view (width x height),
// followed by a summary page with fill statistics, failed items and the
// rearrangement steps.
func ExportPDF(path string, out model.PlacementOutput, containers []model.Container) error {
	if len(containers) == 0 {
		return fmt.Errorf("no containers to export")
	}

	byContainer := groupPlacements(out.Placements)
	colors := colorIndex(out.Placements)

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, marginBottom)

	usage := model.Utilization(containers, out.Placements)
	for i, c := range containers {
		pdf.AddPage()
		renderContainerPage(pdf, c, usage[i], byContainer[c.ID], colors)
	}

	pdf.AddPage()
	renderSummaryPage(pdf, out, usage)

	return pdf.OutputFileAndClose(path)
}

// groupPlacements indexes placements by container ID.
func groupPlacements(placements []model.PlacementResult) map[string][]model.PlacementResult {
	out := make(map[string][]model.PlacementResult)
	for _, p := range placements {
		out[p.ContainerID] = append(out[p.ContainerID], p)
	}
	return out
}

// colorIndex gives every item a stable palette slot across all pages.
func colorIndex(placements []model.PlacementResult) map[string]itemColor {
	out := make(map[string]itemColor, len(placements))
	for i, p := range placements {
		out[p.ItemID] = itemColors[i%len(itemColors)]
	}
	return out
}

// projection maps a box onto a 2D view: x to the right, y downwards on the page.
type projection func(p model.Position) (x, y, w, h float64)

func topView(c model.Container) projection {
	// Depth 0 is the open front of the container, drawn at the bottom.
	return func(p model.Position) (float64, float64, float64, float64) {
		return p.Start.Width, c.Depth - p.End.Depth, p.End.Width - p.Start.Width, p.End.Depth - p.Start.Depth
	}
}

func frontView(c model.Container) projection {
	return func(p model.Position) (float64, float64, float64, float64) {
		return p.Start.Width, c.Height - p.End.Height, p.End.Width - p.Start.Width, p.End.Height - p.Start.Height
	}
}

// renderContainerPage draws the two views of one container on the current page.
func renderContainerPage(pdf *fpdf.Fpdf, c model.Container, usage model.ContainerUsage, placements []model.PlacementResult, colors map[string]itemColor) {
	// Title
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetXY(marginLeft, marginTop)
	title := fmt.Sprintf("Container %s (%s): %.1f x %.1f x %.1f", c.ID, c.Zone, c.Width, c.Depth, c.Height)
	pdf.CellFormat(pageWidth-marginLeft-marginRight, headerHeight, title, "", 0, "L", false, 0, "")

	// Stats line
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetXY(marginLeft, marginTop+headerHeight)
	stats := fmt.Sprintf("Items: %d | Used volume: %.1f | Total volume: %.1f | Fill: %.1f%%",
		usage.ItemCount, usage.UsedVolume, usage.TotalVolume(), usage.Fill())
	pdf.CellFormat(pageWidth-marginLeft-marginRight, 5, stats, "", 0, "L", false, 0, "")

	viewWidth := (pageWidth - marginLeft - marginRight - viewGap) / 2
	viewHeight := pageHeight - drawAreaTop - marginBottom - legendHeight

	// Top view: paint lower boxes first so stacked ones stay visible.
	top := append([]model.PlacementResult(nil), placements...)
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].Position.End.Height < top[j].Position.End.Height
	})
	drawView(pdf, "Top view (width x depth, front at bottom)", c.Width, c.Depth, topView(c),
		top, colors, marginLeft, drawAreaTop, viewWidth, viewHeight)

	// Front view: paint back boxes first.
	front := append([]model.PlacementResult(nil), placements...)
	sort.SliceStable(front, func(i, j int) bool {
		return front[i].Position.Start.Depth > front[j].Position.Start.Depth
	})
	drawView(pdf, "Front view (width x height)", c.Width, c.Height, frontView(c),
		front, colors, marginLeft+viewWidth+viewGap, drawAreaTop, viewWidth, viewHeight)

	drawItemsLegend(pdf, placements, colors, drawAreaTop+viewHeight+5)
}

// drawView renders one projection of a container scaled into the given area.
func drawView(pdf *fpdf.Fpdf, caption string, extentX, extentY float64, project projection,
	placements []model.PlacementResult, colors map[string]itemColor, areaX, areaY, areaW, areaH float64) {

	pdf.SetFont("Helvetica", "I", 8)
	pdf.SetTextColor(80, 80, 80)
	pdf.SetXY(areaX, areaY-6)
	pdf.CellFormat(areaW, 4, caption, "", 0, "L", false, 0, "")

	scale := math.Min(areaW/extentX, areaH/extentY)
	canvasW := extentX * scale
	canvasH := extentY * scale
	offsetX := areaX + (areaW-canvasW)/2
	offsetY := areaY

	// Container background
	pdf.SetFillColor(235, 235, 235)
	pdf.SetDrawColor(100, 100, 100)
	pdf.SetLineWidth(0.5)
	pdf.Rect(offsetX, offsetY, canvasW, canvasH, "FD")

	for _, p := range placements {
		col := colors[p.ItemID]
		x, y, w, h := project(p.Position)
		px, py, pw, ph := offsetX+x*scale, offsetY+y*scale, w*scale, h*scale

		pdf.SetFillColor(col.R, col.G, col.B)
		pdf.SetDrawColor(30, 30, 30)
		pdf.SetLineWidth(0.3)
		pdf.Rect(px, py, pw, ph, "FD")

		if pw > 10 && ph > 5 {
			pdf.SetFont("Helvetica", "", labelFontSize(pw, ph))
			pdf.SetTextColor(0, 0, 0)
			labelW := pdf.GetStringWidth(p.ItemID)
			if labelW < pw-2 {
				pdf.SetXY(px+(pw-labelW)/2, py+ph/2-2)
				pdf.CellFormat(labelW, 4, p.ItemID, "", 0, "C", false, 0, "")
			}
		}
	}

	drawDimensionAnnotations(pdf, extentX, extentY, offsetX, offsetY, canvasW, canvasH)
}

// drawDimensionAnnotations adds extent labels below and left of a view.
func drawDimensionAnnotations(pdf *fpdf.Fpdf, extentX, extentY, offsetX, offsetY, canvasW, canvasH float64) {
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(80, 80, 80)

	xLabel := fmt.Sprintf("%.1f", extentX)
	xLabelW := pdf.GetStringWidth(xLabel)
	pdf.SetXY(offsetX+(canvasW-xLabelW)/2, offsetY+canvasH+1)
	pdf.CellFormat(xLabelW, 4, xLabel, "", 0, "C", false, 0, "")

	yLabel := fmt.Sprintf("%.1f", extentY)
	pdf.TransformBegin()
	pdf.TransformRotate(90, offsetX-3, offsetY+canvasH/2)
	yLabelW := pdf.GetStringWidth(yLabel)
	pdf.SetXY(offsetX-3-yLabelW/2, offsetY+canvasH/2-2)
	pdf.CellFormat(yLabelW, 4, yLabel, "", 0, "C", false, 0, "")
	pdf.TransformEnd()

	pdf.SetTextColor(0, 0, 0)
}

// drawItemsLegend renders a compact legend of the container's items.
func drawItemsLegend(pdf *fpdf.Fpdf, placements []model.PlacementResult, colors map[string]itemColor, startY float64) {
	if len(placements) == 0 {
		return
	}

	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetXY(marginLeft, startY)
	pdf.CellFormat(30, 4, "Items placed:", "", 0, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 7)
	xPos := marginLeft + 32
	maxX := pageWidth - marginRight

	for _, p := range placements {
		col := colors[p.ItemID]
		size := p.Position.Size()
		label := fmt.Sprintf("%s (%.1fx%.1fx%.1f @ %.1f,%.1f,%.1f)", p.ItemID,
			size.Width, size.Depth, size.Height,
			p.Position.Start.Width, p.Position.Start.Depth, p.Position.Start.Height)
		labelW := pdf.GetStringWidth(label) + 6

		if xPos+labelW > maxX {
			startY += 5
			xPos = marginLeft
		}

		pdf.SetFillColor(col.R, col.G, col.B)
		pdf.Rect(xPos, startY+0.5, 3, 3, "F")

		pdf.SetXY(xPos+4, startY)
		pdf.CellFormat(labelW-4, 4, label, "", 0, "L", false, 0, "")

		xPos += labelW + 2
	}
}

// renderSummaryPage draws the final summary page with overall statistics.
func renderSummaryPage(pdf *fpdf.Fpdf, out model.PlacementOutput, usage []model.ContainerUsage) {
	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetXY(marginLeft, marginTop)
	pdf.CellFormat(pageWidth-marginLeft-marginRight, 10, "Placement Summary", "", 0, "L", false, 0, "")

	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.5)
	pdf.Line(marginLeft, marginTop+12, pageWidth-marginRight, marginTop+12)

	y := marginTop + 18

	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetXY(marginLeft, y)
	pdf.CellFormat(100, 7, "Overall Statistics", "", 0, "L", false, 0, "")
	y += 9

	status := "complete"
	if !out.Success {
		status = "incomplete"
	}
	summaryItems := []struct {
		label string
		value string
	}{
		{"Result", status},
		{"Items Placed", fmt.Sprintf("%d", len(out.Placements))},
		{"Failed Items", fmt.Sprintf("%d", len(out.FailedItemIDs))},
		{"Rearrangement Steps", fmt.Sprintf("%d", len(out.Rearrangements))},
		{"Overall Fill", fmt.Sprintf("%.1f%%", model.TotalFill(usage))},
	}

	pdf.SetFont("Helvetica", "", 10)
	for _, item := range summaryItems {
		pdf.SetXY(marginLeft+5, y)
		pdf.CellFormat(60, 6, item.label+":", "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(40, 6, item.value, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		y += 7
	}

	y += 5
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetXY(marginLeft, y)
	pdf.CellFormat(100, 7, "Container Breakdown", "", 0, "L", false, 0, "")
	y += 9

	colWidths := []float64{40, 40, 60, 25, 30, 60}
	headers := []string{"Container", "Zone", "Dimensions", "Items", "Fill", "Used / Total Volume"}
	y = drawTableHeader(pdf, colWidths, headers, y)

	pdf.SetFont("Helvetica", "", 9)
	for i, u := range usage {
		drawTableRow(pdf, colWidths, []string{
			u.Container.ID,
			u.Container.Zone,
			fmt.Sprintf("%.1f x %.1f x %.1f", u.Container.Width, u.Container.Depth, u.Container.Height),
			fmt.Sprintf("%d", u.ItemCount),
			fmt.Sprintf("%.1f%%", u.Fill()),
			fmt.Sprintf("%.1f / %.1f", u.UsedVolume, u.TotalVolume()),
		}, y, i%2 == 0)
		y += 6
		if y > pageHeight-marginBottom-10 {
			pdf.AddPage()
			y = marginTop
		}
	}

	if len(out.Rearrangements) > 0 {
		y += 8
		pdf.SetFont("Helvetica", "B", 12)
		pdf.SetXY(marginLeft, y)
		pdf.CellFormat(100, 7, "Rearrangement Steps", "", 0, "L", false, 0, "")
		y += 9

		stepWidths := []float64{15, 20, 40, 40, 60, 40, 60}
		y = drawTableHeader(pdf, stepWidths, []string{"Step", "Action", "Item", "From", "From Position", "To", "To Position"}, y)
		pdf.SetFont("Helvetica", "", 8)
		for i, s := range out.Rearrangements {
			from, fromPos := "-", "-"
			if s.FromContainer != nil {
				from = *s.FromContainer
			}
			if s.FromPosition != nil {
				fromPos = formatCorner(s.FromPosition.Start)
			}
			drawTableRow(pdf, stepWidths, []string{
				fmt.Sprintf("%d", s.Step), s.Action, s.ItemID, from, fromPos, s.ToContainer, formatCorner(s.ToPosition.Start),
			}, y, i%2 == 0)
			y += 6
			if y > pageHeight-marginBottom-10 {
				pdf.AddPage()
				y = marginTop
			}
		}
	}

	if len(out.FailedItemIDs) > 0 {
		y += 8
		pdf.SetFont("Helvetica", "B", 11)
		pdf.SetTextColor(200, 0, 0)
		pdf.SetXY(marginLeft, y)
		pdf.CellFormat(200, 7, "WARNING: Items Not Placed", "", 0, "L", false, 0, "")
		y += 8

		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(0, 0, 0)
		for _, id := range out.FailedItemIDs {
			if y > pageHeight-marginBottom-5 {
				pdf.AddPage()
				y = marginTop
			}
			pdf.SetXY(marginLeft+5, y)
			pdf.CellFormat(200, 5, "- "+id, "", 0, "L", false, 0, "")
			y += 5
		}
	}

	pdf.SetFont("Helvetica", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	pdf.SetXY(marginLeft, pageHeight-marginBottom)
	pdf.CellFormat(pageWidth-marginLeft-marginRight, 4, "Generated by StowPlan - Container Placement Planner", "", 0, "C", false, 0, "")
}

func drawTableHeader(pdf *fpdf.Fpdf, widths []float64, headers []string, y float64) float64 {
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	xPos := marginLeft
	for i, header := range headers {
		pdf.SetXY(xPos, y)
		pdf.CellFormat(widths[i], 6, header, "1", 0, "C", true, 0, "")
		xPos += widths[i]
	}
	return y + 6
}

func drawTableRow(pdf *fpdf.Fpdf, widths []float64, cells []string, y float64, shaded bool) {
	if shaded {
		pdf.SetFillColor(245, 245, 245)
	} else {
		pdf.SetFillColor(255, 255, 255)
	}
	xPos := marginLeft
	for j, cell := range cells {
		pdf.SetXY(xPos, y)
		pdf.CellFormat(widths[j], 6, cell, "1", 0, "C", true, 0, "")
		xPos += widths[j]
	}
}

func formatCorner(c model.Coordinates) string {
	return fmt.Sprintf("(%.1f, %.1f, %.1f)", c.Width, c.Depth, c.Height)
}

// labelFontSize returns an appropriate font size based on the rectangle dimensions.
func labelFontSize(w, h float64) float64 {
	minDim := math.Min(w, h)
	switch {
	case minDim > 40:
		return 8
	case minDim > 20:
		return 7
	default:
		return 6
	}
}
