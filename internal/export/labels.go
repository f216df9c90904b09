package export

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/piwi3910/StowPlan/internal/model"
	qrcode "github.com/skip2/go-qrcode"
)

// LabelInfo holds the data encoded into each item label's QR code.
type LabelInfo struct {
	ItemID      string            `json:"itemId"`
	Name        string            `json:"name,omitempty"`
	ContainerID string            `json:"containerId"`
	Zone        string            `json:"zone,omitempty"`
	Start       model.Coordinates `json:"start"`
	End         model.Coordinates `json:"end"`
	Rotated     bool              `json:"rotated"`
}

// Label layout constants for Avery 5160-compatible labels (3 columns, 10 rows per page).
// Each label cell is approximately 66.7mm x 25.4mm on US Letter paper.
const (
	labelPageWidth  = 215.9 // US Letter width in mm
	labelPageHeight = 279.4 // US Letter height in mm
	labelMarginTop  = 12.7  // mm
	labelMarginLeft = 4.8   // mm
	labelWidth      = 66.7  // mm per label
	labelHeight     = 25.4  // mm per label
	labelCols       = 3
	labelRows       = 10
	labelsPerPage   = labelCols * labelRows
	qrSize          = 20.0 // QR code size in mm
	labelPadding    = 2.0  // mm internal padding
)

// ExportLabels generates a PDF of QR-coded labels, one per placed item.
// Each label shows the item, its container and slot, and a QR code with the
// same data as JSON so handlers can scan where an item belongs.
// items and containers are optional and only enrich the labels.
func ExportLabels(path string, out model.PlacementOutput, items []model.Item, containers []model.Container) error {
	labels := CollectLabelInfos(out, items, containers)
	if len(labels) == 0 {
		return fmt.Errorf("no placed items to generate labels for")
	}

	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetAutoPageBreak(false, 0)

	for i, label := range labels {
		if i%labelsPerPage == 0 {
			pdf.AddPage()
		}

		posOnPage := i % labelsPerPage
		col := posOnPage % labelCols
		row := posOnPage / labelCols

		x := labelMarginLeft + float64(col)*labelWidth
		y := labelMarginTop + float64(row)*labelHeight

		if err := renderLabel(pdf, x, y, i, label); err != nil {
			return fmt.Errorf("failed to render label for %q: %w", label.ItemID, err)
		}
	}

	return pdf.OutputFileAndClose(path)
}

// renderLabel draws a single label at the given position.
func renderLabel(pdf *fpdf.Fpdf, x, y float64, idx int, info LabelInfo) error {
	// Light border as a cutting guide
	pdf.SetDrawColor(200, 200, 200)
	pdf.SetLineWidth(0.1)
	pdf.Rect(x, y, labelWidth, labelHeight, "D")

	qrData, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal label info: %w", err)
	}

	qrPNG, err := qrcode.Encode(string(qrData), qrcode.Medium, 256)
	if err != nil {
		return fmt.Errorf("failed to generate QR code: %w", err)
	}

	imgName := fmt.Sprintf("qr_%d", idx)
	pdf.RegisterImageOptionsReader(imgName, fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(qrPNG))

	qrX := x + labelWidth - qrSize - labelPadding
	qrY := y + (labelHeight-qrSize)/2
	pdf.ImageOptions(imgName, qrX, qrY, qrSize, qrSize, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	textX := x + labelPadding
	textW := labelWidth - qrSize - 3*labelPadding

	title := info.ItemID
	if info.Name != "" {
		title = info.Name + " (" + info.ItemID + ")"
	}
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetXY(textX, y+labelPadding)
	pdf.CellFormat(textW, 4.5, truncate(pdf, title, textW), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 7)
	pdf.SetXY(textX, y+labelPadding+5)
	dest := "Container " + info.ContainerID
	if info.Zone != "" {
		dest += " / " + info.Zone
	}
	pdf.CellFormat(textW, 3.5, truncate(pdf, dest, textW), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 6)
	pdf.SetTextColor(100, 100, 100)
	pdf.SetXY(textX, y+labelPadding+9)
	pdf.CellFormat(textW, 3, "From "+formatCorner(info.Start), "", 1, "L", false, 0, "")
	pdf.SetXY(textX, y+labelPadding+12)
	pdf.CellFormat(textW, 3, "To   "+formatCorner(info.End), "", 1, "L", false, 0, "")

	if info.Rotated {
		pdf.SetXY(textX, y+labelPadding+15.5)
		pdf.SetFont("Helvetica", "I", 6)
		pdf.SetTextColor(150, 100, 0)
		pdf.CellFormat(textW, 3, "Rotated", "", 0, "L", false, 0, "")
	}

	pdf.SetTextColor(0, 0, 0)

	return nil
}

// truncate shortens s with an ellipsis until it fits in width.
func truncate(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > width {
		s = s[:len(s)-1]
	}
	return s + "..."
}

// CollectLabelInfos extracts label information from a placement output in
// placement order. Item names, zones and the rotation flag are filled in when
// the item or container is known.
func CollectLabelInfos(out model.PlacementOutput, items []model.Item, containers []model.Container) []LabelInfo {
	itemByID := make(map[string]model.Item, len(items))
	for _, it := range items {
		itemByID[it.ID] = it
	}
	zoneByID := make(map[string]string, len(containers))
	for _, c := range containers {
		zoneByID[c.ID] = c.Zone
	}

	var labels []LabelInfo
	for _, p := range out.Placements {
		info := LabelInfo{
			ItemID:      p.ItemID,
			ContainerID: p.ContainerID,
			Zone:        zoneByID[p.ContainerID],
			Start:       p.Position.Start,
			End:         p.Position.End,
		}
		if it, ok := itemByID[p.ItemID]; ok {
			info.Name = it.Name
			info.Rotated = !p.Position.Size().Equal(model.Orientation{Width: it.Width, Depth: it.Depth, Height: it.Height})
		}
		labels = append(labels, info)
	}
	return labels
}
