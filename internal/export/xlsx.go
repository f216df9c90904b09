package export

import (
	"fmt"

	"github.com/piwi3910/StowPlan/internal/model"
	"github.com/xuri/excelize/v2"
)

// Sheet names written by ExportExcel.
const (
	placementsSheet     = "Placements"
	rearrangementsSheet = "Rearrangements"
	failedSheet         = "Failed"
	usageSheet          = "Containers"
)

var (
	placementsHeader     = []interface{}{"Item ID", "Container ID", "Start Width", "Start Depth", "Start Height", "End Width", "End Depth", "End Height"}
	rearrangementsHeader = []interface{}{"Step", "Action", "Item ID", "From Container", "From Width", "From Depth", "From Height", "To Container", "To Width", "To Depth", "To Height"}
	usageHeader          = []interface{}{"Container ID", "Zone", "Width", "Depth", "Height", "Items", "Used Volume", "Fill %"}
)

// ExportExcel writes a placement output to an .xlsx workbook with one sheet
// for placements, one for rearrangement steps and one for failed items.
// A per-container usage sheet is added when containers are given.
func ExportExcel(path string, out model.PlacementOutput, containers []model.Container) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), placementsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{rearrangementsSheet, failedSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	placements := [][]interface{}{placementsHeader}
	for _, p := range out.Placements {
		s, e := p.Position.Start, p.Position.End
		placements = append(placements, []interface{}{p.ItemID, p.ContainerID, s.Width, s.Depth, s.Height, e.Width, e.Depth, e.Height})
	}

	steps := [][]interface{}{rearrangementsHeader}
	for _, st := range out.Rearrangements {
		row := []interface{}{st.Step, st.Action, st.ItemID, "", "", "", ""}
		if st.FromContainer != nil {
			row[3] = *st.FromContainer
		}
		if st.FromPosition != nil {
			row[4], row[5], row[6] = st.FromPosition.Start.Width, st.FromPosition.Start.Depth, st.FromPosition.Start.Height
		}
		to := st.ToPosition.Start
		steps = append(steps, append(row, st.ToContainer, to.Width, to.Depth, to.Height))
	}

	failed := [][]interface{}{{"Item ID"}}
	for _, id := range out.FailedItemIDs {
		failed = append(failed, []interface{}{id})
	}

	sheets := []struct {
		name string
		rows [][]interface{}
	}{
		{placementsSheet, placements},
		{rearrangementsSheet, steps},
		{failedSheet, failed},
	}

	if len(containers) > 0 {
		if _, err := f.NewSheet(usageSheet); err != nil {
			return fmt.Errorf("create sheet %s: %w", usageSheet, err)
		}
		usage := [][]interface{}{usageHeader}
		for _, u := range model.Utilization(containers, out.Placements) {
			c := u.Container
			usage = append(usage, []interface{}{c.ID, c.Zone, c.Width, c.Depth, c.Height, u.ItemCount, u.UsedVolume, u.Fill()})
		}
		sheets = append(sheets, struct {
			name string
			rows [][]interface{}
		}{usageSheet, usage})
	}

	for _, sh := range sheets {
		if err := writeRows(f, sh.name, sh.rows, bold); err != nil {
			return err
		}
	}

	f.SetActiveSheet(0)
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// writeRows fills a sheet from A1 and styles the first row as a header.
func writeRows(f *excelize.File, sheet string, rows [][]interface{}, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	end, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", end, headerStyle)
}
