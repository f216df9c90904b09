// Package importer reads item and container lists from Excel workbooks.
// Columns are mapped by case-insensitive header recognition, with a
// positional fallback when a sheet has no header row.
package importer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/piwi3910/StowPlan/internal/model"
	"github.com/xuri/excelize/v2"
)

// Sheet names looked up (case-insensitively) in an imported workbook.
const (
	ItemsSheet      = "Items"
	ContainersSheet = "Containers"
)

// ImportResult holds the results of an import operation.
type ImportResult struct {
	Items      []model.Item
	Containers []model.Container
	Errors     []string
	Warnings   []string
}

// Request builds a placement request from the imported lists.
func (r ImportResult) Request() model.PlacementRequest {
	return model.PlacementRequest{Items: r.Items, Containers: r.Containers}
}

// ColumnMapping maps semantic column roles to their indices in the data.
// Roles that were not found map to -1.
type ColumnMapping map[string]int

// Index returns the column for role, or -1.
func (m ColumnMapping) Index(role string) int {
	if idx, ok := m[role]; ok {
		return idx
	}
	return -1
}

// itemAliases maps canonical item column names to their accepted aliases (all lowercase).
var itemAliases = map[string][]string{
	"id":       {"itemid", "item id", "id", "item"},
	"name":     {"name", "label", "description", "desc"},
	"width":    {"width", "w"},
	"depth":    {"depth", "d"},
	"height":   {"height", "h"},
	"mass":     {"mass", "weight", "kg"},
	"priority": {"priority", "prio"},
	"expiry":   {"expirydate", "expiry date", "expiry", "expires"},
	"usage":    {"usagelimit", "usage limit", "uses"},
	"zone":     {"preferredzone", "preferred zone", "zone"},
}

// itemColumns is the positional order used when an items sheet has no header.
var itemColumns = []string{"id", "name", "width", "depth", "height", "mass", "priority", "expiry", "usage", "zone"}

// containerAliases maps canonical container column names to their accepted aliases.
var containerAliases = map[string][]string{
	"id":     {"containerid", "container id", "id", "container"},
	"zone":   {"zone", "area", "module"},
	"width":  {"width", "w"},
	"depth":  {"depth", "d"},
	"height": {"height", "h"},
}

var containerColumns = []string{"id", "zone", "width", "depth", "height"}

// DetectColumns examines a header row and returns a ColumnMapping.
// It performs case-insensitive matching against the given aliases. Returns the
// mapping and true if a header was detected, or a positional mapping over
// columns and false otherwise.
func DetectColumns(row []string, aliases map[string][]string, columns []string) (ColumnMapping, bool) {
	mapping := ColumnMapping{}

	for i, cell := range row {
		normalized := strings.ToLower(strings.TrimSpace(cell))
		for _, role := range columns {
			if _, seen := mapping[role]; seen {
				continue
			}
			for _, alias := range aliases[role] {
				if normalized == alias {
					mapping[role] = i
					break
				}
			}
		}
	}

	if len(mapping) == 0 {
		positional := ColumnMapping{}
		for i, role := range columns {
			positional[role] = i
		}
		return positional, false
	}

	return mapping, true
}

// getCell safely retrieves a cell value from a row by column index.
// Returns empty string if the index is out of range or negative.
func getCell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseDimension reads a required positive number from the row.
func parseDimension(row []string, mapping ColumnMapping, role, rowLabel string) (float64, string) {
	s := getCell(row, mapping.Index(role))
	if s == "" {
		return 0, fmt.Sprintf("%s: Missing %s value", rowLabel, role)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Sprintf("%s: Invalid %s '%s'", rowLabel, role, s)
	}
	if v <= 0 {
		return 0, fmt.Sprintf("%s: %s must be positive", rowLabel, role)
	}
	return v, ""
}

// parseItemRow extracts an Item from a row using the given column mapping.
// Returns the item, any error message, and any warnings.
func parseItemRow(row []string, mapping ColumnMapping, rowLabel string) (model.Item, string, []string) {
	var dims [3]float64
	for i, role := range []string{"width", "depth", "height"} {
		v, errMsg := parseDimension(row, mapping, role, rowLabel)
		if errMsg != "" {
			return model.Item{}, errMsg, nil
		}
		dims[i] = v
	}

	item := model.NewItem(getCell(row, mapping.Index("name")), dims[0], dims[1], dims[2])
	var warnings []string
	if id := getCell(row, mapping.Index("id")); id != "" {
		item.ID = id
	} else {
		warnings = append(warnings, fmt.Sprintf("%s: Missing item ID, generated %s", rowLabel, item.ID))
	}
	if item.Name == "" {
		item.Name = item.ID
	}

	if s := getCell(row, mapping.Index("mass")); s != "" {
		mass, err := strconv.ParseFloat(s, 64)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: Invalid mass '%s', ignoring", rowLabel, s))
		} else {
			item.Mass = mass
		}
	}

	if s := getCell(row, mapping.Index("priority")); s != "" {
		prio, err := strconv.Atoi(s)
		if err != nil {
			return model.Item{}, fmt.Sprintf("%s: Invalid priority '%s'", rowLabel, s), nil
		}
		item.Priority = prio
	}

	if s := getCell(row, mapping.Index("expiry")); s != "" && !strings.EqualFold(s, "n/a") {
		item.ExpiryDate = model.StringPtr(s)
	}

	if s := getCell(row, mapping.Index("usage")); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: Invalid usage limit '%s', ignoring", rowLabel, s))
		} else {
			item.UsageLimit = &limit
		}
	}

	if s := getCell(row, mapping.Index("zone")); s != "" {
		item.PreferredZone = model.StringPtr(s)
	}

	return item, "", warnings
}

// parseContainerRow extracts a Container from a row.
func parseContainerRow(row []string, mapping ColumnMapping, rowLabel string) (model.Container, string) {
	id := getCell(row, mapping.Index("id"))
	if id == "" {
		return model.Container{}, fmt.Sprintf("%s: Missing container ID", rowLabel)
	}
	c := model.Container{ID: id, Zone: getCell(row, mapping.Index("zone"))}

	var errMsg string
	if c.Width, errMsg = parseDimension(row, mapping, "width", rowLabel); errMsg != "" {
		return model.Container{}, errMsg
	}
	if c.Depth, errMsg = parseDimension(row, mapping, "depth", rowLabel); errMsg != "" {
		return model.Container{}, errMsg
	}
	if c.Height, errMsg = parseDimension(row, mapping, "height", rowLabel); errMsg != "" {
		return model.Container{}, errMsg
	}
	return c, ""
}

// isEmptyRow returns true if the row has no meaningful content.
func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// ImportExcel imports items and containers from an Excel (.xlsx) workbook.
// Items are read from a sheet named "Items" (or the first sheet when none is
// named so) and containers from a sheet named "Containers" when present.
func ImportExcel(path string) ImportResult {
	result := ImportResult{}

	f, err := excelize.OpenFile(path)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot open Excel file: %v", err))
		return result
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		result.Errors = append(result.Errors, "Excel file has no sheets")
		return result
	}

	itemSheet := findSheet(sheets, ItemsSheet)
	containerSheet := findSheet(sheets, ContainersSheet)
	if itemSheet == "" && sheets[0] != containerSheet {
		itemSheet = sheets[0]
	}

	if itemSheet != "" {
		rows, err := f.GetRows(itemSheet)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Cannot read sheet %q: %v", itemSheet, err))
			return result
		}
		importItems(&result, rows, itemSheet)
	}

	if containerSheet != "" {
		rows, err := f.GetRows(containerSheet)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Cannot read sheet %q: %v", containerSheet, err))
			return result
		}
		importContainers(&result, rows, containerSheet)
	}

	if len(result.Items) == 0 && len(result.Containers) == 0 && len(result.Errors) == 0 {
		result.Errors = append(result.Errors, "No data rows found")
	}

	return result
}

// findSheet returns the sheet whose name matches want case-insensitively.
func findSheet(sheets []string, want string) string {
	for _, s := range sheets {
		if strings.EqualFold(strings.TrimSpace(s), want) {
			return s
		}
	}
	return ""
}

// startRow detects the header of a sheet and reports where data begins.
func startRow(result *ImportResult, rows [][]string, aliases map[string][]string, columns []string, sheet string) (ColumnMapping, int, bool) {
	mapping, hasHeader := DetectColumns(rows[0], aliases, columns)
	if !hasHeader {
		// A non-numeric width means an unrecognized header row.
		if _, err := strconv.ParseFloat(getCell(rows[0], mapping.Index("width")), 64); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: Detected header row, skipping", sheet))
			return mapping, 1, true
		}
		return mapping, 0, true
	}
	result.Warnings = append(result.Warnings, fmt.Sprintf("%s: Detected header row, skipping", sheet))

	var missing []string
	for _, role := range []string{"width", "depth", "height"} {
		if mapping.Index(role) == -1 {
			missing = append(missing, role)
		}
	}
	if len(missing) > 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: Required columns not found in header: %s", sheet, strings.Join(missing, ", ")))
		return mapping, 0, false
	}
	return mapping, 1, true
}

func importItems(result *ImportResult, rows [][]string, sheet string) {
	if len(rows) == 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s: Sheet is empty", sheet))
		return
	}
	mapping, first, ok := startRow(result, rows, itemAliases, itemColumns, sheet)
	if !ok {
		return
	}

	seen := make(map[string]bool)
	for i := first; i < len(rows); i++ {
		row := rows[i]
		if isEmptyRow(row) {
			continue
		}

		rowLabel := fmt.Sprintf("%s row %d", sheet, i+1)
		item, errMsg, warnings := parseItemRow(row, mapping, rowLabel)
		if errMsg != "" {
			result.Errors = append(result.Errors, errMsg)
			continue
		}
		result.Warnings = append(result.Warnings, warnings...)

		if seen[item.ID] {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: Duplicate item ID '%s'", rowLabel, item.ID))
			continue
		}
		seen[item.ID] = true
		result.Items = append(result.Items, item)
	}
}

func importContainers(result *ImportResult, rows [][]string, sheet string) {
	if len(rows) == 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s: Sheet is empty", sheet))
		return
	}
	mapping, first, ok := startRow(result, rows, containerAliases, containerColumns, sheet)
	if !ok {
		return
	}

	seen := make(map[string]bool)
	for i := first; i < len(rows); i++ {
		row := rows[i]
		if isEmptyRow(row) {
			continue
		}

		rowLabel := fmt.Sprintf("%s row %d", sheet, i+1)
		c, errMsg := parseContainerRow(row, mapping, rowLabel)
		if errMsg != "" {
			result.Errors = append(result.Errors, errMsg)
			continue
		}
		if seen[c.ID] {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: Duplicate container ID '%s'", rowLabel, c.ID))
			continue
		}
		seen[c.ID] = true
		result.Containers = append(result.Containers, c)
	}
}
