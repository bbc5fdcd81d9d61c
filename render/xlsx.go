package render

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/brunobiangulo/papergraph/graph"
)

const (
	nodesSheet = "Nodes"
	edgesSheet = "Edges"
)

// XLSX exports g as a workbook with a Nodes sheet and an Edges sheet.
func XLSX(g *graph.MethodGraph) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", nodesSheet); err != nil {
		return nil, fmt.Errorf("naming nodes sheet: %w", err)
	}
	if _, err := f.NewSheet(edgesSheet); err != nil {
		return nil, fmt.Errorf("creating edges sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("creating header style: %w", err)
	}

	colors := AssignColors(g.Nodes)
	nodeRows := [][]any{{"id", "canonical_name", "confidence_ie", "size", "color"}}
	for i, n := range g.Nodes {
		nodeRows = append(nodeRows, []any{n.ID, n.CanonicalName, n.Confidence, NodeSize(n.Confidence), colors[i]})
	}
	if err := writeRows(f, nodesSheet, nodeRows, header); err != nil {
		return nil, err
	}

	edgeRows := [][]any{{"source_id", "target_id", "relation"}}
	for _, e := range g.Edges {
		edgeRows = append(edgeRows, []any{e.SourceID, e.TargetID, e.Relation})
	}
	if err := writeRows(f, edgesSheet, edgeRows, header); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+1, err)
		}
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("styling %s header: %w", sheet, err)
	}
	return nil
}
