package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"

	"github.com/brunobiangulo/papergraph"
	"github.com/brunobiangulo/papergraph/store"
)

var (
	colorAccent = lipgloss.AdaptiveColor{Light: "#0984e3", Dark: "#74b9ff"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#636e72", Dark: "#b2bec3"}
	colorFail   = lipgloss.AdaptiveColor{Light: "#d63031", Dark: "#ff7675"}
	colorPass   = lipgloss.AdaptiveColor{Light: "#00b894", Dark: "#55efc4"}

	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorAccent).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// printResult writes the run summary and the artifact list.
func printResult(w io.Writer, filename string, res *papergraph.Result) {
	fmt.Fprintln(w, headingStyle.Render("Method graph extracted"))

	t := newTable("Field", "Value").Rows(
		[]string{"Run", res.RunID},
		[]string{"Paper", filename},
		[]string{"Model", res.Model},
		[]string{"Pages", strconv.Itoa(res.Pages)},
		[]string{"Methods", strconv.Itoa(res.Stats.Nodes)},
		[]string{"Relations", strconv.Itoa(res.Stats.Edges)},
		[]string{"Components", strconv.Itoa(res.Stats.Components)},
		[]string{"Isolated", strconv.Itoa(res.Stats.Isolated)},
		[]string{"Tokens", fmt.Sprintf("%d (%d prompt, %d completion)",
			res.Usage.TotalTokens, res.Usage.PromptTokens, res.Usage.CompletionTokens)},
		[]string{"Elapsed", res.Elapsed.Round(time.Millisecond).String()},
	)
	fmt.Fprintln(w, t)

	check := color.New(color.FgGreen).Sprint("✓")
	for _, path := range []string{res.Artifacts.JSON, res.Artifacts.HTML, res.Artifacts.XLSX} {
		if path == "" {
			continue
		}
		fmt.Fprintf(w, "%s Written: %s\n", check, path)
	}
}

func runsTable(runs []store.Run) *table.Table {
	t := newTable("Run", "Created", "Paper", "Model", "Status", "Methods", "Relations", "Output")
	for _, r := range runs {
		status := lipgloss.NewStyle().Foreground(colorPass).Render(r.Status)
		if r.Status != store.StatusSucceeded {
			status = lipgloss.NewStyle().Foreground(colorFail).Render(r.Status + " (" + r.ErrorKind + ")")
		}
		out := "-"
		if r.JSONPath != "" {
			out = filepath.Base(r.JSONPath)
		}
		t.Row(
			shortRunID(r.ID),
			r.CreatedAt,
			r.Filename,
			r.Model,
			status,
			strconv.Itoa(r.NodeCount),
			strconv.Itoa(r.EdgeCount),
			out,
		)
	}
	return t
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
