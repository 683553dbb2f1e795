package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"gcode-toolpath/pkg/toolpath"
)

// maxReportLayers caps the layer table in the text report; --json lists
// every layer.
const maxReportLayers = 20

// report is the --json output.
type report struct {
	toolpath.Summary
	LayerList []toolpath.Layer `json:"layer_list"`
}

func newReport(job *toolpath.Job) report {
	layers := job.Layers()
	if layers == nil {
		layers = []toolpath.Layer{}
	}
	return report{Summary: job.Summary(), LayerList: layers}
}

// renderReport formats the job summary for a terminal. Styles degrade to
// plain text when w is not a terminal.
func renderReport(w io.Writer, job *toolpath.Job, opts *options) string {
	r := lipgloss.NewRenderer(w)
	var (
		titleStyle = r.NewStyle().Bold(true).
				Foreground(lipgloss.Color("#FAFAFA")).
				Background(lipgloss.Color("#7D56F4")).
				Padding(0, 1)
		keyStyle  = r.NewStyle().Foreground(lipgloss.Color("240")).Width(18)
		valStyle  = r.NewStyle().Foreground(lipgloss.Color("255"))
		warnStyle = r.NewStyle().Foreground(lipgloss.Color("208"))
		dimStyle  = r.NewStyle().Foreground(lipgloss.Color("238"))
	)

	s := job.Summary()
	kv := func(k, v string) string {
		return keyStyle.Render(k) + valStyle.Render(v)
	}

	tools := make([]string, len(s.Tools))
	for i, t := range s.Tools {
		tools[i] = "T" + strconv.Itoa(t)
	}

	lines := []string{
		titleStyle.Render(s.Name),
		"",
		kv("paths", fmt.Sprintf("%d (%d extrusion, %d travel)", s.Paths, s.Extrusions, s.Travels)),
		kv("tools", strings.Join(tools, " ")),
		kv("units", s.Units),
		kv("extruded length", fmt.Sprintf("%.2f", s.ExtrusionLength)),
		kv("bounds min", formatVec(s.Bounds.Min[:])),
		kv("bounds max", formatVec(s.Bounds.Max[:])),
	}

	if !s.Layered {
		lines = append(lines, kv("layers", warnStyle.Render("disabled (non-planar extrusion)")))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}
	lines = append(lines, kv("layers", strconv.Itoa(s.Layers)))

	layers := job.Layers()
	rows := make([][]string, 0, min(len(layers), maxReportLayers))
	for i, l := range layers {
		if i == maxReportLayers {
			break
		}
		rows = append(rows, []string{
			strconv.Itoa(i),
			strconv.FormatFloat(l.Z, 'f', 3, 64),
			strconv.FormatFloat(l.Height, 'f', 3, 64),
			strconv.Itoa(len(l.Paths)),
		})
	}
	if len(rows) > 0 {
		t := table.New().
			Border(lipgloss.NormalBorder()).
			BorderStyle(r.NewStyle().Foreground(lipgloss.Color("63"))).
			Headers("LAYER", "Z", "HEIGHT", "PATHS").
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if opts.layer >= 0 && row == opts.layer {
					return r.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
				}
				return r.NewStyle()
			})
		lines = append(lines, "", t.String())
	}
	if len(layers) > maxReportLayers {
		lines = append(lines, dimStyle.Render(fmt.Sprintf("... %d more layers (use --json)", len(layers)-maxReportLayers)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func formatVec(v []float64) string {
	parts := make([]string, len(v))
	for i, c := range v {
		parts[i] = strconv.FormatFloat(c, 'f', 3, 64)
	}
	return strings.Join(parts, ", ")
}
