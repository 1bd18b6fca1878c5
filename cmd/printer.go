package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/sells-group/council-scraper/internal/model"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// statusColor picks the colour for a run or report status.
func statusColor(status string) *color.Color {
	switch status {
	case string(model.RunStatusCompleted), "success", "enabled":
		return green
	case string(model.RunStatusDisabled):
		return yellow
	case string(model.RunStatusFailed), "failure":
		return red
	default:
		return cyan
	}
}

func printStatusLine(w io.Writer, code, status, detail string) {
	fmt.Fprintf(w, "%-8s ", code)
	statusColor(status).Fprintf(w, "%-10s", status)
	if detail != "" {
		fmt.Fprintf(w, " %s", detail)
	}
	fmt.Fprintln(w)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printCouncils(w io.Writer, descs []model.CouncilDescriptor) {
	for _, d := range descs {
		status := "enabled"
		if d.Disabled {
			status = "disabled"
		}
		printStatusLine(w, d.Code, status, fmt.Sprintf("%-7s %s [%s]", d.Kind, d.BaseURL, strings.Join(d.AllTags(), ",")))
	}
}

func printRuns(w io.Writer, runs []model.RunLogEntry) {
	for _, r := range runs {
		detail := fmt.Sprintf("%d records, finished %s", r.Records, r.FinishedAt.Format("2006-01-02 15:04"))
		if r.Error != "" {
			detail += ": " + r.Error
		}
		printStatusLine(w, r.Council, string(r.Status), detail)
	}
}
