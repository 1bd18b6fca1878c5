package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/council-scraper/internal/model"
)

func TestStatusColor(t *testing.T) {
	assert.Equal(t, green, statusColor("completed"))
	assert.Equal(t, green, statusColor("success"))
	assert.Equal(t, yellow, statusColor("disabled"))
	assert.Equal(t, red, statusColor("failed"))
	assert.Equal(t, red, statusColor("failure"))
	assert.Equal(t, cyan, statusColor("queued"))
}

func TestPrintRuns(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	printRuns(&buf, []model.RunLogEntry{
		{Council: "KIR", Status: model.RunStatusCompleted, Records: 69, FinishedAt: time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)},
		{Council: "CAM", Status: model.RunStatusFailed, Error: "fetch: 503", FinishedAt: time.Date(2026, 5, 1, 9, 31, 0, 0, time.UTC)},
	})

	out := buf.String()
	assert.Contains(t, out, "KIR      completed  69 records, finished 2026-05-01 09:30\n")
	assert.Contains(t, out, "CAM      failed     0 records, finished 2026-05-01 09:31: fetch: 503\n")
}

func TestPrintCouncils(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	printCouncils(&buf, []model.CouncilDescriptor{
		{Code: "ADU", Kind: model.KindHTML, BaseURL: "https://adur.example", Disabled: true},
	})
	assert.Contains(t, buf.String(), "ADU      disabled")
	assert.Contains(t, buf.String(), "https://adur.example [html]")
}

func TestPluralRecords(t *testing.T) {
	assert.Equal(t, "1 record, 2 issues", pluralRecords(1, 2))
	assert.Equal(t, "0 records, 1 issue", pluralRecords(0, 1))
}
