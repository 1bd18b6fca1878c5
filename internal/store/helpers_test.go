package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/council-scraper/internal/model"
)

func councillor(t *testing.T, id, name, party string) model.Councillor {
	t.Helper()
	c, err := model.NewCouncillor("https://www.kirklees.gov.uk/councillors/"+id, id, name, party, "Almondbury")
	require.NoError(t, err)
	return c
}

func sampleOutcome(t *testing.T) ([]model.Councillor, []model.Issue) {
	t.Helper()
	records := []model.Councillor{
		councillor(t, "101", "Alice Smith", "Labour"),
		councillor(t, "102", "Bob Jones", "Green Party").WithContact("bob@example.gov.uk", ""),
	}
	issues := []model.Issue{
		{Kind: model.IssueSkip, Index: 0, Source: "https://www.kirklees.gov.uk/councillors", Message: "no profile link"},
	}
	return records, issues
}

func runEntry(council string, status model.RunStatus, finished time.Time) model.RunLogEntry {
	return model.RunLogEntry{
		Council:    council,
		Status:     status,
		Records:    2,
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
	}
}
