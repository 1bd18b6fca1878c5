package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/council-scraper/internal/model"
	"github.com/sells-group/council-scraper/internal/store"
)

func TestWriteCouncillorCSV(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "export.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	alice, err := model.NewCouncillor("https://www.kirklees.gov.uk/councillors/101", "101", "Alice Smith", "Labour", "Almondbury")
	require.NoError(t, err)
	alice = alice.WithContact("alice@example.gov.uk", "")
	ann, err := model.NewCouncillor("https://democracy.cambridgeshire.gov.uk/id/1203", "1203", "Ann Lee, MBE", "Liberal Democrat", "Abbey")
	require.NoError(t, err)
	require.NoError(t, st.SaveOutcome(ctx, "KIR", []model.Councillor{alice}, nil))
	require.NoError(t, st.SaveOutcome(ctx, "CAM", []model.Councillor{ann}, nil))

	var buf bytes.Buffer
	n, err := writeCouncillorCSV(ctx, &buf, st, []string{"CAM", "KIR", "ADU"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, exportColumns, rows[0])
	assert.Equal(t, []string{
		"CAM", "Abbey", "1203", "", "https://democracy.cambridgeshire.gov.uk/id/1203",
		"Ann Lee, MBE", "Liberal Democrat", "", "",
	}, rows[1])
	assert.Equal(t, "KIR", rows[2][0])
	assert.Equal(t, "alice@example.gov.uk", rows[2][3])
}

type brokenReader struct{}

func (brokenReader) Councillors(context.Context, string) ([]model.Councillor, error) {
	return nil, assert.AnError
}

func TestWriteCouncillorCSV_ReadError(t *testing.T) {
	_, err := writeCouncillorCSV(context.Background(), &bytes.Buffer{}, brokenReader{}, []string{"KIR"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export: read KIR")
}
