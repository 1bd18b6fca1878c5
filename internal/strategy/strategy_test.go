package strategy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/council-scraper/internal/model"
)

func mustCouncillor(t *testing.T, url, id, name string) model.Councillor {
	t.Helper()
	c, err := model.NewCouncillor(url, id, name, "", "")
	require.NoError(t, err)
	return c
}

func TestCollector(t *testing.T) {
	c := NewCollector()
	c.Add(RawItem{Index: 0, Source: "p1"}, Record(mustCouncillor(t, "https://x/1", "1", "One")))
	c.Add(RawItem{Index: 1, Source: "p1"}, Skip("header row"))
	c.Add(RawItem{Index: 2, Source: "p1"}, Fail(errors.New("boom")))
	c.Add(RawItem{Index: 3, Source: "p2"}, Record(mustCouncillor(t, "https://x/1", "1", "One Again")))
	c.Add(RawItem{Index: 4, Source: "p2"}, Result{Kind: ResultError})

	assert.Equal(t, 5, c.Items())
	recs := c.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "One Again", recs[0].Name)

	issues := c.Issues()
	require.Len(t, issues, 3)
	assert.Equal(t, model.IssueSkip, issues[0].Kind)
	assert.Equal(t, "header row", issues[0].Message)
	assert.Equal(t, model.IssueError, issues[1].Kind)
	assert.Equal(t, "boom", issues[1].Message)
	assert.Equal(t, 2, issues[1].Index)
	assert.Equal(t, "extraction failed", issues[2].Message)

	issues[0].Message = "mutated"
	assert.Equal(t, "header row", c.Issues()[0].Message)
}

func TestValidated(t *testing.T) {
	res := Validated(model.NewCouncillor("", "1", "One", "", ""))
	assert.Equal(t, ResultError, res.Kind)
	var ve *model.ValidationError
	assert.True(t, errors.As(res.Err, &ve))

	res = Validated(model.NewCouncillor("https://x/1", "1", "One", "", ""))
	assert.Equal(t, ResultRecord, res.Kind)
}

func TestResultKindString(t *testing.T) {
	assert.Equal(t, "record", ResultRecord.String())
	assert.Equal(t, "skip", ResultSkip.String())
	assert.Equal(t, "error", ResultError.String())
}

func TestErrorsUnwrap(t *testing.T) {
	inner := errors.New("inner")
	ee := &ExtractionError{Source: "https://x", Reason: "bad", Err: inner}
	assert.ErrorIs(t, ee, inner)
	assert.Contains(t, ee.Error(), "bad")

	pu := &ProtocolUnavailable{Protocol: "modgov", URL: "https://x", Reason: "probe failed", Err: inner}
	assert.ErrorIs(t, pu, inner)
	assert.Contains(t, pu.Error(), "modgov")
}
