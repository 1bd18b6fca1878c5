package strategy

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/council-scraper/internal/model"
)

const feedURL = "https://www.example.gov.uk/api/members.json"

func jsonDescriptor() model.CouncilDescriptor {
	return model.CouncilDescriptor{
		Code:    "JSN",
		Kind:    model.KindJSON,
		BaseURL: feedURL,
		JSON: model.JSONFeedConfig{
			Items:       "data.members",
			Identifier:  "id",
			URLTemplate: "/councillors/{id}",
			Name:        "name.display",
			Party:       "party",
			Division:    "ward.title",
			Email:       "contact.email",
		},
	}
}

func TestJSONFeed_ExtractsMembers(t *testing.T) {
	body := `{"data":{"members":[
		{"id":17,"name":{"display":"Cllr Amy Ng"},"party":"Green","ward":{"title":"Riverside"},"contact":{"email":"amy@example.gov.uk"}},
		{"id":18,"name":{"display":""},"party":"Labour"},
		{"id":19,"name":{"display":"Cllr Tom Hill"}}
	]}}`
	stub := newStub().page(feedURL, body)

	st, err := New(jsonDescriptor(), stub)
	require.NoError(t, err)
	results, err := drain(t, st)
	require.NoError(t, err)
	require.Len(t, results, 3)

	amy := results[0].Record
	assert.Equal(t, "17", amy.Identifier)
	assert.Equal(t, "Cllr Amy Ng", amy.Name)
	assert.Equal(t, "Green", amy.Party)
	assert.Equal(t, "Riverside", amy.Division)
	assert.Equal(t, "amy@example.gov.uk", amy.Email)
	assert.Equal(t, "https://www.example.gov.uk/councillors/17", amy.URL)

	assert.Equal(t, ResultSkip, results[1].Kind)
	assert.Equal(t, ResultRecord, results[2].Kind)
	assert.Empty(t, results[2].Record.Party)
}

func TestJSONFeed_URLPath(t *testing.T) {
	desc := jsonDescriptor()
	desc.JSON.URLTemplate = ""
	desc.JSON.URL = "links.self"
	stub := newStub().page(feedURL, `{"data":{"members":[{"id":"a1","name":{"display":"X"},"links":{"self":"https://other.example/p/a1"}}]}}`)

	st, err := New(desc, stub)
	require.NoError(t, err)
	results, err := drain(t, st)
	require.NoError(t, err)
	require.Len(t, records(results), 1)
	assert.Equal(t, "https://other.example/p/a1", results[0].Record.URL)
}

func TestJSONFeed_BadFeeds(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"data":`},
		{"items not an array", `{"data":{"members":{"id":1}}}`},
		{"items missing", `{"other":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := New(jsonDescriptor(), newStub().page(feedURL, tt.body))
			require.NoError(t, err)
			_, err = drain(t, st)
			var ee *ExtractionError
			assert.True(t, errors.As(err, &ee))
		})
	}
}

func TestJSONFeed_NonObjectItemIsItemError(t *testing.T) {
	st, err := New(jsonDescriptor(), newStub().page(feedURL, `{"data":{"members":[42]}}`))
	require.NoError(t, err)
	results, err := drain(t, st)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ResultError, results[0].Kind)
}

func TestRawIteration_Delegates(t *testing.T) {
	desc := model.CouncilDescriptor{Code: "RAW", Kind: model.KindJSON, BaseURL: "https://example.gov.uk"}
	discover := func(context.Context) iter.Seq2[RawItem, error] {
		return func(yield func(RawItem, error) bool) {
			for i, name := range []string{"One", "Two"} {
				if !yield(RawItem{Index: i, Source: desc.BaseURL, Value: name}, nil) {
					return
				}
			}
		}
	}
	extract := func(_ context.Context, item RawItem) Result {
		name := item.Value.(string)
		return Validated(model.NewCouncillor(desc.BaseURL+"/"+name, name, name, "", ""))
	}

	st := NewRawIteration(desc, newStub(), discover, extract)
	assert.Equal(t, "RAW", st.Council().Code)

	results, err := drain(t, st)
	require.NoError(t, err)
	require.Len(t, records(results), 2)
	assert.Equal(t, "Two", results[1].Record.Identifier)
}
