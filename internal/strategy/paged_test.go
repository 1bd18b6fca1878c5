package strategy

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/council-scraper/internal/model"
)

func pagedDescriptor() model.CouncilDescriptor {
	return model.CouncilDescriptor{
		Code:     "CAM",
		Kind:     model.KindPaged,
		BaseURL:  "https://www.cambridge.gov.uk/councillors",
		ListPage: model.ListPage{Container: "div.list", Item: "div.person", NextPage: "li.next"},
		Fields:   model.FieldSelectors{IdentifierPattern: `/people/(\w+)`},
	}
}

func listing(next string, people ...string) string {
	body := `<div class="list">`
	for _, p := range people {
		body += fmt.Sprintf(`<div class="person"><a href="/people/%s">Councillor %s</a></div>`, p, p)
	}
	body += `</div>`
	if next != "" {
		body += fmt.Sprintf(`<ul class="pager"><li class="next"><a href="%s">Next</a></li></ul>`, next)
	}
	return body
}

func TestPagedSelector_FollowsNextLinks(t *testing.T) {
	desc := pagedDescriptor()
	stub := newStub().
		page(desc.BaseURL, listing("?page=2", "a", "b")).
		page(desc.BaseURL+"?page=2", listing("?page=3", "c")).
		page(desc.BaseURL+"?page=3", listing("", "d"))

	st, err := New(desc, stub)
	require.NoError(t, err)
	results, err := drain(t, st)
	require.NoError(t, err)

	var ids []string
	for _, r := range records(results) {
		ids = append(ids, r.Record.Identifier)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids, "document order across pages")
	assert.Len(t, stub.requests(), 3)
}

func TestPagedSelector_CycleGuard(t *testing.T) {
	desc := pagedDescriptor()
	stub := newStub().
		page(desc.BaseURL, listing("?page=2", "a")).
		page(desc.BaseURL+"?page=2", listing(desc.BaseURL+"#top", "b"))

	st, err := New(desc, stub)
	require.NoError(t, err)
	results, err := drain(t, st)
	require.NoError(t, err)

	assert.Len(t, records(results), 2)
	assert.Equal(t, []string{desc.BaseURL, desc.BaseURL + "?page=2"}, stub.requests())
}

func TestPagedSelector_SelfLinkStopsAfterOnePage(t *testing.T) {
	desc := pagedDescriptor()
	stub := newStub().page(desc.BaseURL, listing(desc.BaseURL, "a"))

	st, err := New(desc, stub)
	require.NoError(t, err)
	_, err = drain(t, st)
	require.NoError(t, err)
	assert.Len(t, stub.requests(), 1)
}

func TestPagedSelector_MaxPages(t *testing.T) {
	desc := pagedDescriptor()
	desc.MaxPages = 3
	stub := newStub()
	for i := 1; i <= 10; i++ {
		url := desc.BaseURL
		if i > 1 {
			url = fmt.Sprintf("%s?page=%d", desc.BaseURL, i)
		}
		stub.page(url, listing(fmt.Sprintf("?page=%d", i+1), fmt.Sprintf("p%d", i)))
	}

	st, err := New(desc, stub)
	require.NoError(t, err)
	results, err := drain(t, st)
	require.NoError(t, err)
	assert.Len(t, records(results), 3)
	assert.Len(t, stub.requests(), 3)
}

func TestPagedSelector_NextSelectorOnAnchor(t *testing.T) {
	desc := pagedDescriptor()
	desc.ListPage.NextPage = "a.next"
	stub := newStub().
		page(desc.BaseURL, listing("", "a")+`<a class="next" href="?page=2">Next</a>`).
		page(desc.BaseURL+"?page=2", listing("", "b"))

	st, err := New(desc, stub)
	require.NoError(t, err)
	results, err := drain(t, st)
	require.NoError(t, err)
	assert.Len(t, records(results), 2)
}

func TestPagedSelector_ItemIndexesContinueAcrossPages(t *testing.T) {
	desc := pagedDescriptor()
	stub := newStub().
		page(desc.BaseURL, listing("?page=2", "a", "b")).
		page(desc.BaseURL+"?page=2", listing("", "c"))

	st, err := New(desc, stub)
	require.NoError(t, err)

	var idx []int
	var sources []string
	for item, err := range st.Discover(t.Context()) {
		require.NoError(t, err)
		idx = append(idx, item.Index)
		sources = append(sources, item.Source)
	}
	assert.Equal(t, []int{0, 1, 2}, idx)
	assert.Equal(t, desc.BaseURL+"?page=2", sources[2])
}

func TestPageKey(t *testing.T) {
	assert.Equal(t, pageKey("https://x.gov.uk/a#frag"), pageKey("https://x.gov.uk/a"))
	assert.Equal(t, pageKey("https://x.gov.uk"), pageKey("https://x.gov.uk/"))
	assert.NotEqual(t, pageKey("https://x.gov.uk/a?page=1"), pageKey("https://x.gov.uk/a?page=2"))
}
