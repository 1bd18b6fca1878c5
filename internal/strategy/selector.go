package strategy

import (
	"context"
	"iter"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/council-scraper/internal/fetcher"
	"github.com/sells-group/council-scraper/internal/model"
)

// Selector scrapes a single list page: it fetches the base URL once, finds
// the container, and yields every matching item inside it.
type Selector struct {
	base
	extractor Extractor
}

var _ Strategy = (*Selector)(nil)

// NewSelector creates a selector strategy. Field semantics come from ex.
func NewSelector(desc model.CouncilDescriptor, f fetcher.Fetcher, ex Extractor) *Selector {
	return &Selector{base: base{desc: desc, fetch: f}, extractor: ex}
}

// Discover implements Strategy.
func (s *Selector) Discover(ctx context.Context) iter.Seq2[RawItem, error] {
	return func(yield func(RawItem, error) bool) {
		doc, err := s.fetchDocument(ctx, s.desc.BaseURL)
		if err != nil {
			yield(RawItem{}, err)
			return
		}
		s.yieldItems(doc, 0, yield)
	}
}

// yieldItems yields the page's items starting at index next and returns the
// index after the last one, or -1 if the consumer stopped or the page was
// malformed.
func (s *Selector) yieldItems(doc *goquery.Document, next int, yield func(RawItem, error) bool) int {
	pageURL := doc.Url.String()
	items, err := selectItems(doc, s.desc.ListPage, pageURL)
	if err != nil {
		yield(RawItem{}, err)
		return -1
	}
	for i := range items.Length() {
		item := RawItem{Index: next, Source: pageURL, Node: items.Eq(i)}
		next++
		if !yield(item, nil) {
			return -1
		}
	}
	return next
}

// ExtractOne implements Strategy.
func (s *Selector) ExtractOne(ctx context.Context, item RawItem) Result {
	return s.extractor.Extract(ctx, item)
}
