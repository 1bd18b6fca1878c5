package strategy

import (
	"context"
	"iter"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/council-scraper/internal/fetcher"
	"github.com/sells-group/council-scraper/internal/model"
)

// DefaultMaxPages bounds paging when the descriptor sets no limit.
const DefaultMaxPages = 50

// PagedSelector is a Selector that follows a "next page" link. Paging stops
// when there is no next link, when the link leads to a page already
// visited, or after MaxPages pages.
type PagedSelector struct {
	Selector
	maxPages int
}

var _ Strategy = (*PagedSelector)(nil)

// NewPagedSelector creates a paged selector strategy.
func NewPagedSelector(desc model.CouncilDescriptor, f fetcher.Fetcher, ex Extractor) *PagedSelector {
	maxPages := desc.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &PagedSelector{Selector: *NewSelector(desc, f, ex), maxPages: maxPages}
}

// Discover implements Strategy.
func (p *PagedSelector) Discover(ctx context.Context) iter.Seq2[RawItem, error] {
	return func(yield func(RawItem, error) bool) {
		log := zap.L().With(zap.String("component", "strategy.paged"), zap.String("council", p.desc.Code))

		visited := make(map[string]bool)
		pageURL := p.desc.BaseURL
		next := 0
		for pages := 1; ; pages++ {
			visited[pageKey(pageURL)] = true

			doc, err := p.fetchDocument(ctx, pageURL)
			if err != nil {
				yield(RawItem{}, err)
				return
			}
			// Redirects can land on a page reached earlier under another URL.
			visited[pageKey(doc.Url.String())] = true

			if next = p.yieldItems(doc, next, yield); next < 0 {
				return
			}

			link := nextPageLink(doc, p.desc.ListPage.NextPage)
			if link == "" {
				return
			}
			if visited[pageKey(link)] {
				log.Debug("next page already visited, stopping", zap.String("url", link))
				return
			}
			if pages >= p.maxPages {
				log.Warn("page limit reached, stopping", zap.Int("max_pages", p.maxPages))
				return
			}
			pageURL = link
		}
	}
}

// nextPageLink returns the absolute next-page URL or "" if there is none.
// The selector may match the anchor itself or an element wrapping it.
func nextPageLink(doc *goquery.Document, selector string) string {
	if selector == "" {
		return ""
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return ""
	}
	href, ok := sel.Attr("href")
	if !ok {
		href, ok = sel.Find("a[href]").First().Attr("href")
	}
	if !ok {
		return ""
	}
	abs, err := resolve(doc.Url.String(), href)
	if err != nil {
		return ""
	}
	return abs
}

// pageKey normalises a page URL for the visited set.
func pageKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}
