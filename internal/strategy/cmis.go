package strategy

import (
	"context"
	"iter"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/council-scraper/internal/fetcher"
	"github.com/sells-group/council-scraper/internal/model"
)

const (
	cmisPersonBlock  = "div.PE_People_PersonBlock"
	cmisDefaultLabel = "Ward:"
)

// CMIS scrapes councils running the CMIS members module. Each configured
// ward path is a listing of person blocks with a fixed layout; with no ward
// paths the base URL is the single listing.
type CMIS struct {
	base
	cfg model.CMISConfig
}

var _ Strategy = (*CMIS)(nil)

// NewCMIS creates a CMIS strategy.
func NewCMIS(desc model.CouncilDescriptor, f fetcher.Fetcher) *CMIS {
	cfg := desc.CMIS
	if cfg.DivisionLabel == "" {
		cfg.DivisionLabel = cmisDefaultLabel
	}
	return &CMIS{base: base{desc: desc, fetch: f}, cfg: cfg}
}

// Discover implements Strategy. A listing that cannot be fetched fails the
// run; a listing with no person blocks contributes no items.
func (c *CMIS) Discover(ctx context.Context) iter.Seq2[RawItem, error] {
	return func(yield func(RawItem, error) bool) {
		wards := c.cfg.Wards
		if len(wards) == 0 {
			wards = []model.CMISWard{{}}
		}

		next := 0
		for _, ward := range wards {
			pageURL := c.desc.BaseURL
			if ward.Path != "" {
				abs, err := resolve(c.desc.BaseURL, ward.Path)
				if err != nil {
					yield(RawItem{}, &ExtractionError{Source: c.desc.BaseURL, Reason: "ward path " + ward.Path, Err: err})
					return
				}
				pageURL = abs
			}

			doc, err := c.fetchDocument(ctx, pageURL)
			if err != nil {
				yield(RawItem{}, err)
				return
			}

			blocks := doc.Find(cmisPersonBlock)
			for i := range blocks.Length() {
				item := RawItem{Index: next, Source: doc.Url.String(), Node: blocks.Eq(i), Value: ward.Name}
				next++
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// ExtractOne implements Strategy.
func (c *CMIS) ExtractOne(ctx context.Context, item RawItem) Result {
	block := item.Node
	if block == nil || block.Length() == 0 {
		return Fail(&ExtractionError{Source: item.Source, Reason: "item has no html node"})
	}

	href, ok := block.Find("a[href]").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return Skip("no profile link")
	}
	profileURL, err := resolve(item.Source, href)
	if err != nil {
		return Fail(&ExtractionError{Source: item.Source, Reason: "resolve profile link", Err: err})
	}

	identifier := cmisIdentifier(profileURL)
	if identifier == "" {
		return Fail(&ExtractionError{Source: item.Source, Reason: "no /id/ segment in " + profileURL})
	}

	name := cleanText(block.Find("div.NameLink").First())
	if name == "" {
		name = cleanText(block.Find("a[href]").First())
	}
	if name == "" {
		return Skip("no name")
	}
	if strings.Contains(strings.ToLower(name), "vacan") {
		return Skip("vacancy")
	}

	division := textAfterLabel(block, c.cfg.DivisionLabel)
	if division == "" {
		division, _ = item.Value.(string)
	}

	party := ""
	if imgs := block.Find("img[title]"); imgs.Length() > 0 {
		party = strings.TrimSpace(strings.ReplaceAll(imgs.Last().AttrOr("title", ""), "(logo)", ""))
	}

	rec, err := model.NewCouncillor(profileURL, identifier, name, party, division)
	if err != nil {
		return Fail(err)
	}

	if c.cfg.FetchEmails {
		email, err := c.profileEmail(ctx, profileURL)
		if err != nil {
			return Fail(&ExtractionError{Source: profileURL, Reason: "fetch profile", Err: err})
		}
		rec = rec.WithContact(email, "")
	}
	return Record(rec)
}

func (c *CMIS) profileEmail(ctx context.Context, profileURL string) (string, error) {
	doc, err := c.fetchDocument(ctx, profileURL)
	if err != nil {
		return "", err
	}
	return emailFrom(doc.Find(".Email").First()), nil
}

func emailFrom(sel *goquery.Selection) string {
	if href, ok := sel.Find("a[href^='mailto:']").First().Attr("href"); ok {
		return strings.TrimPrefix(href, "mailto:")
	}
	return cleanText(sel)
}

// cmisIdentifier returns the path segment following "/id/".
func cmisIdentifier(profileURL string) string {
	lower := strings.ToLower(profileURL)
	i := strings.Index(lower, "/id/")
	if i < 0 {
		return ""
	}
	rest := profileURL[i+len("/id/"):]
	if j := strings.IndexAny(rest, "/?#"); j >= 0 {
		rest = rest[:j]
	}
	return rest
}
