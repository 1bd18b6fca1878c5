package strategy

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/council-scraper/internal/model"
)

// Extractor turns one HTML list item into a Result. Selector strategies
// delegate ExtractOne to it.
type Extractor interface {
	Extract(ctx context.Context, item RawItem) Result
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, item RawItem) Result

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, item RawItem) Result {
	return f(ctx, item)
}

// FieldExtractor extracts records from list items using the CSS selectors
// configured for a council.
type FieldExtractor struct {
	fields    model.FieldSelectors
	idPattern *regexp.Regexp
	skip      []string
}

var _ Extractor = (*FieldExtractor)(nil)

// NewFieldExtractor compiles the field configuration.
func NewFieldExtractor(fields model.FieldSelectors) (*FieldExtractor, error) {
	fe := &FieldExtractor{fields: fields}
	if fields.URL == "" {
		fe.fields.URL = "a[href]"
	}
	if fields.IdentifierPattern != "" {
		re, err := regexp.Compile(fields.IdentifierPattern)
		if err != nil {
			return nil, eris.Wrap(err, "strategy: compile identifier_pattern")
		}
		if re.NumSubexp() < 1 {
			return nil, eris.New("strategy: identifier_pattern needs a capture group")
		}
		fe.idPattern = re
	}
	for _, s := range fields.SkipText {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			fe.skip = append(fe.skip, s)
		}
	}
	return fe, nil
}

// Extract implements Extractor. Items without a profile link or a name are
// skipped: in practice these are header rows and spacer elements.
func (fe *FieldExtractor) Extract(_ context.Context, item RawItem) Result {
	node := item.Node
	if node == nil || node.Length() == 0 {
		return Fail(&ExtractionError{Source: item.Source, Reason: "item has no html node"})
	}

	text := strings.ToLower(cleanText(node))
	for _, s := range fe.skip {
		if strings.Contains(text, s) {
			return Skip("matched skip text %q", s)
		}
	}

	link := node.Find(fe.fields.URL).First()
	if link.Length() == 0 && goquery.NodeName(node) == "a" {
		link = node
	}
	href, _ := link.Attr("href")
	if strings.TrimSpace(href) == "" {
		return Skip("no profile link")
	}
	profileURL, err := resolve(item.Source, href)
	if err != nil {
		return Fail(&ExtractionError{Source: item.Source, Reason: "resolve profile link", Err: err})
	}

	name := cleanText(link)
	if fe.fields.Name != "" {
		name = cleanText(node.Find(fe.fields.Name).First())
	}
	if name == "" {
		return Skip("no name")
	}

	identifier, err := fe.identifier(node, profileURL)
	if err != nil {
		return Fail(&ExtractionError{Source: item.Source, Reason: "identifier", Err: err})
	}

	party := ""
	if fe.fields.Party != "" {
		sel := node.Find(fe.fields.Party).Last()
		if fe.fields.PartyAttr != "" {
			party = sel.AttrOr(fe.fields.PartyAttr, "")
		} else {
			party = cleanText(sel)
		}
	}

	division := ""
	if fe.fields.Division != "" {
		division = cleanText(node.Find(fe.fields.Division).First())
	}

	c, err := model.NewCouncillor(profileURL, identifier, name, party, division)
	if err != nil {
		return Fail(err)
	}
	return Record(c.WithContact(fe.email(node), fe.photo(node, item.Source)))
}

func (fe *FieldExtractor) identifier(node *goquery.Selection, profileURL string) (string, error) {
	switch {
	case fe.fields.Identifier != "":
		sel := node.Find(fe.fields.Identifier).First()
		if fe.fields.IdentifierAttr != "" {
			return sel.AttrOr(fe.fields.IdentifierAttr, ""), nil
		}
		return cleanText(sel), nil
	case fe.idPattern != nil:
		m := fe.idPattern.FindStringSubmatch(profileURL)
		if m == nil {
			return "", eris.Errorf("pattern %q does not match %s", fe.idPattern, profileURL)
		}
		return m[1], nil
	default:
		return profileURL, nil
	}
}

func (fe *FieldExtractor) email(node *goquery.Selection) string {
	if fe.fields.Email == "" {
		return ""
	}
	sel := node.Find(fe.fields.Email).First()
	if href, ok := sel.Attr("href"); ok && strings.HasPrefix(strings.ToLower(href), "mailto:") {
		return href[len("mailto:"):]
	}
	return cleanText(sel)
}

func (fe *FieldExtractor) photo(node *goquery.Selection, source string) string {
	if fe.fields.Photo == "" {
		return ""
	}
	src, ok := node.Find(fe.fields.Photo).First().Attr("src")
	if !ok {
		return ""
	}
	abs, err := resolve(source, src)
	if err != nil {
		return ""
	}
	return abs
}
