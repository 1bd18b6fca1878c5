package strategy

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/sells-group/council-scraper/internal/model"
)

// fetchDocument GETs pageURL and parses it as HTML, decoding the declared
// charset. The document's Url is the final URL after redirects.
func (b base) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	resp, err := b.fetch.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	r, err := charset.NewReader(bytes.NewReader(resp.Body), resp.ContentType)
	if err != nil {
		return nil, &ExtractionError{Source: pageURL, Reason: "decode charset", Err: err}
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, &ExtractionError{Source: pageURL, Reason: "parse html", Err: err}
	}
	final := resp.URL
	if final == "" {
		final = pageURL
	}
	if u, err := url.Parse(final); err == nil {
		doc.Url = u
	} else {
		doc.Url = &url.URL{}
	}
	return doc, nil
}

// selectItems returns the item elements inside the first container match.
// With no container selector the whole document is searched.
func selectItems(doc *goquery.Document, lp model.ListPage, pageURL string) (*goquery.Selection, error) {
	scope := doc.Selection
	if lp.Container != "" {
		scope = doc.Find(lp.Container).First()
		if scope.Length() == 0 {
			return nil, &ExtractionError{Source: pageURL, Reason: "container " + lp.Container + " not found"}
		}
	}
	return scope.Find(lp.Item), nil
}

// resolve makes href absolute against pageURL.
func resolve(pageURL, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", eris.New("empty href")
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", eris.Wrapf(err, "parse page url %q", pageURL)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", eris.Wrapf(err, "parse href %q", href)
	}
	return base.ResolveReference(ref).String(), nil
}

// cleanText collapses whitespace runs in the selection's text.
func cleanText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// textAfterLabel finds the text node containing label and returns the text
// that follows it: the remainder of that node, or else the next non-empty
// sibling of the node or of its parent. It serves markup like
// "Ward: <b>North</b>" and "<span>Ward:</span> North".
func textAfterLabel(sel *goquery.Selection, label string) string {
	var found string
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.TextNode {
			if i := strings.Index(n.Data, label); i >= 0 {
				if rest := strings.TrimSpace(n.Data[i+len(label):]); rest != "" {
					found = rest
					return true
				}
				for _, start := range []*html.Node{n, n.Parent} {
					if start == nil {
						continue
					}
					for sib := start.NextSibling; sib != nil; sib = sib.NextSibling {
						if t := strings.Join(strings.Fields(nodeText(sib)), " "); t != "" {
							found = t
							return true
						}
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	for _, n := range sel.Nodes {
		if walk(n) {
			break
		}
	}
	return found
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(nodeText(c))
	}
	return b.String()
}
