package strategy

import (
	"bytes"
	"context"
	"iter"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/council-scraper/internal/fetcher"
	"github.com/sells-group/council-scraper/internal/model"
)

const (
	modgovProbePath   = "/mgWebService.asmx?WSDL"
	modgovMembersPath = "/mgWebService.asmx/GetCouncillorsByWard"
	modgovProfilePath = "/mgUserInfo.aspx?UID="
)

// modgovDateLayouts are tried in order; ModGov dates are day-first.
var modgovDateLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"02/01/2006 15:04:05",
	"2/1/2006 15:04:05",
	"2006-01-02",
	"2006-01-02T15:04:05",
	"02 January 2006",
}

type modgovWard struct {
	Title       string             `xml:"wardtitle"`
	Councillors []modgovCouncillor `xml:"councillors>councillor"`
}

type modgovCouncillor struct {
	ID       string   `xml:"councillorid"`
	Name     string   `xml:"fullusername"`
	Party    string   `xml:"politicalpartytitle"`
	Email    string   `xml:"email"`
	Photo    string   `xml:"photobigurl"`
	EndDates []string `xml:"termsofoffice>termofoffice>enddate"`
}

type modgovItem struct {
	ward       string
	councillor modgovCouncillor
}

// ModGov scrapes councils running Modern.Gov through its web service. The
// WSDL is probed first; if it is not served the run fails without trying
// anything else.
type ModGov struct {
	base
}

var _ Strategy = (*ModGov)(nil)

// NewModGov creates a ModGov strategy.
func NewModGov(desc model.CouncilDescriptor, f fetcher.Fetcher) *ModGov {
	return &ModGov{base: base{desc: desc, fetch: f}}
}

func (m *ModGov) endpoint(path string) string {
	return strings.TrimRight(m.desc.BaseURL, "/") + path
}

// Discover implements Strategy.
func (m *ModGov) Discover(ctx context.Context) iter.Seq2[RawItem, error] {
	return func(yield func(RawItem, error) bool) {
		if err := m.probe(ctx); err != nil {
			yield(RawItem{}, err)
			return
		}

		apiURL := m.endpoint(modgovMembersPath)
		resp, err := m.fetch.Get(ctx, apiURL)
		if err != nil {
			yield(RawItem{}, err)
			return
		}

		var wards []modgovWard
		err = fetcher.EachXML(ctx, bytes.NewReader(resp.Body), "ward", func(w modgovWard) error {
			wards = append(wards, w)
			return nil
		})
		if err != nil {
			yield(RawItem{}, &ExtractionError{Source: apiURL, Reason: "parse councillors by ward", Err: err})
			return
		}

		next := 0
		for _, w := range wards {
			for _, c := range w.Councillors {
				item := RawItem{Index: next, Source: apiURL, Value: modgovItem{ward: w.Title, councillor: c}}
				next++
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

func (m *ModGov) probe(ctx context.Context) error {
	probeURL := m.endpoint(modgovProbePath)
	resp, err := m.fetch.Get(ctx, probeURL)
	if err != nil {
		return &ProtocolUnavailable{Protocol: "modgov", URL: probeURL, Reason: "probe failed", Err: err}
	}
	if !fetcher.LooksLikeXML(resp.Body) {
		return &ProtocolUnavailable{Protocol: "modgov", URL: probeURL, Reason: "probe response is not xml"}
	}
	return nil
}

// ExtractOne implements Strategy.
func (m *ModGov) ExtractOne(_ context.Context, item RawItem) Result {
	it, ok := item.Value.(modgovItem)
	if !ok {
		return Fail(&ExtractionError{Source: item.Source, Reason: "item is not a modgov councillor"})
	}
	mc := it.councillor

	name := strings.TrimSpace(mc.Name)
	if name == "" {
		return Skip("no name")
	}
	if strings.Contains(strings.ToLower(name), "vacan") {
		return Skip("vacancy in %s", it.ward)
	}

	id := strings.TrimSpace(mc.ID)
	profileURL := ""
	if id != "" {
		profileURL = m.endpoint(modgovProfilePath + url.QueryEscape(id))
	}

	c, err := model.NewCouncillor(profileURL, id, name, mc.Party, it.ward)
	if err != nil {
		return Fail(err)
	}
	c = c.WithContact(mc.Email, mc.Photo)
	c.StandingDown = m.standingDown(mc)
	return Record(c)
}

// standingDown returns the last term's end date as YYYY-MM-DD, or "" when
// it is absent, "unspecified" or unparseable.
func (m *ModGov) standingDown(mc modgovCouncillor) string {
	if len(mc.EndDates) == 0 {
		return ""
	}
	raw := strings.TrimSpace(mc.EndDates[len(mc.EndDates)-1])
	if raw == "" || strings.EqualFold(raw, "unspecified") {
		return ""
	}
	for _, layout := range modgovDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(time.DateOnly)
		}
	}
	zap.L().Debug("unparseable modgov end date",
		zap.String("council", m.desc.Code),
		zap.String("councillor", mc.ID),
		zap.String("enddate", raw),
	)
	return ""
}
