package strategy

import (
	"context"
	"iter"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/sells-group/council-scraper/internal/fetcher"
	"github.com/sells-group/council-scraper/internal/model"
)

// RawIteration is a strategy assembled from a discover function and an
// extract function, for sources that fit neither selectors nor a known CMS.
type RawIteration struct {
	base
	discover func(ctx context.Context) iter.Seq2[RawItem, error]
	extract  func(ctx context.Context, item RawItem) Result
}

var _ Strategy = (*RawIteration)(nil)

// NewRawIteration creates a raw-iteration strategy.
func NewRawIteration(
	desc model.CouncilDescriptor,
	f fetcher.Fetcher,
	discover func(ctx context.Context) iter.Seq2[RawItem, error],
	extract func(ctx context.Context, item RawItem) Result,
) *RawIteration {
	return &RawIteration{base: base{desc: desc, fetch: f}, discover: discover, extract: extract}
}

// Discover implements Strategy.
func (r *RawIteration) Discover(ctx context.Context) iter.Seq2[RawItem, error] {
	return r.discover(ctx)
}

// ExtractOne implements Strategy.
func (r *RawIteration) ExtractOne(ctx context.Context, item RawItem) Result {
	return r.extract(ctx, item)
}

// NewJSONFeed creates a raw-iteration strategy over a JSON member feed.
// The feed is fetched once; items are found at the configured gjson path
// and fields are read with gjson paths relative to each item.
func NewJSONFeed(desc model.CouncilDescriptor, f fetcher.Fetcher) *RawIteration {
	cfg := desc.JSON

	discover := func(ctx context.Context) iter.Seq2[RawItem, error] {
		return func(yield func(RawItem, error) bool) {
			resp, err := f.Get(ctx, desc.BaseURL)
			if err != nil {
				yield(RawItem{}, err)
				return
			}
			if !gjson.ValidBytes(resp.Body) {
				yield(RawItem{}, &ExtractionError{Source: desc.BaseURL, Reason: "feed is not valid json"})
				return
			}

			items := gjson.ParseBytes(resp.Body)
			if cfg.Items != "" {
				items = items.Get(cfg.Items)
			}
			if !items.IsArray() {
				yield(RawItem{}, &ExtractionError{Source: desc.BaseURL, Reason: "items path " + cfg.Items + " is not an array"})
				return
			}

			for i, v := range items.Array() {
				if !yield(RawItem{Index: i, Source: desc.BaseURL, Value: v}, nil) {
					return
				}
			}
		}
	}

	extract := func(_ context.Context, item RawItem) Result {
		v, ok := item.Value.(gjson.Result)
		if !ok || !v.IsObject() {
			return Fail(&ExtractionError{Source: item.Source, Reason: "item is not a json object"})
		}

		name := v.Get(cfg.Name).String()
		if cfg.Name == "" || strings.TrimSpace(name) == "" {
			return Skip("no name")
		}
		id := v.Get(cfg.Identifier).String()

		profile := ""
		switch {
		case cfg.URL != "":
			profile = v.Get(cfg.URL).String()
		case cfg.URLTemplate != "":
			profile = strings.ReplaceAll(cfg.URLTemplate, "{id}", id)
		}
		if profile != "" {
			abs, err := resolve(item.Source, profile)
			if err != nil {
				return Fail(&ExtractionError{Source: item.Source, Reason: "resolve profile url", Err: err})
			}
			profile = abs
		}

		c, err := model.NewCouncillor(profile, id, name, field(v, cfg.Party), field(v, cfg.Division))
		if err != nil {
			return Fail(err)
		}
		return Record(c.WithContact(field(v, cfg.Email), ""))
	}

	return NewRawIteration(desc, f, discover, extract)
}

func field(v gjson.Result, path string) string {
	if path == "" {
		return ""
	}
	return v.Get(path).String()
}
