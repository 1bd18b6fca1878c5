// Package strategy holds the extraction algorithms that turn one council's
// website into councillor records.
//
// Every strategy splits its work into Discover, which lazily yields raw
// items (an HTML element, an XML node, a JSON object), and ExtractOne,
// which turns one raw item into a Result: a record, a skip with a reason,
// or an item-level error. A strategy that cannot fit that split implements
// Runner and drives a Collector itself.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/council-scraper/internal/fetcher"
	"github.com/sells-group/council-scraper/internal/model"
)

// Strategy is an extraction algorithm bound to one council.
type Strategy interface {
	// Council returns the descriptor this strategy scrapes.
	Council() model.CouncilDescriptor

	// Discover yields raw items in document order. A non-nil error ends the
	// sequence and fails the run; zero items is a valid empty result.
	Discover(ctx context.Context) iter.Seq2[RawItem, error]

	// ExtractOne turns one raw item into a record, a skip or an error.
	ExtractOne(ctx context.Context, item RawItem) Result
}

// Runner is implemented by strategies that replace the default
// discover-then-extract template. Run must report every item through c.
type Runner interface {
	Run(ctx context.Context, c *Collector) error
}

// RawItem is one not-yet-normalised scrape unit.
type RawItem struct {
	// Index is the item's position across the whole discovery.
	Index int

	// Source is the URL of the page or document the item came from.
	Source string

	// Node is set by HTML strategies.
	Node *goquery.Selection

	// Value carries non-HTML payloads (parsed XML, JSON values) and any
	// context the strategy needs at extraction time.
	Value any
}

// ResultKind is the outcome of extracting one item.
type ResultKind int

const (
	ResultRecord ResultKind = iota
	ResultSkip
	ResultError
)

func (k ResultKind) String() string {
	switch k {
	case ResultRecord:
		return "record"
	case ResultSkip:
		return "skip"
	case ResultError:
		return "error"
	default:
		return "unknown"
	}
}

// Result is exactly one of a record, a skip reason or an error.
type Result struct {
	Kind   ResultKind
	Record model.Councillor
	Reason string
	Err    error
}

// Record wraps a valid councillor.
func Record(c model.Councillor) Result {
	return Result{Kind: ResultRecord, Record: c}
}

// Skip marks an item that is not a councillor, such as a header row, a
// vacancy or an entry belonging to another council.
func Skip(format string, args ...any) Result {
	return Result{Kind: ResultSkip, Reason: fmt.Sprintf(format, args...)}
}

// Fail marks an item whose data could not be extracted.
func Fail(err error) Result {
	return Result{Kind: ResultError, Err: err}
}

// Validated is the usual tail of an extractor: a record when construction
// succeeded, otherwise an item error carrying the ValidationError.
func Validated(c model.Councillor, err error) Result {
	if err != nil {
		return Fail(err)
	}
	return Record(c)
}

// Collector accumulates the results of one run. It is the single place
// records and issues are recorded, whether by the default template or by
// a Runner.
type Collector struct {
	records *model.RecordSet
	issues  []model.Issue
	items   int
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{records: model.NewRecordSet()}
}

// Add records the result for item.
func (c *Collector) Add(item RawItem, res Result) {
	c.items++
	switch res.Kind {
	case ResultRecord:
		c.records.Add(res.Record)
	case ResultSkip:
		c.issues = append(c.issues, model.Issue{
			Kind:    model.IssueSkip,
			Index:   item.Index,
			Source:  item.Source,
			Message: res.Reason,
		})
	default:
		err := res.Err
		if err == nil {
			err = errors.New("extraction failed")
		}
		c.issues = append(c.issues, model.Issue{
			Kind:    model.IssueError,
			Index:   item.Index,
			Source:  item.Source,
			Message: err.Error(),
		})
	}
}

// Items returns how many items were reported.
func (c *Collector) Items() int {
	return c.items
}

// Records returns the collected records in first-seen order.
func (c *Collector) Records() []model.Councillor {
	return c.records.Records()
}

// Issues returns the per-item issues in the order they were reported.
func (c *Collector) Issues() []model.Issue {
	out := make([]model.Issue, len(c.issues))
	copy(out, c.issues)
	return out
}

// base carries what every strategy shares.
type base struct {
	desc  model.CouncilDescriptor
	fetch fetcher.Fetcher
}

func (b base) Council() model.CouncilDescriptor {
	return b.desc
}
