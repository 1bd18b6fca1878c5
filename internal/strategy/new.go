package strategy

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/council-scraper/internal/fetcher"
	"github.com/sells-group/council-scraper/internal/model"
)

// New builds the strategy for desc. Each call returns an independent
// instance bound to f; nothing is shared between councils.
func New(desc model.CouncilDescriptor, f fetcher.Fetcher) (Strategy, error) {
	switch desc.Kind {
	case model.KindHTML, model.KindPaged:
		ex, err := NewFieldExtractor(desc.Fields)
		if err != nil {
			return nil, eris.Wrapf(err, "strategy: %s", desc.Code)
		}
		if desc.Kind == model.KindPaged {
			return NewPagedSelector(desc, f, ex), nil
		}
		return NewSelector(desc, f, ex), nil
	case model.KindCMIS:
		return NewCMIS(desc, f), nil
	case model.KindModGov:
		return NewModGov(desc, f), nil
	case model.KindJSON:
		return NewJSONFeed(desc, f), nil
	default:
		return nil, eris.Errorf("strategy: %s: unknown kind %q", desc.Code, desc.Kind)
	}
}
