package framework

import (
	"context"
	"fmt"

	"github.com/wonny/sigapi/internal/resource"
	"github.com/wonny/sigapi/internal/timeseries"
)

// TradableTSIndex is a tradable instrument over a caller-provided series
type TradableTSIndex struct {
	Base
	history seriesCache
}

// TradableIndexInput describes a custom series upload.
// StartDate must equal the first date of Series.
type TradableIndexInput struct {
	Currency  string            `json:"currency" validate:"required,currency"`
	Series    timeseries.Series `json:"timeseries" validate:"required,min=1"`
	StartDate string            `json:"start_date" validate:"required,datetime=2006-01-02"`
}

// NewTradableTSIndex uploads the series to instruments/custom
func NewTradableTSIndex(ctx context.Context, s *Session, in TradableIndexInput) (*TradableTSIndex, error) {
	const builder = "tradable ts index"
	if err := validateInput(builder, in); err != nil {
		return nil, err
	}

	series := make(timeseries.Series, len(in.Series))
	copy(series, in.Series)
	series.Sort()

	first, _ := series.First()
	if got := first.Time.Format("2006-01-02"); got != in.StartDate {
		return nil, &InputError{
			Builder: builder,
			Fields:  []string{fmt.Sprintf("start_date %s must be the first date of the series (%s)", in.StartDate, got)},
		}
	}

	env, err := s.create(ctx, "instruments/custom", resource.Params{
		"currency":   in.Currency,
		"timeseries": series.ToWire(),
	})
	if err != nil {
		return nil, err
	}

	idx := &TradableTSIndex{}
	idx.bind(s, env, idx)
	return idx, nil
}

// History returns the index history as computed by the API
func (t *TradableTSIndex) History(ctx context.Context) (timeseries.Series, error) {
	return t.history.history(ctx, &t.Base)
}
