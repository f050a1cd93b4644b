package framework

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wonny/sigapi/internal/resource"
	"github.com/wonny/sigapi/internal/timeseries"
)

// Strategy is any strategy built through the framework API
type Strategy struct {
	Base
	kind    string
	history seriesCache
}

// Kind returns the creation endpoint, e.g. strategies/basket
func (s *Strategy) Kind() string {
	return s.kind
}

// History returns the valuation history sorted by date. It is read once and cached.
func (s *Strategy) History(ctx context.Context) (timeseries.Series, error) {
	return s.history.history(ctx, &s.Base)
}

// ErrHistoryRestricted is returned by History for stock reinvestment strategies
var ErrHistoryRestricted = errors.New("the total return history for stocks is restricted")

// newStrategy issues the creation call and binds the result
func newStrategy(ctx context.Context, s *Session, path string, params resource.Params) (*Strategy, error) {
	env, err := s.create(ctx, path, params)
	if err != nil {
		return nil, err
	}
	st := &Strategy{kind: path}
	st.bind(s, env, st)
	return st, nil
}

// optional returns nil for empty strings so the field is left out of the request
func optional(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

// RollingFutureInput describes a rolling futures strategy
type RollingFutureInput struct {
	ContractCode    string `json:"contract_code" validate:"required"`
	ContractSector  string `json:"contract_sector" validate:"required"`
	Currency        string `json:"currency" validate:"omitempty,currency"`
	RollingRule     string `json:"rolling_rule"`
	FrontOffset     string `json:"front_offset"`
	StartDate       string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	MonthlyRollDays string `json:"monthly_roll_days"`
}

func (in RollingFutureInput) params() resource.Params {
	return resource.Params{
		"identifier":        in.ContractCode + " " + in.ContractSector,
		"currency":          optional(in.Currency),
		"rolling_rule":      optional(in.RollingRule),
		"front_offset":      optional(in.FrontOffset),
		"start_date":        optional(in.StartDate),
		"monthly_roll_days": optional(in.MonthlyRollDays),
	}
}

// NewRollingFutureStrategy rolls a futures contract series (identifier "CODE SECTOR")
func NewRollingFutureStrategy(ctx context.Context, s *Session, in RollingFutureInput) (*Strategy, error) {
	if err := validateInput("rolling future strategy", in); err != nil {
		return nil, err
	}
	return newStrategy(ctx, s, "strategies/futures/rolling", in.params())
}

// RollingFutureFXHedgedInput describes an FX-hedged rolling futures strategy
type RollingFutureFXHedgedInput struct {
	RollingFutureInput
	TotalReturn *bool `json:"total_return"`
	// nil ⇒ 0.02
	CashRebalanceThreshold     *float64 `json:"cash_rebalance_threshold" validate:"omitempty,gte=0"`
	ExposureRebalanceThreshold *float64 `json:"exposure_rebalance_threshold" validate:"omitempty,gte=0"`
}

// DefaultRebalanceThreshold applies when no hedge threshold is given
const DefaultRebalanceThreshold = 0.02

// NewRollingFutureFXHedgedStrategy rolls a futures contract series hedged into the strategy currency
func NewRollingFutureFXHedgedStrategy(ctx context.Context, s *Session, in RollingFutureFXHedgedInput) (*Strategy, error) {
	if err := validateInput("rolling future fx hedged strategy", in); err != nil {
		return nil, err
	}

	params := in.RollingFutureInput.params()
	if in.TotalReturn != nil {
		params["total_return"] = *in.TotalReturn
	}
	params["cash_rebalance_threshold"] = DefaultRebalanceThreshold
	if in.CashRebalanceThreshold != nil {
		params["cash_rebalance_threshold"] = *in.CashRebalanceThreshold
	}
	params["exposure_rebalance_threshold"] = DefaultRebalanceThreshold
	if in.ExposureRebalanceThreshold != nil {
		params["exposure_rebalance_threshold"] = *in.ExposureRebalanceThreshold
	}

	return newStrategy(ctx, s, "strategies/futures/rolling/fx_hedged", params)
}

// BasketInput describes a fixed-weight basket of other objects
type BasketInput struct {
	Constituents       []Ref     `json:"constituents" validate:"required,min=1"`
	Weights            []float64 `json:"weights" validate:"required,min=1"`
	Currency           string    `json:"currency" validate:"omitempty,currency"`
	RebalanceFrequency string    `json:"rebalance_frequency"` // "" ⇒ EOM
	StartDate          string    `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
}

// DefaultRebalanceFrequency is used by baskets and signal strategies
const DefaultRebalanceFrequency = "EOM"

// NewBasketStrategy resolves and waits for every constituent, then creates the basket
// with the constituents' object ids in input order
func NewBasketStrategy(ctx context.Context, s *Session, in BasketInput) (*Strategy, error) {
	if err := validateInput("basket strategy", in); err != nil {
		return nil, err
	}
	if len(in.Constituents) != len(in.Weights) {
		return nil, &InputError{
			Builder: "basket strategy",
			Fields:  []string{fmt.Sprintf("%d constituents but %d weights", len(in.Constituents), len(in.Weights))},
		}
	}

	ids, err := resolveIDs(ctx, s, in.Constituents)
	if err != nil {
		return nil, err
	}

	frequency := in.RebalanceFrequency
	if frequency == "" {
		frequency = DefaultRebalanceFrequency
	}

	return newStrategy(ctx, s, "strategies/basket", resource.Params{
		"constituents":        ids,
		"weights":             in.Weights,
		"currency":            optional(in.Currency),
		"rebalance_frequency": frequency,
		"start_date":          optional(in.StartDate),
	})
}

// SignalInput describes a strategy whose weights follow a signal frame.
// Frame columns are constituent names or object ids.
type SignalInput struct {
	Signal             *timeseries.Frame `json:"signal" validate:"required"`
	Currency           string            `json:"currency" validate:"omitempty,currency"` // "" ⇒ USD
	RebalanceFrequency string            `json:"rebalance_frequency"`                    // "" ⇒ EOM
	StartDate          string            `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
}

// NewSignalStrategy resolves every signal column, renames the columns to object ids
// and creates the strategy
func NewSignalStrategy(ctx context.Context, s *Session, in SignalInput) (*Strategy, error) {
	if err := validateInput("signal strategy", in); err != nil {
		return nil, err
	}
	if len(in.Signal.Columns) == 0 {
		return nil, &InputError{Builder: "signal strategy", Fields: []string{"signal has no columns"}}
	}

	names := in.Signal.Names()
	refs := make([]Ref, len(names))
	for i, name := range names {
		refs[i] = Named(name)
	}
	ids, err := resolveIDs(ctx, s, refs)
	if err != nil {
		return nil, err
	}

	signal := timeseries.NewFrame(in.Signal.Index)
	for i, name := range names {
		signal.Columns[ids[i]] = in.Signal.Columns[name]
	}

	currency := in.Currency
	if currency == "" {
		currency = "USD"
	}
	frequency := in.RebalanceFrequency
	if frequency == "" {
		frequency = DefaultRebalanceFrequency
	}

	return newStrategy(ctx, s, "strategies/signal", resource.Params{
		"signal":              signal.ToWire(),
		"currency":            currency,
		"rebalance_frequency": frequency,
		"start_date":          optional(in.StartDate),
	})
}

// resolveIDs waits for every reference and returns their object ids in order
func resolveIDs(ctx context.Context, s *Session, refs []Ref) ([]string, error) {
	objects, err := s.Resolve(ctx, refs...)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(objects))
	for i, obj := range objects {
		id, err := obj.ObjectID()
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// RollingSwapInput describes a rolling interest rate swap strategy
type RollingSwapInput struct {
	Tenor    string `json:"tenor" validate:"required"`
	Currency string `json:"currency" validate:"required,currency"`
	// nil ⇒ 6 months
	ForwardStartMonths     *int   `json:"forward_start_months" validate:"omitempty,gte=0"`
	RollingFrequencyMonths *int   `json:"rolling_frequency_months" validate:"omitempty,gte=1"`
	StartDate              string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
}

// NewRollingSwapStrategy creates strategies/swaps/rolling
func NewRollingSwapStrategy(ctx context.Context, s *Session, in RollingSwapInput) (*Strategy, error) {
	if err := validateInput("rolling swap strategy", in); err != nil {
		return nil, err
	}

	forward := 6
	if in.ForwardStartMonths != nil {
		forward = *in.ForwardStartMonths
	}
	params := resource.Params{
		"currency":      in.Currency,
		"tenor":         in.Tenor,
		"forward_start": fmt.Sprintf("%dM", forward),
		"start_date":    optional(in.StartDate),
	}
	if in.RollingFrequencyMonths != nil {
		params["rolling_frequency"] = fmt.Sprintf("%dM", *in.RollingFrequencyMonths)
	}

	return newStrategy(ctx, s, "strategies/swaps/rolling", params)
}

// RollingFXForwardInput describes a rolling FX forward strategy
type RollingFXForwardInput struct {
	Currency     string `json:"currency" validate:"required,currency"`
	LongCurrency string `json:"long_currency" validate:"required,currency"`
	ForwardTenor string `json:"forward_tenor" validate:"required"`
	StartDate    string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
}

// NewRollingFXForwardStrategy creates strategies/fx_forwards/rolling
func NewRollingFXForwardStrategy(ctx context.Context, s *Session, in RollingFXForwardInput) (*Strategy, error) {
	if err := validateInput("rolling fx forward strategy", in); err != nil {
		return nil, err
	}
	return newStrategy(ctx, s, "strategies/fx_forwards/rolling", resource.Params{
		"quote_currency": in.Currency,
		"base_currency":  in.LongCurrency,
		"tenor":          in.ForwardTenor,
		"start_date":     optional(in.StartDate),
	})
}

// RollingBondInput describes a rolling government bond strategy
type RollingBondInput struct {
	Country   string `json:"country" validate:"required"`
	Tenor     string `json:"tenor" validate:"required"`
	StartDate string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
}

// NewRollingBondStrategy creates strategies/bonds/rolling
func NewRollingBondStrategy(ctx context.Context, s *Session, in RollingBondInput) (*Strategy, error) {
	if err := validateInput("rolling bond strategy", in); err != nil {
		return nil, err
	}
	return newStrategy(ctx, s, "strategies/bonds/rolling", resource.Params{
		"country":    in.Country,
		"tenor":      in.Tenor,
		"start_date": optional(in.StartDate),
	})
}

// NewSingleBondStrategy holds one bond and reinvests its coupons
func NewSingleBondStrategy(ctx context.Context, s *Session, bondName string) (*Strategy, error) {
	if strings.TrimSpace(bondName) == "" {
		return nil, &InputError{Builder: "single bond strategy", Fields: []string{"bond_name is required"}}
	}
	return newStrategy(ctx, s, "strategies/bonds/reinvestment", resource.Params{
		"identifier": bondName,
	})
}

// ReinvestmentStrategy is a stock or ETF total return strategy
type ReinvestmentStrategy struct {
	Base
}

// History is not available for stock reinvestment strategies
func (r *ReinvestmentStrategy) History(ctx context.Context) (timeseries.Series, error) {
	return nil, ErrHistoryRestricted
}

// NewReinvestmentStrategy handles corporate actions for a US-listed stock or ETF
func NewReinvestmentStrategy(ctx context.Context, s *Session, underlyer string) (*ReinvestmentStrategy, error) {
	ticker := strings.ToUpper(strings.TrimSpace(underlyer))
	if !strings.HasSuffix(ticker, "US EQUITY") && !strings.HasSuffix(ticker, "UP EQUITY") {
		return nil, &InputError{
			Builder: "reinvestment strategy",
			Fields:  []string{fmt.Sprintf("underlyer %q is not a supported stock or ETF", underlyer)},
		}
	}

	env, err := s.create(ctx, "instruments/stock", resource.Params{"identifier": ticker})
	if err != nil {
		return nil, err
	}
	r := &ReinvestmentStrategy{}
	r.bind(s, env, r)
	return r, nil
}

// SingleStockStrategy builds the reinvestment strategy for an exchange ticker (e.g. AAPL ⇒ AAPL US EQUITY)
func SingleStockStrategy(ctx context.Context, s *Session, exchangeTicker string) (*ReinvestmentStrategy, error) {
	return NewReinvestmentStrategy(ctx, s, exchangeTicker+" US EQUITY")
}
