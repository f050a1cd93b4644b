package framework

import (
	"context"
	"strings"

	"github.com/wonny/sigapi/internal/resource"
	"github.com/wonny/sigapi/internal/timeseries"
)

// Strike is either an absolute price or a relative expression (SPOT, FWD+5%, SPOT-10%)
type Strike struct {
	Value *float64
	Expr  string `json:"strike" validate:"strike"`
}

// StrikePrice returns an absolute strike
func StrikePrice(v float64) Strike {
	return Strike{Value: &v}
}

// StrikeAt returns a relative strike expression
func StrikeAt(expr string) Strike {
	return Strike{Expr: expr}
}

// IsZero reports whether no strike was given
func (s Strike) IsZero() bool {
	return s.Value == nil && s.Expr == ""
}

// wire renders the strike; FWD is spelled FORWARD on the wire
func (s Strike) wire() interface{} {
	if s.Value != nil {
		return *s.Value
	}
	return strings.Replace(s.Expr, "FWD", "FORWARD", 1)
}

// OptionInput holds the terms shared by OTC options
type OptionInput struct {
	Strike       Strike `json:"strike"`
	StartDate    string `json:"start_date" validate:"required,datetime=2006-01-02"`
	MaturityDate string `json:"maturity_date" validate:"required,datetime=2006-01-02"`
	OptionType   string `json:"option_type" validate:"required,oneof=Call Put"`
	StrikeType   string `json:"strike_type" validate:"omitempty,oneof=Price Delta Premium"` // "" ⇒ Price
	ExerciseType string `json:"exercise_type" validate:"omitempty,oneof=European American"` // "" ⇒ European
}

func (in OptionInput) params(builder, identifier string) (resource.Params, error) {
	if in.Strike.IsZero() {
		return nil, &InputError{Builder: builder, Fields: []string{"strike is required"}}
	}
	strikeType := in.StrikeType
	if strikeType == "" {
		strikeType = "Price"
	}
	exercise := in.ExerciseType
	if exercise == "" {
		exercise = "European"
	}
	return resource.Params{
		"strike":         in.Strike.wire(),
		"strike_type":    strings.ToUpper(strikeType),
		"type":           strings.ToUpper(in.OptionType),
		"exercise_style": strings.ToUpper(exercise),
		"start_date":     in.StartDate,
		"maturity":       in.MaturityDate,
		"identifier":     identifier,
	}, nil
}

// otcInstrument is an OTC instrument valued through data/history
type otcInstrument struct {
	Instrument
	metrics frameCache
}

// Metrics returns NPV and risk measures by date (columns Metric*)
func (o *otcInstrument) Metrics(ctx context.Context) (*timeseries.Frame, error) {
	return o.metrics.metrics(ctx, &o.Base)
}

// History returns the NPV series
func (o *otcInstrument) History(ctx context.Context) (timeseries.Series, error) {
	return o.metrics.npv(ctx, &o.Base)
}

// Strike returns the resolved absolute strike
func (o *otcInstrument) Strike(ctx context.Context) (float64, error) {
	return o.refFloat(ctx, "strike")
}

// EquityIndexOTCOption is an OTC option on an equity index
type EquityIndexOTCOption struct {
	otcInstrument
	Underlying string
	Terms      OptionInput
}

// EquityIndexOptionInput describes an OTC equity index option
type EquityIndexOptionInput struct {
	Underlying string `json:"underlying" validate:"required"`
	OptionInput
}

// NewEquityIndexOTCOption creates instruments/otc/equity_index_option
func NewEquityIndexOTCOption(ctx context.Context, s *Session, in EquityIndexOptionInput) (*EquityIndexOTCOption, error) {
	const builder = "equity index otc option"
	if err := validateInput(builder, in); err != nil {
		return nil, err
	}
	params, err := in.params(builder, in.Underlying)
	if err != nil {
		return nil, err
	}

	env, err := s.create(ctx, "instruments/otc/equity_index_option", params)
	if err != nil {
		return nil, err
	}
	opt := &EquityIndexOTCOption{Underlying: in.Underlying, Terms: in.OptionInput}
	opt.bind(s, env, opt)
	return opt, nil
}

// FXOTCOption is an OTC option on a currency pair
type FXOTCOption struct {
	otcInstrument
	Over  string
	Under string
	Terms OptionInput
}

// FXOptionInput describes an OTC FX option on UNDER/OVER (EUR/USD ⇒ under EUR, over USD)
type FXOptionInput struct {
	Over  string `json:"over" validate:"required,currency"`
	Under string `json:"under" validate:"required,currency"`
	OptionInput
}

// NewFXOTCOption creates instruments/otc/fx_option
func NewFXOTCOption(ctx context.Context, s *Session, in FXOptionInput) (*FXOTCOption, error) {
	const builder = "fx otc option"
	if err := validateInput(builder, in); err != nil {
		return nil, err
	}
	params, err := in.params(builder, in.Under+in.Over+" CURNCY")
	if err != nil {
		return nil, err
	}

	env, err := s.create(ctx, "instruments/otc/fx_option", params)
	if err != nil {
		return nil, err
	}
	opt := &FXOTCOption{Over: in.Over, Under: in.Under, Terms: in.OptionInput}
	opt.bind(s, env, opt)
	return opt, nil
}

// FXForward is an outright FX forward
type FXForward struct {
	otcInstrument
}

// FXForwardInput describes an FX forward paying OVER against UNDER
type FXForwardInput struct {
	Over        string   `json:"over" validate:"required,currency"`
	Under       string   `json:"under" validate:"required,currency"`
	PaymentDate string   `json:"payment_date" validate:"required,datetime=2006-01-02"`
	StartDate   string   `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	ForwardRate *float64 `json:"forward_rate" validate:"omitempty,gt=0"`
}

// NewFXForward creates instruments/otc/fx_forward
func NewFXForward(ctx context.Context, s *Session, in FXForwardInput) (*FXForward, error) {
	if err := validateInput("fx forward", in); err != nil {
		return nil, err
	}

	params := resource.Params{
		"quote_currency": in.Over,
		"base_currency":  in.Under,
		"payment_date":   in.PaymentDate,
		"start_date":     optional(in.StartDate),
	}
	if in.ForwardRate != nil {
		params["forward_rate"] = *in.ForwardRate
	}

	env, err := s.create(ctx, "instruments/otc/fx_forward", params)
	if err != nil {
		return nil, err
	}
	fwd := &FXForward{}
	fwd.bind(s, env, fwd)
	return fwd, nil
}

// OISSwap receives a fixed rate and pays the overnight index rate
type OISSwap struct {
	otcInstrument
}

// OISSwapInput describes an OIS swap. A nil FixedRate uses the fair rate on TradeDate.
type OISSwapInput struct {
	Currency  string   `json:"currency" validate:"required,currency"`
	Tenor     string   `json:"tenor" validate:"required"`
	TradeDate string   `json:"trade_date" validate:"required,datetime=2006-01-02"`
	StartDate string   `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	FixedRate *float64 `json:"fixed_rate"`
}

// NewOISSwap creates instruments/otc/overnight_index_swap
func NewOISSwap(ctx context.Context, s *Session, in OISSwapInput) (*OISSwap, error) {
	if err := validateInput("ois swap", in); err != nil {
		return nil, err
	}

	params := resource.Params{
		"currency":   in.Currency,
		"tenor":      in.Tenor,
		"trade_date": in.TradeDate,
		"start_date": optional(in.StartDate),
	}
	if in.FixedRate != nil {
		params["fixed_rate"] = *in.FixedRate
	}

	env, err := s.create(ctx, "instruments/otc/overnight_index_swap", params)
	if err != nil {
		return nil, err
	}
	swap := &OISSwap{}
	swap.bind(s, env, swap)
	return swap, nil
}

// FixedRate returns the swap's fixed rate (the fair rate when none was given)
func (o *OISSwap) FixedRate(ctx context.Context) (float64, error) {
	return o.refFloat(ctx, "fixedRate")
}

// FixingLag returns the fixing lag in days
func (o *OISSwap) FixingLag(ctx context.Context) (float64, error) {
	return o.refFloat(ctx, "fixingLag")
}
