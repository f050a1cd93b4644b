package framework

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/wonny/sigapi/internal/resource"
)

// OptionGroupSuffix ends every OTC option group name
const OptionGroupSuffix = " OTC OPTION GROUP"

// OptionGroupKind distinguishes equity index groups from FX groups
type OptionGroupKind int

const (
	EquityIndexOptionGroup OptionGroupKind = iota
	FXOptionGroup
)

// OptionGroup is a named family of OTC options on one underlying
type OptionGroup struct {
	Name string
	Kind OptionGroupKind
}

var optionGroups = map[string]OptionGroupKind{
	"SPX INDEX OTC OPTION GROUP":  EquityIndexOptionGroup,
	"NDX INDEX OTC OPTION GROUP":  EquityIndexOptionGroup,
	"NKY INDEX OTC OPTION GROUP":  EquityIndexOptionGroup,
	"RTY INDEX OTC OPTION GROUP":  EquityIndexOptionGroup,
	"SX5E INDEX OTC OPTION GROUP": EquityIndexOptionGroup,
	"VIX INDEX OTC OPTION GROUP":  EquityIndexOptionGroup,
	"EURUSD OTC OPTION GROUP":     FXOptionGroup,
	"GBPUSD OTC OPTION GROUP":     FXOptionGroup,
	"USDCHF OTC OPTION GROUP":     FXOptionGroup,
	"USDJPY OTC OPTION GROUP":     FXOptionGroup,
}

// GetOptionGroup returns a known option group by name
func GetOptionGroup(name string) (*OptionGroup, error) {
	kind, ok := optionGroups[name]
	if !ok {
		return nil, fmt.Errorf("unknown option group %q", name)
	}
	return &OptionGroup{Name: name, Kind: kind}, nil
}

// OptionGroups lists the known group names
func OptionGroups() []string {
	out := make([]string, 0, len(optionGroups))
	for name := range optionGroups {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Underlying returns the group's underlying: "SPX INDEX" or "EURUSD"
func (g *OptionGroup) Underlying() string {
	return strings.TrimSuffix(g.Name, OptionGroupSuffix)
}

// Identifier returns the instrument identifier of the underlying ("SPX INDEX", "EURUSD CURNCY")
func (g *OptionGroup) Identifier() string {
	u := g.Underlying()
	if strings.HasSuffix(u, " INDEX") {
		return u
	}
	return u + " CURNCY"
}

// Option creates one option of the group
func (g *OptionGroup) Option(ctx context.Context, s *Session, terms OptionInput) (Object, error) {
	if terms.StrikeType == "SPOT" || terms.StrikeType == "FWD" {
		return nil, &InputError{
			Builder: "option group",
			Fields:  []string{fmt.Sprintf("strike_type %s is not supported, use StrikeAt", terms.StrikeType)},
		}
	}

	if g.Kind == FXOptionGroup {
		pair := g.Underlying()
		if len(pair) < 6 {
			return nil, fmt.Errorf("option group %q has no currency pair", g.Name)
		}
		return NewFXOTCOption(ctx, s, FXOptionInput{
			Under:       pair[0:3],
			Over:        pair[3:6],
			OptionInput: terms,
		})
	}
	return NewEquityIndexOTCOption(ctx, s, EquityIndexOptionInput{
		Underlying:  g.Underlying(),
		OptionInput: terms,
	})
}

// StraddleInput describes a call and a put with the same strike and expiry
type StraddleInput struct {
	GroupName    string   `json:"group_name" validate:"required"`
	StartDate    string   `json:"start_date" validate:"required,datetime=2006-01-02"`
	Maturity     string   `json:"maturity" validate:"required,datetime=2006-01-02"`
	Strike       *float64 `json:"strike"`
	StrikeType   string   `json:"strike_type" validate:"omitempty,oneof=SPOT Delta Price Premium"` // "" ⇒ Price
	ExerciseType string   `json:"exercise_type" validate:"omitempty,oneof=European American"`
	Currency     string   `json:"currency" validate:"omitempty,currency"`
}

func straddleStrike(strike *float64, strikeType string) (interface{}, string) {
	if strikeType == "" {
		strikeType = "Price"
	}
	if strikeType == "SPOT" {
		return "SPOT", "PRICE"
	}
	if strike == nil {
		return nil, strings.ToUpper(strikeType)
	}
	return *strike, strings.ToUpper(strikeType)
}

func groupIdentifier(builder, name string) (string, error) {
	if !strings.HasSuffix(name, OptionGroupSuffix) {
		return "", &InputError{
			Builder: builder,
			Fields:  []string{fmt.Sprintf("group_name %q must end with %q", name, OptionGroupSuffix)},
		}
	}
	g := OptionGroup{Name: name}
	return g.Identifier(), nil
}

func exerciseStyle(exercise string) string {
	if exercise == "" {
		exercise = "European"
	}
	return strings.ToUpper(exercise)
}

// NewStraddle creates strategies/otc/options/straddle
func NewStraddle(ctx context.Context, s *Session, in StraddleInput) (*Strategy, error) {
	if err := validateInput("straddle", in); err != nil {
		return nil, err
	}
	identifier, err := groupIdentifier("straddle", in.GroupName)
	if err != nil {
		return nil, err
	}

	strike, strikeType := straddleStrike(in.Strike, in.StrikeType)
	return newStrategy(ctx, s, "strategies/otc/options/straddle", resource.Params{
		"strike":         strike,
		"strike_type":    strikeType,
		"exercise_style": exerciseStyle(in.ExerciseType),
		"start_date":     in.StartDate,
		"maturity":       in.Maturity,
		"identifier":     identifier,
	})
}

// RollingStraddleInput describes a straddle re-struck at a fixed frequency
type RollingStraddleInput struct {
	GroupName        string   `json:"group_name" validate:"required"`
	StartDate        string   `json:"start_date" validate:"required,datetime=2006-01-02"`
	Tenor            string   `json:"maturity" validate:"required"`
	RollingFrequency string   `json:"rolling_frequency" validate:"required"`
	Strike           *float64 `json:"strike"`
	StrikeType       string   `json:"strike_type" validate:"omitempty,oneof=SPOT Delta Price Premium"`
	ExerciseType     string   `json:"exercise_type" validate:"omitempty,oneof=European American"`
}

// NewRollingStraddle creates strategies/otc/options/rolling_straddle
func NewRollingStraddle(ctx context.Context, s *Session, in RollingStraddleInput) (*Strategy, error) {
	if err := validateInput("rolling straddle", in); err != nil {
		return nil, err
	}
	identifier, err := groupIdentifier("rolling straddle", in.GroupName)
	if err != nil {
		return nil, err
	}

	strike, strikeType := straddleStrike(in.Strike, in.StrikeType)
	return newStrategy(ctx, s, "strategies/otc/options/rolling_straddle", resource.Params{
		"strike":            strike,
		"strike_type":       strikeType,
		"exercise_style":    exerciseStyle(in.ExerciseType),
		"start_date":        in.StartDate,
		"tenor":             in.Tenor,
		"identifier":        identifier,
		"rolling_frequency": in.RollingFrequency,
	})
}
