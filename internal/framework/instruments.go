package framework

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/sigapi/internal/resource"
	"github.com/wonny/sigapi/internal/timeseries"
)

// Instrument is a primitive market instrument resolved from an identifier
type Instrument struct {
	Base
}

// Type returns the server-reported instrument type tag
func (i *Instrument) Type(ctx context.Context) (string, error) {
	env, err := i.creation.WaitForObjectStatus(ctx, resource.WaitOptions{Property: "type"})
	if err != nil {
		return "", err
	}
	return env.String("type"), nil
}

// Future is a single futures contract
type Future struct {
	Instrument
}

// ContractSize returns the contract multiplier
func (f *Future) ContractSize(ctx context.Context) (float64, error) {
	return f.refFloat(ctx, "contractSize")
}

// PointValue returns the value of one index point (futvalpt)
func (f *Future) PointValue(ctx context.Context) (float64, error) {
	return f.refFloat(ctx, "pointValue")
}

// ExpiryDate returns the expiry; ok is false when the contract has none
func (f *Future) ExpiryDate(ctx context.Context) (time.Time, bool, error) {
	return f.refDate(ctx, "expiryDate")
}

// FirstDeliveryNoticeDate returns the first notice date; ok is false when unset
func (f *Future) FirstDeliveryNoticeDate(ctx context.Context) (time.Time, bool, error) {
	return f.refDate(ctx, "firstDeliveryNoticeDate")
}

// FuturesContractGroup describes the contract family of a future
type FuturesContractGroup struct {
	Currency         string  `json:"currency"`
	AssetDescription string  `json:"description"`
	ContractSize     float64 `json:"contractSize"`
}

// Group returns the contract group from the $group reference field
func (f *Future) Group(ctx context.Context) (*FuturesContractGroup, error) {
	data, err := f.ReferenceData(ctx)
	if err != nil {
		return nil, err
	}
	raw, ok := data["$group"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("reference data has no $group")
	}

	group := &FuturesContractGroup{}
	group.Currency, _ = raw["currency"].(string)
	group.AssetDescription, _ = raw["description"].(string)
	group.ContractSize, _ = raw["contractSize"].(float64)
	return group, nil
}

// Index is a price index
type Index struct {
	Instrument
}

// Cash is a currency cash instrument (e.g. USD CASH)
type Cash struct {
	Instrument
}

// FXSpot is a currency pair spot rate
type FXSpot struct {
	Instrument
}

// Stock is a single equity or ETF
type Stock struct {
	Instrument
}

// Bond is a single government or corporate bond
type Bond struct {
	Instrument
}

// Country returns the issuer country
func (b *Bond) Country(ctx context.Context) (string, error) {
	return b.refString(ctx, "country")
}

// ⭐ SSOT: 서버 타입 태그 → 래퍼 생성자 매핑은 여기서만
var instrumentTypes = map[string]func() Object{
	"FUTURE":                  func() Object { return &Future{} },
	"INDEX":                   func() Object { return &Index{} },
	"FX_FORWARD":              func() Object { return &FXForward{} },
	"EQUITY_INDEX_OTC_OPTION": func() Object { return &EquityIndexOTCOption{} },
	"FX_OTC_OPTION":           func() Object { return &FXOTCOption{} },
	"OIS_SWAP":                func() Object { return &OISSwap{} },
	"CASH":                    func() Object { return &Cash{} },
	"FX_SPOT":                 func() Object { return &FXSpot{} },
	"STOCK":                   func() Object { return &Stock{} },
	"BOND":                    func() Object { return &Bond{} },
}

// InstrumentTypes returns the known type tags
func InstrumentTypes() []string {
	out := make([]string, 0, len(instrumentTypes))
	for tag := range instrumentTypes {
		out = append(out, tag)
	}
	return out
}

// instrument creates a primitive instrument from an identifier and wraps it by type tag
func (s *Session) instrument(ctx context.Context, identifier string) (Object, error) {
	env, err := s.create(ctx, "instruments", resource.Params{"identifier": identifier})
	if err != nil {
		return nil, err
	}

	typed, err := env.WaitForObjectStatus(ctx, resource.WaitOptions{Property: "type"})
	if err != nil {
		return nil, err
	}

	tag := typed.String("type")
	ctor, ok := instrumentTypes[strings.ToUpper(tag)]
	if !ok {
		return nil, &UnknownInstrumentTypeError{Identifier: identifier, Type: tag}
	}

	obj := ctor()
	obj.base().bind(s, env, obj)

	s.logger.WithFields(map[string]interface{}{
		"identifier": identifier,
		"type":       tag,
	}).Debug("Instrument resolved")
	return obj, nil
}

// refDate reads an ISO date reference field; ok is false when the field is null
func (b *Base) refDate(ctx context.Context, key string) (time.Time, bool, error) {
	data, err := b.ReferenceData(ctx)
	if err != nil {
		return time.Time{}, false, err
	}
	str, _ := data[key].(string)
	if str == "" {
		return time.Time{}, false, nil
	}
	t, err := timeseries.ParseTime(str)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}
