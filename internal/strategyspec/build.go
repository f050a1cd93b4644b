package strategyspec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/sigapi/internal/framework"
	"github.com/wonny/sigapi/internal/timeseries"
	"github.com/wonny/sigapi/pkg/logger"
)

// ErrNoHistory is returned by Result.History for objects without a valuation history
var ErrNoHistory = errors.New("object has no history")

// Historian is any built strategy that exposes a valuation history
type Historian interface {
	History(ctx context.Context) (timeseries.Series, error)
}

// Result holds the objects built from a book, by ref, in declaration order
type Result struct {
	Order    []string
	Objects  map[string]framework.Object
	Snapshot *BuildSnapshot
}

// Get returns the object built for ref
func (r *Result) Get(ref string) (framework.Object, bool) {
	obj, ok := r.Objects[ref]
	return obj, ok
}

// History waits for ref and reads its history
func (r *Result) History(ctx context.Context, ref string) (timeseries.Series, error) {
	obj, ok := r.Objects[ref]
	if !ok {
		return nil, fmt.Errorf("unknown ref %q", ref)
	}
	h, ok := obj.(Historian)
	if !ok {
		return nil, fmt.Errorf("ref %q: %w", ref, ErrNoHistory)
	}
	return h.History(ctx)
}

// Builder creates the strategies of a book in one session
type Builder struct {
	session *framework.Session
	logger  *logger.Logger
}

// NewBuilder creates a builder for session
func NewBuilder(s *framework.Session, log *logger.Logger) *Builder {
	return &Builder{
		session: s,
		logger:  log.Component("strategyspec"),
	}
}

// ApplySettings sets the book's session settings. Fails once the session exists.
func (b *Builder) ApplySettings(settings Settings) error {
	set := func(setting framework.Setting, value interface{}) error {
		if err := b.session.Set(setting, value); err != nil {
			return fmt.Errorf("failed to apply setting %s: %w", setting, err)
		}
		return nil
	}

	if v := settings.ExcludeTransactionCosts; v != nil {
		if err := set(framework.ExcludeTransactionCosts, *v); err != nil {
			return err
		}
	}
	if v := settings.DisableTCostNetting; v != nil {
		if err := set(framework.DisableTCostNetting, *v); err != nil {
			return err
		}
	}
	if v := settings.ExcessReturnOnly; v != nil {
		if err := set(framework.ExcessReturnOnly, *v); err != nil {
			return err
		}
	}
	if settings.TMTimezone != "" {
		if err := set(framework.TMTimezone, settings.TMTimezone); err != nil {
			return err
		}
	}
	if settings.DefaultCurrency != "" {
		if err := set(framework.DefaultCurrency, settings.DefaultCurrency); err != nil {
			return err
		}
	}
	return nil
}

// Build applies the settings and creates every entry in declaration order.
// Creation does not wait; baskets wait for their constituents.
func (b *Builder) Build(ctx context.Context, book *Book, yamlData []byte) (*Result, error) {
	if err := Validate(book); err != nil {
		return nil, err
	}
	if err := b.ApplySettings(book.Settings); err != nil {
		return nil, err
	}

	result := &Result{
		Order:   make([]string, 0, len(book.Strategies)),
		Objects: make(map[string]framework.Object, len(book.Strategies)),
	}

	for _, e := range book.Strategies {
		start := time.Now()

		obj, err := b.buildEntry(ctx, e, result.Objects)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s (%s): %w", e.Ref, e.Kind, err)
		}
		result.Order = append(result.Order, e.Ref)
		result.Objects[e.Ref] = obj

		id, _ := obj.ObjectID()
		b.logger.WithFields(map[string]interface{}{
			"ref":       e.Ref,
			"kind":      e.Kind,
			"object_id": id,
			"duration":  time.Since(start),
		}).Info("Strategy created")
	}

	sessionID, err := b.session.ID(ctx)
	if err != nil {
		return nil, err
	}
	snapshot, err := NewBuildSnapshot(book, yamlData, sessionID)
	if err != nil {
		return nil, err
	}
	result.Snapshot = snapshot

	return result, nil
}

func (b *Builder) buildEntry(ctx context.Context, e Entry, built map[string]framework.Object) (framework.Object, error) {
	s := b.session

	switch e.Kind {
	case KindRollingFuture:
		return framework.NewRollingFutureStrategy(ctx, s, rollingFutureInput(e.RollingFuture))

	case KindRollingFutureFXHedged:
		return framework.NewRollingFutureFXHedgedStrategy(ctx, s, framework.RollingFutureFXHedgedInput{
			RollingFutureInput:         rollingFutureInput(e.RollingFuture),
			TotalReturn:                e.FXHedge.TotalReturn,
			CashRebalanceThreshold:     e.FXHedge.CashRebalanceThreshold,
			ExposureRebalanceThreshold: e.FXHedge.ExposureRebalanceThreshold,
		})

	case KindBasket:
		refs := make([]framework.Ref, len(e.Basket.Constituents))
		for i, c := range e.Basket.Constituents {
			if obj, ok := built[c]; ok {
				refs[i] = framework.RefOf(obj)
			} else {
				refs[i] = framework.Named(c)
			}
		}
		return framework.NewBasketStrategy(ctx, s, framework.BasketInput{
			Constituents:       refs,
			Weights:            e.Basket.Weights,
			Currency:           e.Basket.Currency,
			RebalanceFrequency: e.Basket.RebalanceFrequency,
			StartDate:          e.Basket.StartDate,
		})

	case KindRollingSwap:
		return framework.NewRollingSwapStrategy(ctx, s, framework.RollingSwapInput{
			Tenor:                  e.RollingSwap.Tenor,
			Currency:               e.RollingSwap.Currency,
			ForwardStartMonths:     e.RollingSwap.ForwardStartMonths,
			RollingFrequencyMonths: e.RollingSwap.RollingFrequencyMonths,
			StartDate:              e.RollingSwap.StartDate,
		})

	case KindRollingFXForward:
		return framework.NewRollingFXForwardStrategy(ctx, s, framework.RollingFXForwardInput{
			Currency:     e.RollingFXForward.Currency,
			LongCurrency: e.RollingFXForward.LongCurrency,
			ForwardTenor: e.RollingFXForward.ForwardTenor,
			StartDate:    e.RollingFXForward.StartDate,
		})

	case KindRollingBond:
		return framework.NewRollingBondStrategy(ctx, s, framework.RollingBondInput{
			Country:   e.RollingBond.Country,
			Tenor:     e.RollingBond.Tenor,
			StartDate: e.RollingBond.StartDate,
		})

	case KindSingleStock:
		return framework.SingleStockStrategy(ctx, s, e.SingleStock.Ticker)

	case KindSingleBond:
		return framework.NewSingleBondStrategy(ctx, s, e.SingleBond.Name)
	}

	return nil, fmt.Errorf("unknown kind %q", e.Kind)
}

func rollingFutureInput(rf *RollingFuture) framework.RollingFutureInput {
	return framework.RollingFutureInput{
		ContractCode:    rf.ContractCode,
		ContractSector:  rf.ContractSector,
		Currency:        rf.Currency,
		RollingRule:     rf.RollingRule,
		FrontOffset:     rf.FrontOffset,
		StartDate:       rf.StartDate,
		MonthlyRollDays: rf.MonthlyRollDays,
	}
}
