package strategyspec

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"
)

// ValidationError 검증 실패 (빌드 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

var (
	refPattern      = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

// Validate checks every structural constraint of the book.
// Refs must be unique and a basket may only use refs declared before it.
func Validate(book *Book) error {
	// === Meta ===
	if book.Meta.BookID == "" {
		return ValidationError{"meta.book_id", "required"}
	}

	// === Settings ===
	if c := book.Settings.DefaultCurrency; c != "" && !currencyPattern.MatchString(c) {
		return ValidationError{"settings.default_currency", "must be a 3-letter currency code"}
	}
	if tz := book.Settings.TMTimezone; tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return ValidationError{"settings.tm_timezone", err.Error()}
		}
	}

	// === Strategies ===
	if len(book.Strategies) == 0 {
		return ValidationError{"strategies", "must not be empty"}
	}

	seen := make(map[string]bool, len(book.Strategies))
	for i, e := range book.Strategies {
		field := fmt.Sprintf("strategies[%d]", i)

		if !refPattern.MatchString(e.Ref) {
			return ValidationError{field + ".ref", "must match [a-z][a-z0-9_]*"}
		}
		if seen[e.Ref] {
			return ValidationError{field + ".ref", fmt.Sprintf("duplicate ref %q", e.Ref)}
		}

		if err := validateBlocks(field, e); err != nil {
			return err
		}
		if err := validateEntry(field, e, seen); err != nil {
			return err
		}

		seen[e.Ref] = true
	}

	return nil
}

// validateBlocks checks that exactly the blocks of Kind are present
func validateBlocks(field string, e Entry) error {
	present := map[string]bool{
		"rolling_future":     e.RollingFuture != nil,
		"fx_hedge":           e.FXHedge != nil,
		"basket":             e.Basket != nil,
		"rolling_swap":       e.RollingSwap != nil,
		"rolling_fx_forward": e.RollingFXForward != nil,
		"rolling_bond":       e.RollingBond != nil,
		"single_stock":       e.SingleStock != nil,
		"single_bond":        e.SingleBond != nil,
	}

	var want []string
	switch e.Kind {
	case KindRollingFutureFXHedged:
		want = []string{"rolling_future", "fx_hedge"}
	case KindRollingFuture, KindBasket, KindRollingSwap, KindRollingFXForward,
		KindRollingBond, KindSingleStock, KindSingleBond:
		want = []string{e.Kind}
	default:
		return ValidationError{field + ".kind", fmt.Sprintf("unknown kind %q", e.Kind)}
	}

	for _, block := range want {
		if !present[block] {
			return ValidationError{field + "." + block, "required for kind " + e.Kind}
		}
		delete(present, block)
	}
	for block, ok := range present {
		if ok {
			return ValidationError{field + "." + block, "not allowed for kind " + e.Kind}
		}
	}
	return nil
}

func validateEntry(field string, e Entry, declared map[string]bool) error {
	switch e.Kind {
	case KindRollingFuture, KindRollingFutureFXHedged:
		rf := e.RollingFuture
		if rf.ContractCode == "" {
			return ValidationError{field + ".rolling_future.contract_code", "required"}
		}
		if rf.ContractSector == "" {
			return ValidationError{field + ".rolling_future.contract_sector", "required"}
		}
		if err := validateDate(rf.StartDate); err != nil {
			return ValidationError{field + ".rolling_future.start_date", err.Error()}
		}
		if h := e.FXHedge; h != nil {
			if h.CashRebalanceThreshold != nil && *h.CashRebalanceThreshold < 0 {
				return ValidationError{field + ".fx_hedge.cash_rebalance_threshold", "must be >= 0"}
			}
			if h.ExposureRebalanceThreshold != nil && *h.ExposureRebalanceThreshold < 0 {
				return ValidationError{field + ".fx_hedge.exposure_rebalance_threshold", "must be >= 0"}
			}
		}

	case KindBasket:
		b := e.Basket
		if len(b.Constituents) == 0 {
			return ValidationError{field + ".basket.constituents", "must not be empty"}
		}
		// 구성 종목 수와 가중치 수 일치 확인
		if len(b.Constituents) != len(b.Weights) {
			return ValidationError{field + ".basket", "constituents length must match weights length"}
		}
		for j, c := range b.Constituents {
			if c == e.Ref {
				return ValidationError{fmt.Sprintf("%s.basket.constituents[%d]", field, j), "basket cannot contain itself"}
			}
			// 이후에 선언된 ref 참조 금지 (선언 순서대로 빌드)
			if refPattern.MatchString(c) && !declared[c] {
				return ValidationError{fmt.Sprintf("%s.basket.constituents[%d]", field, j), fmt.Sprintf("ref %q is not declared before this entry", c)}
			}
		}
		for j, w := range b.Weights {
			if math.IsNaN(w) || math.IsInf(w, 0) {
				return ValidationError{fmt.Sprintf("%s.basket.weights[%d]", field, j), "must be finite"}
			}
		}
		if err := validateDate(b.StartDate); err != nil {
			return ValidationError{field + ".basket.start_date", err.Error()}
		}

	case KindRollingSwap:
		rs := e.RollingSwap
		if rs.Tenor == "" {
			return ValidationError{field + ".rolling_swap.tenor", "required"}
		}
		if !currencyPattern.MatchString(rs.Currency) {
			return ValidationError{field + ".rolling_swap.currency", "must be a 3-letter currency code"}
		}
		if err := validateDate(rs.StartDate); err != nil {
			return ValidationError{field + ".rolling_swap.start_date", err.Error()}
		}

	case KindRollingFXForward:
		fx := e.RollingFXForward
		if !currencyPattern.MatchString(fx.Currency) {
			return ValidationError{field + ".rolling_fx_forward.currency", "must be a 3-letter currency code"}
		}
		if !currencyPattern.MatchString(fx.LongCurrency) {
			return ValidationError{field + ".rolling_fx_forward.long_currency", "must be a 3-letter currency code"}
		}
		if fx.ForwardTenor == "" {
			return ValidationError{field + ".rolling_fx_forward.forward_tenor", "required"}
		}

	case KindRollingBond:
		if e.RollingBond.Country == "" || e.RollingBond.Tenor == "" {
			return ValidationError{field + ".rolling_bond", "country and tenor are required"}
		}

	case KindSingleStock:
		if e.SingleStock.Ticker == "" {
			return ValidationError{field + ".single_stock.ticker", "required"}
		}

	case KindSingleBond:
		if e.SingleBond.Name == "" {
			return ValidationError{field + ".single_bond.name", "required"}
		}
	}
	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(book *Book) []Warning {
	var warnings []Warning

	for _, e := range book.Strategies {
		if e.Kind != KindBasket {
			continue
		}

		// 가중치 합 ≠ 1 경고 (레버리지/부분 투자)
		sum := 0.0
		for _, w := range e.Basket.Weights {
			sum += w
		}
		if math.Abs(sum-1.0) > 1e-6 {
			warnings = append(warnings, Warning{
				Code:    "WEIGHTS_NOT_NORMALIZED",
				Message: fmt.Sprintf("basket %s weights sum to %.4f", e.Ref, sum),
			})
		}

		if len(e.Basket.Constituents) == 1 {
			warnings = append(warnings, Warning{
				Code:    "SINGLE_CONSTITUENT",
				Message: fmt.Sprintf("basket %s has a single constituent", e.Ref),
			})
		}
	}

	if book.Settings.ExcludeTransactionCosts != nil && *book.Settings.ExcludeTransactionCosts {
		warnings = append(warnings, Warning{
			Code:    "NO_TRANSACTION_COSTS",
			Message: "transaction costs are excluded: performance is optimistic",
		})
	}

	return warnings
}

// === Helper Functions ===

func validateDate(s string) error {
	if s == "" {
		return nil
	}
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return errors.New("must be YYYY-MM-DD")
	}
	return nil
}
