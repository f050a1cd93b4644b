package strategyspec

import "time"

// Strategy kinds
const (
	KindRollingFuture         = "rolling_future"
	KindRollingFutureFXHedged = "rolling_future_fx_hedged"
	KindBasket                = "basket"
	KindRollingSwap           = "rolling_swap"
	KindRollingFXForward      = "rolling_fx_forward"
	KindRollingBond           = "rolling_bond"
	KindSingleStock           = "single_stock"
	KindSingleBond            = "single_bond"
)

// Book is a declarative list of strategies built in one session
type Book struct {
	Meta       Meta     `yaml:"meta" json:"meta"`
	Settings   Settings `yaml:"settings" json:"settings"`
	Strategies []Entry  `yaml:"strategies" json:"strategies"`
}

// Meta 메타 정보
type Meta struct {
	BookID      string `yaml:"book_id" json:"book_id"`
	Version     string `yaml:"version" json:"version"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Settings are applied to the session before the first object is created
type Settings struct {
	ExcludeTransactionCosts *bool  `yaml:"exclude_transaction_costs,omitempty" json:"exclude_transaction_costs,omitempty"`
	DisableTCostNetting     *bool  `yaml:"disable_t_cost_netting,omitempty" json:"disable_t_cost_netting,omitempty"`
	ExcessReturnOnly        *bool  `yaml:"excess_return_only,omitempty" json:"excess_return_only,omitempty"`
	TMTimezone              string `yaml:"tm_timezone,omitempty" json:"tm_timezone,omitempty"`
	DefaultCurrency         string `yaml:"default_currency,omitempty" json:"default_currency,omitempty"`
}

// Entry is one strategy. Exactly the block matching Kind is set
// (rolling_future_fx_hedged uses rolling_future plus fx_hedge).
type Entry struct {
	Ref  string `yaml:"ref" json:"ref"`
	Kind string `yaml:"kind" json:"kind"`

	RollingFuture    *RollingFuture    `yaml:"rolling_future,omitempty" json:"rolling_future,omitempty"`
	FXHedge          *FXHedge          `yaml:"fx_hedge,omitempty" json:"fx_hedge,omitempty"`
	Basket           *Basket           `yaml:"basket,omitempty" json:"basket,omitempty"`
	RollingSwap      *RollingSwap      `yaml:"rolling_swap,omitempty" json:"rolling_swap,omitempty"`
	RollingFXForward *RollingFXForward `yaml:"rolling_fx_forward,omitempty" json:"rolling_fx_forward,omitempty"`
	RollingBond      *RollingBond      `yaml:"rolling_bond,omitempty" json:"rolling_bond,omitempty"`
	SingleStock      *SingleStock      `yaml:"single_stock,omitempty" json:"single_stock,omitempty"`
	SingleBond       *SingleBond       `yaml:"single_bond,omitempty" json:"single_bond,omitempty"`
}

type RollingFuture struct {
	ContractCode    string `yaml:"contract_code" json:"contract_code"`
	ContractSector  string `yaml:"contract_sector" json:"contract_sector"`
	Currency        string `yaml:"currency,omitempty" json:"currency,omitempty"`
	RollingRule     string `yaml:"rolling_rule,omitempty" json:"rolling_rule,omitempty"`
	FrontOffset     string `yaml:"front_offset,omitempty" json:"front_offset,omitempty"`
	StartDate       string `yaml:"start_date,omitempty" json:"start_date,omitempty"`
	MonthlyRollDays string `yaml:"monthly_roll_days,omitempty" json:"monthly_roll_days,omitempty"`
}

type FXHedge struct {
	TotalReturn                *bool    `yaml:"total_return,omitempty" json:"total_return,omitempty"`
	CashRebalanceThreshold     *float64 `yaml:"cash_rebalance_threshold,omitempty" json:"cash_rebalance_threshold,omitempty"`
	ExposureRebalanceThreshold *float64 `yaml:"exposure_rebalance_threshold,omitempty" json:"exposure_rebalance_threshold,omitempty"`
}

// Basket constituents are refs of earlier entries or object names ("USD CASH")
type Basket struct {
	Constituents       []string  `yaml:"constituents" json:"constituents"`
	Weights            []float64 `yaml:"weights" json:"weights"`
	Currency           string    `yaml:"currency,omitempty" json:"currency,omitempty"`
	RebalanceFrequency string    `yaml:"rebalance_frequency,omitempty" json:"rebalance_frequency,omitempty"`
	StartDate          string    `yaml:"start_date,omitempty" json:"start_date,omitempty"`
}

type RollingSwap struct {
	Tenor                  string `yaml:"tenor" json:"tenor"`
	Currency               string `yaml:"currency" json:"currency"`
	ForwardStartMonths     *int   `yaml:"forward_start_months,omitempty" json:"forward_start_months,omitempty"`
	RollingFrequencyMonths *int   `yaml:"rolling_frequency_months,omitempty" json:"rolling_frequency_months,omitempty"`
	StartDate              string `yaml:"start_date,omitempty" json:"start_date,omitempty"`
}

type RollingFXForward struct {
	Currency     string `yaml:"currency" json:"currency"`
	LongCurrency string `yaml:"long_currency" json:"long_currency"`
	ForwardTenor string `yaml:"forward_tenor" json:"forward_tenor"`
	StartDate    string `yaml:"start_date,omitempty" json:"start_date,omitempty"`
}

type RollingBond struct {
	Country   string `yaml:"country" json:"country"`
	Tenor     string `yaml:"tenor" json:"tenor"`
	StartDate string `yaml:"start_date,omitempty" json:"start_date,omitempty"`
}

type SingleStock struct {
	Ticker string `yaml:"ticker" json:"ticker"` // exchange ticker, e.g. AAPL
}

type SingleBond struct {
	Name string `yaml:"name" json:"name"`
}

// BuildSnapshot 빌드 스냅샷 (재현성용)
type BuildSnapshot struct {
	BookHash  string    `json:"book_hash"`
	BookYAML  string    `json:"book_yaml"`
	BookID    string    `json:"book_id"`
	Version   string    `json:"version"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}
