package framework

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/sigapi/internal/resource"
	"github.com/wonny/sigapi/internal/timeseries"
)

// Portfolio table points
const (
	PointsLatest    = "LATEST"
	PointsValuation = "VALUATION"
	PointsAction    = "ACTION"
	PointsTopOrder  = "TOP_ORDER"
)

// portfolioPageSize is the page size used when reading portfolio analytics
const portfolioPageSize = 25000

// PortfolioOptions selects the rows of a portfolio table
type PortfolioOptions struct {
	Points   string `json:"points" validate:"omitempty,oneof=LATEST VALUATION ACTION TOP_ORDER"` // "" ⇒ LATEST
	Flatten  bool   `json:"flatten"`
	UnitType string `json:"unit_type" validate:"omitempty,oneof=MODEL TRADE"` // "" ⇒ MODEL
}

// PortfolioRow is one holding at one point in time
type PortfolioRow struct {
	Date           time.Time
	Name           string
	Level          int
	ExecutionTime  *time.Time
	Weight         *float64
	ExposureWeight *float64
	Valuation      *float64
	Units          *float64 // quantity (MODEL) or tradeQuantity (TRADE)
	Value          *float64
	ValueLocal     *float64
	PositionType   string
}

var positionTypes = map[string]string{
	"STRATEGY":       "Strategy",
	"STRATEGY_ORDER": "Strategy Order",
	"GROUPED_ORDER":  "Grouped Order",
	"CASH":           "Cash",
	"POSITION":       "Position",
	"ORDER":          "Order",
	"FX_SPOT_ORDER":  "FX Spot Order",
}

// PortfolioTable builds portfolio analytics for the strategy and returns its rows
func (s *Strategy) PortfolioTable(ctx context.Context, opts PortfolioOptions) ([]PortfolioRow, error) {
	if err := validateInput("portfolio table", opts); err != nil {
		return nil, err
	}
	points := opts.Points
	if points == "" {
		points = PointsLatest
	}
	unitsColumn := "quantity"
	if opts.UnitType == "TRADE" {
		unitsColumn = "tradeQuantity"
	}

	if err := s.Wait(ctx); err != nil {
		return nil, err
	}
	strategyID, err := s.ObjectID()
	if err != nil {
		return nil, err
	}

	env, err := s.session.create(ctx, "analytics/portfolio", resource.Params{
		"strategy": strategyID,
		"points":   points,
		"flatten":  opts.Flatten,
	})
	if err != nil {
		return nil, err
	}

	analytics := &Base{}
	analytics.bind(s.session, env, analytics)
	if err := analytics.Wait(ctx); err != nil {
		return nil, err
	}

	frame, err := analytics.historyFrame(ctx, portfolioPageSize)
	if err != nil {
		return nil, err
	}
	return portfolioRows(frame, unitsColumn)
}

func portfolioRows(frame map[string]interface{}, unitsColumn string) ([]PortfolioRow, error) {
	stamps, _ := frame[timeseries.TimestampKey].([]interface{})
	rows := make([]PortfolioRow, len(stamps))

	column := func(name string) []interface{} {
		col, _ := frame[name].([]interface{})
		return col
	}
	at := func(col []interface{}, i int) interface{} {
		if i < len(col) {
			return col[i]
		}
		return nil
	}
	num := func(v interface{}) *float64 {
		f, ok := v.(float64)
		if !ok {
			return nil
		}
		return timeseries.Float(f)
	}

	names := column("name")
	levels := column("level")
	execs := column("executionTime")
	weights := column("weight")
	exposures := column("exposureWeight")
	valuations := column("valuation")
	units := column(unitsColumn)
	values := column("value")
	locals := column("valueLocal")
	types := column("type")

	for i, raw := range stamps {
		str, _ := raw.(string)
		date, err := timeseries.ParseTime(str)
		if err != nil {
			return nil, fmt.Errorf("portfolio row %d: %w", i, err)
		}

		row := PortfolioRow{
			Date:           date,
			Weight:         num(at(weights, i)),
			ExposureWeight: num(at(exposures, i)),
			Valuation:      num(at(valuations, i)),
			Units:          num(at(units, i)),
			Value:          num(at(values, i)),
			ValueLocal:     num(at(locals, i)),
		}
		row.Name, _ = at(names, i).(string)
		if level := num(at(levels, i)); level != nil {
			row.Level = int(*level)
		}
		if exec, ok := at(execs, i).(string); ok && exec != "" {
			t, err := timeseries.ParseTime(exec)
			if err != nil {
				return nil, fmt.Errorf("portfolio row %d: %w", i, err)
			}
			row.ExecutionTime = &t
		}
		posType, _ := at(types, i).(string)
		if label, ok := positionTypes[posType]; ok {
			posType = label
		}
		row.PositionType = posType

		rows[i] = row
	}
	return rows, nil
}
