package framework

import (
	"context"
	"fmt"
	"sync"

	"github.com/wonny/sigapi/internal/resource"
	"github.com/wonny/sigapi/internal/timeseries"
)

// historyFrame pages performance/history for one object and concatenates the columns
func (b *Base) historyFrame(ctx context.Context, pageSize int) (map[string]interface{}, error) {
	sessionID, err := b.SessionID()
	if err != nil {
		return nil, err
	}
	objectID, err := b.ObjectID()
	if err != nil {
		return nil, err
	}

	params := resource.Params{
		"session_id": sessionID,
		"object_id":  objectID,
	}
	if pageSize > 0 {
		params["page_size"] = pageSize
	}

	client := b.session.client.WithRoot("performance/history")
	merged := make(map[string][]interface{})

	for page := 1; ; page++ {
		env, err := client.Get(ctx, "", params)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch history page %d of %s: %w", page, objectID, err)
		}

		var frame map[string][]interface{}
		if err := env.Decode("history", &frame); err != nil {
			return nil, err
		}
		for k, v := range frame {
			merged[k] = append(merged[k], v...)
		}

		next := env.String("next_page_id")
		if next == "" {
			break
		}
		b.session.logger.WithFields(map[string]interface{}{
			"object_id": objectID,
			"page_id":   next,
		}).Debug("Fetching next history page")
		params["page_id"] = next
	}

	out := make(map[string]interface{}, len(merged))
	for k, v := range merged {
		out[k] = v
	}
	return out, nil
}

// seriesCache holds a history series after the first successful read
type seriesCache struct {
	mu     sync.Mutex
	series timeseries.Series
}

// history waits for the object and reads its valuation history once
func (c *seriesCache) history(ctx context.Context, b *Base) (timeseries.Series, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.series != nil {
		return c.series, nil
	}

	if err := b.Wait(ctx); err != nil {
		return nil, err
	}

	raw, err := b.historyFrame(ctx, 0)
	if err != nil {
		return nil, err
	}
	series, err := timeseries.FromWire(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode history of %s: %w", b.creation.ObjectID(), err)
	}

	c.series = series
	return series, nil
}

// frameCache holds a data/history frame after the first successful read
type frameCache struct {
	mu    sync.Mutex
	frame *timeseries.Frame
}

// Metric columns of data/history
const (
	MetricNPV                  = timeseries.HistoryKey
	MetricDelta                = "delta"
	MetricGamma                = "gamma"
	MetricTheta                = "theta"
	MetricVega                 = "vega"
	MetricImpliedVolatility    = "impliedVolatility"
	MetricPremiumAdjustedDelta = "premiumAdjustedDelta"
	MetricFairRate             = "fairRate"
	MetricPV01                 = "pv01"
)

// metrics waits for the object and reads data/history once
func (c *frameCache) metrics(ctx context.Context, b *Base) (*timeseries.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frame != nil {
		return c.frame, nil
	}

	if err := b.Wait(ctx); err != nil {
		return nil, err
	}

	sessionID, err := b.SessionID()
	if err != nil {
		return nil, err
	}
	objectID, err := b.ObjectID()
	if err != nil {
		return nil, err
	}

	env, err := b.session.client.WithRoot("data/history").Get(ctx, "", resource.Params{
		"session_id": sessionID,
		"object_id":  objectID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metrics of %s: %w", objectID, err)
	}

	var raw map[string]interface{}
	if err := env.Decode("history", &raw); err != nil {
		return nil, err
	}
	frame, err := timeseries.FrameFromWire(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode metrics of %s: %w", objectID, err)
	}

	c.frame = frame
	return frame, nil
}

// npv returns the $history column of a metrics frame
func (c *frameCache) npv(ctx context.Context, b *Base) (timeseries.Series, error) {
	frame, err := c.metrics(ctx, b)
	if err != nil {
		return nil, err
	}
	series, ok := frame.Column(MetricNPV)
	if !ok {
		return nil, fmt.Errorf("metrics of %s have no %s column", b.creation.ObjectID(), MetricNPV)
	}
	return series, nil
}
