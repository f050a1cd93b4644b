// Package datasets uploads CSV files to the ingestion platform and manages
// datasets and their files.
package datasets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/wonny/sigapi/pkg/config"
	"github.com/wonny/sigapi/pkg/httputil"
	"github.com/wonny/sigapi/pkg/logger"
)

var (
	// ErrDatasetNotFound is returned when the platform has no dataset with the id
	ErrDatasetNotFound = errors.New("dataset does not exist")
	// ErrFileNotFound is returned when a dataset has no file with the id
	ErrFileNotFound = errors.New("file does not exist")
)

// deleteAttempts bounds DeleteDataset retries on 502
const deleteAttempts = 10

// APIError is an unexpected platform response
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Column is one schema column
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Dataset is one ingestion dataset
type Dataset struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Schema []Column          `json:"schema,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// Client talks to <platform>/ingestion/datasets
type Client struct {
	base    string
	workers int
	maxPart int
	logger  *logger.Logger

	http   *httputil.Client // single requests, no retry
	parts  *httputil.Client // part uploads: retry on 502/503, rate limited
	delete *httputil.Client // dataset delete: retry on 502

	retryDelay time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithRetryDelay sets the fixed delay between retried requests (default 1s)
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// New creates a datasets client. Fails without a platform token.
func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Client, error) {
	if err := cfg.Platform.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		base:       cfg.Platform.BaseURL + "/ingestion/datasets",
		workers:    cfg.Platform.Workers,
		maxPart:    cfg.Platform.MaxPartSize,
		logger:     log.Component("datasets"),
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.workers < 1 {
		c.workers = 8
	}

	limit := rate.Inf
	if cfg.Platform.RPS > 0 {
		limit = rate.Limit(cfg.Platform.RPS)
	}

	token := cfg.Platform.Token
	c.http = httputil.New(cfg, log).WithBearerToken(token)
	c.parts = httputil.New(cfg, log).
		WithBearerToken(token).
		WithFixedRetry(2, c.retryDelay, http.StatusBadGateway, http.StatusServiceUnavailable).
		WithRateLimiter(rate.NewLimiter(limit, c.workers))
	c.delete = httputil.New(cfg, log).
		WithBearerToken(token).
		WithFixedRetry(deleteAttempts-1, c.retryDelay, http.StatusBadGateway)

	return c, nil
}

func (c *Client) datasetURL(id string) string {
	return c.base + "/" + url.PathEscape(id)
}

func (c *Client) filesURL(id string) string {
	return c.datasetURL(id) + "/files"
}

// List returns every dataset
func (c *Client) List(ctx context.Context) ([]Dataset, error) {
	var out []Dataset
	if err := c.getJSON(ctx, c.base+"/", &out); err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	return out, nil
}

// Filter returns the datasets whose id matches a shell pattern
func (c *Client) Filter(ctx context.Context, pattern string) ([]Dataset, error) {
	all, err := c.List(ctx)
	if err != nil {
		return nil, err
	}

	var out []Dataset
	for _, d := range all {
		ok, err := path.Match(pattern, d.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// Get returns one dataset. A 404 is ErrDatasetNotFound.
func (c *Client) Get(ctx context.Context, id string) (*Dataset, error) {
	var d Dataset
	err := c.getJSON(ctx, c.datasetURL(id), &d)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Create creates a dataset whose name and identifier are its id
func (c *Client) Create(ctx context.Context, id string, schema []Column) (*Dataset, error) {
	if !IsValidDatasetID(id) {
		return nil, fmt.Errorf("invalid dataset id %q: use only letters, digits, '_', '-' and '.'", id)
	}

	resp, err := c.http.PutJSON(ctx, c.datasetURL(id), map[string]interface{}{
		"name":       id,
		"schema":     schema,
		"identifier": id,
		"tags":       map[string]string{"name": id},
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, responseError(resp)
	}

	var d Dataset
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to decode created dataset: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"dataset_id": d.ID,
		"name":       d.Name,
	}).Info("Created new dataset")
	return &d, nil
}

// Files returns the file ids of a dataset
func (c *Client) Files(ctx context.Context, id string) ([]string, error) {
	var body struct {
		IDs []string `json:"ids"`
	}
	err := c.getJSON(ctx, c.filesURL(id), &body)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return body.IDs, nil
}

// FilterFiles returns the file ids of a dataset matching a shell pattern ("" matches all)
func (c *Client) FilterFiles(ctx context.Context, id, pattern string) ([]string, error) {
	files, err := c.Files(ctx, id)
	if err != nil {
		return nil, err
	}
	if pattern == "" {
		return files, nil
	}

	var out []string
	for _, f := range files {
		ok, err := path.Match(pattern, f)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// DeleteAllFiles removes every file of a dataset in one request
func (c *Client) DeleteAllFiles(ctx context.Context, id string) error {
	resp, err := c.http.Delete(ctx, c.filesURL(id))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return responseError(resp)
	}
	return nil
}

// DeleteDataset removes a dataset, retrying while the platform answers 502
func (c *Client) DeleteDataset(ctx context.Context, id string, dryRun bool) error {
	log := c.logger.WithField("dataset_id", id)
	if dryRun {
		log.Info("Would delete dataset")
		return nil
	}

	resp, err := c.delete.Delete(ctx, c.datasetURL(id))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		log.Info("Deleted dataset")
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
	default:
		return responseError(resp)
	}
}

// DeleteFile removes one file of a dataset
func (c *Client) DeleteFile(ctx context.Context, id, fileID string, dryRun bool) error {
	log := c.logger.WithFields(map[string]interface{}{
		"dataset_id": id,
		"file_id":    fileID,
	})
	if dryRun {
		log.Info("Would delete file")
		return nil
	}

	resp, err := c.http.Delete(ctx, c.filesURL(id)+"/"+url.PathEscape(fileID))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		log.Info("Deleted file")
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s/%s", ErrFileNotFound, id, fileID)
	default:
		return responseError(resp)
	}
}

// DeleteFiles removes files concurrently; the first failure cancels the rest
func (c *Client) DeleteFiles(ctx context.Context, id string, fileIDs []string, dryRun bool) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for _, fileID := range fileIDs {
		fileID := fileID
		g.Go(func() error {
			if err := c.DeleteFile(gctx, id, fileID, dryRun); err != nil {
				c.logger.WithError(err).WithField("file_id", fileID).Error("Delete failed")
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *Client) getJSON(ctx context.Context, u string, out interface{}) error {
	resp, err := c.http.Get(ctx, u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", u, err)
	}
	return nil
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{
		Method:     resp.Request.Method,
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
}
