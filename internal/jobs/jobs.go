// Package jobs reads extraction jobs, their runs and run outputs.
package jobs

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wonny/sigapi/pkg/config"
	"github.com/wonny/sigapi/pkg/httputil"
	"github.com/wonny/sigapi/pkg/logger"
)

var (
	ErrJobNotFound    = errors.New("job does not exist")
	ErrRunNotFound    = errors.New("run does not exist")
	ErrOutputNotFound = errors.New("output does not exist")

	// ErrUnknownFormat is returned when an output cannot be decoded as JSON
	ErrUnknownFormat = errors.New("unknown artifact format")
)

// AmbiguousError is returned when a name matches more than one item
type AmbiguousError struct {
	Key   string
	Value string
	Count int
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("multiple items (%d) with %s %q: use the id instead", e.Count, e.Key, e.Value)
}

// ID accepts both string and numeric ids
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %s", data)
	}
	*id = ID(n.String())
	return nil
}

// Job is one extraction flow
type Job struct {
	ID      ID     `json:"flow_id"`
	Name    string `json:"flow_name"`
	TSEpoch int64  `json:"ts_epoch"`
}

// CreatedAt converts the epoch milliseconds
func (j Job) CreatedAt() time.Time {
	return time.UnixMilli(j.TSEpoch)
}

// Run is one execution of a job
type Run struct {
	ID      ID    `json:"run_id"`
	TSEpoch int64 `json:"ts_epoch"`
}

func (r Run) CreatedAt() time.Time {
	return time.UnixMilli(r.TSEpoch)
}

// Output is one artifact produced by a run
type Output struct {
	ID      string `json:"artifact_id"`
	Name    string `json:"artifact_name"`
	SHA     string `json:"sha"`
	TSEpoch int64  `json:"ts_epoch"`
}

func (o Output) CreatedAt() time.Time {
	return time.UnixMilli(o.TSEpoch)
}

// Client talks to <platform>/extraction/jobs
type Client struct {
	base   string
	http   *httputil.Client
	logger *logger.Logger
}

// New creates a jobs client. Fails without a platform token.
func New(cfg *config.Config, log *logger.Logger) (*Client, error) {
	if err := cfg.Platform.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		base:   cfg.Platform.BaseURL + "/extraction/jobs",
		http:   httputil.New(cfg, log).WithBearerToken(cfg.Platform.Token),
		logger: log.Component("jobs"),
	}, nil
}

func (c *Client) url(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return strings.Join(append([]string{c.base}, escaped...), "/")
}

// Jobs lists every job
func (c *Client) Jobs(ctx context.Context) ([]Job, error) {
	var out []Job
	if _, err := c.getJSON(ctx, c.url(), &out); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return out, nil
}

// Job returns a job by id, falling back to a unique name match
func (c *Client) Job(ctx context.Context, idOrName string) (*Job, error) {
	var job Job
	found, err := c.getJSON(ctx, c.url(idOrName), &job)
	if err != nil {
		return nil, err
	}
	if found {
		return &job, nil
	}

	all, err := c.Jobs(ctx)
	if err != nil {
		return nil, err
	}
	match, err := lookup(all, idOrName, field[Job]{"name", func(j Job) string { return j.Name }})
	if errors.Is(err, errNoMatch) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, idOrName)
	}
	return match, err
}

// Runs lists the runs of a job
func (c *Client) Runs(ctx context.Context, jobID string) ([]Run, error) {
	var out []Run
	found, err := c.getJSON(ctx, c.url(jobID, "runs"), &out)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return out, nil
}

// Run returns one run of a job
func (c *Client) Run(ctx context.Context, jobID, runID string) (*Run, error) {
	var run Run
	found, err := c.getJSON(ctx, c.url(jobID, "runs", runID), &run)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s/%s", ErrRunNotFound, jobID, runID)
	}
	return &run, nil
}

// LatestRun returns the most recent run of a job
func (c *Client) LatestRun(ctx context.Context, jobID string) (*Run, error) {
	return c.Run(ctx, jobID, "latest")
}

// Outputs lists the outputs of a run
func (c *Client) Outputs(ctx context.Context, jobID, runID string) ([]Output, error) {
	var out []Output
	found, err := c.getJSON(ctx, c.url(jobID, "runs", runID, "outputs"), &out)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s/%s", ErrRunNotFound, jobID, runID)
	}
	return out, nil
}

// Output returns one output by id, falling back to a unique id, sha or name match
func (c *Client) Output(ctx context.Context, jobID, runID, key string) (*Output, error) {
	var out Output
	found, err := c.getJSON(ctx, c.url(jobID, "runs", runID, "outputs", key, "info"), &out)
	if err != nil {
		return nil, err
	}
	if found {
		return &out, nil
	}

	all, err := c.Outputs(ctx, jobID, runID)
	if err != nil {
		return nil, err
	}
	match, err := lookup(all, key,
		field[Output]{"id", func(o Output) string { return o.ID }},
		field[Output]{"sha", func(o Output) string { return o.SHA }},
		field[Output]{"name", func(o Output) string { return o.Name }},
	)
	if errors.Is(err, errNoMatch) {
		return nil, fmt.Errorf("%w: %s", ErrOutputNotFound, key)
	}
	return match, err
}

// Content downloads the raw bytes of an output
func (c *Client) Content(ctx context.Context, jobID, runID, outputID string) ([]byte, error) {
	u := c.url(jobID, "runs", runID, "outputs", outputID)
	resp, err := c.http.Get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrOutputNotFound, outputID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("GET %s: status %d: %s", u, resp.StatusCode, body)
	}
	return io.ReadAll(resp.Body)
}

// DecodeJSON decodes the content of a .gzip+json output into v
func DecodeJSON(output Output, content []byte, v interface{}) error {
	if !strings.HasSuffix(output.ID, ".gzip+json") {
		return fmt.Errorf("%w: %s", ErrUnknownFormat, output.ID)
	}

	// 전송 중 압축이 이미 풀린 경우도 허용
	if len(content) >= 2 && content[0] == 0x1f && content[1] == 0x8b {
		zr, err := gzip.NewReader(bytes.NewReader(content))
		if err != nil {
			return err
		}
		defer zr.Close()
		return json.NewDecoder(zr).Decode(v)
	}
	return json.Unmarshal(content, v)
}

// getJSON decodes a 200 response into out; found is false on 404
func (c *Client) getJSON(ctx context.Context, u string, out interface{}) (bool, error) {
	resp, err := c.http.Get(ctx, u)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return false, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return false, fmt.Errorf("GET %s: status %d: %s", u, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", u, err)
	}
	return true, nil
}
