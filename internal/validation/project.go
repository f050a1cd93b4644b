// Package validation manages data-validation projects: uploaded files,
// rule configs and validation executions.
package validation

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wonny/sigapi/internal/poller"
	"github.com/wonny/sigapi/internal/resource"
	"github.com/wonny/sigapi/pkg/httputil"
	"github.com/wonny/sigapi/pkg/logger"
)

const (
	// StatusRunning is the only non-final execution status
	StatusRunning = "RUNNING"

	// LatestConfig addresses the most recently updated config
	LatestConfig = "latest"

	// DefaultValidateTimeout bounds Project.Validate
	DefaultValidateTimeout = 300 * time.Second

	filesPageSize = 1000
)

var (
	ErrProjectNotFound = errors.New("validation project not found")
	ErrUnsupportedFile = errors.New("only .csv and .parquet files can be validated")
	ErrUploadFailed    = errors.New("presigned file upload failed")
)

// Service is the entry point for validation projects
type Service struct {
	root   *resource.Client
	http   *httputil.Client
	logger *logger.Logger

	clock poller.Clock
	unit  time.Duration

	mu    sync.Mutex
	rules *resource.Envelope
}

// New creates a Service. upload is used for presigned file uploads only and
// must not carry API credentials.
func New(root *resource.Client, upload *httputil.Client, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		root:   root,
		http:   upload,
		logger: log.Component("validation"),
		clock:  poller.RealClock,
		unit:   200 * time.Millisecond,
	}
}

// WithPolling overrides the clock and backoff base used by Validate
func (s *Service) WithPolling(clock poller.Clock, unit time.Duration) *Service {
	s.clock = clock
	s.unit = unit
	return s
}

func (s *Service) projects() *resource.Client {
	return s.root.WithRoot("validation/projects")
}

// Rules returns metadata of the available rules and transforms.
// A successful response is cached for the lifetime of the Service.
func (s *Service) Rules(ctx context.Context) (*resource.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rules != nil {
		return s.rules, nil
	}
	env, err := s.root.WithRoot("validation/rules").Get(ctx, "", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch validation rules: %w", err)
	}
	s.rules = env
	return env, nil
}

// FindProject returns the project named name, or ErrProjectNotFound unless
// the lookup yields exactly one exact match
func (s *Service) FindProject(ctx context.Context, name string) (*Project, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("project name is empty")
	}

	found, err := s.projects().List(ctx, resource.Params{"project_name": name})
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	if len(found) != 1 || found[0].String("project_name") != name {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, name)
	}
	return s.project(found[0], name)
}

// GetOrCreateProject returns the project named name, creating it when FindProject finds none
func (s *Service) GetOrCreateProject(ctx context.Context, name string) (*Project, error) {
	p, err := s.FindProject(ctx, name)
	if err == nil {
		s.logger.WithField("project", name).Info("Fetched existing project")
		return p, nil
	}
	if !errors.Is(err, ErrProjectNotFound) {
		return nil, err
	}

	env, err := s.projects().Create(ctx, resource.Params{"project_name": name})
	if err != nil {
		return nil, fmt.Errorf("failed to create project %s: %w", name, err)
	}
	s.logger.WithField("project", name).Info("Created new project")
	return s.project(env, name)
}

func (s *Service) project(env *resource.Envelope, name string) (*Project, error) {
	id := env.String("project_id")
	if id == "" {
		return nil, &resource.PreconditionError{Op: "project " + name, Missing: []string{"project_id"}}
	}
	return &Project{ID: id, Name: name, service: s}, nil
}

// DeleteProject deletes a project by id
func (s *Service) DeleteProject(ctx context.Context, id string) (*resource.Envelope, error) {
	env, err := s.projects().Delete(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete project %s: %w", id, err)
	}
	s.logger.WithField("project_id", id).Info("Project deleted")
	return env, nil
}

// Project is one validation project
type Project struct {
	ID   string
	Name string

	service *Service
}

func (p *Project) sub(name string) *resource.Client {
	return p.service.projects().WithPath(p.ID, name)
}

// Delete deletes the project
func (p *Project) Delete(ctx context.Context) (*resource.Envelope, error) {
	return p.service.DeleteProject(ctx, p.ID)
}

// GetConfig returns config id, or the latest config when id is empty
func (p *Project) GetConfig(ctx context.Context, id string) (*resource.Envelope, error) {
	if id == "" {
		id = LatestConfig
	}
	return p.sub("configs").Get(ctx, id, nil)
}

// UpdateConfig posts a new config. A nil slice keeps the existing entries of
// that kind and an empty non-nil slice removes them.
func (p *Project) UpdateConfig(ctx context.Context, rules, transforms []Rule) (*resource.Envelope, error) {
	params := resource.Params{}
	if rules != nil {
		objs, err := ruleObjects(rules)
		if err != nil {
			return nil, err
		}
		params["rules"] = objs
	}
	if transforms != nil {
		objs, err := ruleObjects(transforms)
		if err != nil {
			return nil, err
		}
		params["transforms"] = objs
	}

	env, err := p.sub("configs").Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to update config of %s: %w", p.Name, err)
	}
	p.service.logger.WithFields(map[string]interface{}{
		"project":    p.Name,
		"rules":      len(rules),
		"transforms": len(transforms),
	}).Debug("Config updated")
	return env, nil
}

// ListFiles returns the uploaded files with their metadata
func (p *Project) ListFiles(ctx context.Context) ([]*resource.Envelope, error) {
	return p.sub("files").List(ctx, resource.Params{"page_size": filesPageSize})
}

// UploadFile uploads a .csv or .parquet file through a presigned form.
// A file with the same (lowercased) name is overwritten.
func (p *Project) UploadFile(ctx context.Context, path string) (*resource.Envelope, error) {
	if err := checkFile(path); err != nil {
		return nil, err
	}
	fileName := strings.ToLower(filepath.Base(path))

	target, err := p.sub("files").Create(ctx, resource.Params{"file_name": fileName})
	if err != nil {
		return nil, fmt.Errorf("failed to request upload of %s: %w", fileName, err)
	}

	uploadURL := target.String("upload_url")
	if uploadURL == "" {
		return nil, &resource.PreconditionError{Op: "upload " + fileName, Missing: []string{"upload_url"}}
	}
	var form map[string]string
	if target.Has("upload_form_data") {
		if err := target.Decode("upload_form_data", &form); err != nil {
			return nil, err
		}
	}

	if err := p.service.postForm(ctx, uploadURL, form, path); err != nil {
		return nil, err
	}

	files, err := p.sub("files").List(ctx, resource.Params{"file_name": fileName})
	if err != nil {
		return nil, err
	}
	if len(files) != 1 {
		return nil, fmt.Errorf("expected 1 file named %s after upload, found %d", fileName, len(files))
	}
	size, _ := files[0].Field("file_size_bytes")
	if n, ok := size.(float64); !ok || n <= 0 {
		return nil, fmt.Errorf("uploaded file %s is empty", fileName)
	}

	p.service.logger.WithFields(map[string]interface{}{
		"project": p.Name,
		"file":    fileName,
	}).Info("File uploaded")
	return files[0], nil
}

// Executions lists past validation runs
func (p *Project) Executions(ctx context.Context) ([]*resource.Envelope, error) {
	return p.sub("executions").List(ctx, nil)
}

// execution adapts an execution response to the poller: anything but RUNNING is final
type execution struct {
	env *resource.Envelope
}

func (e execution) Status() string {
	if e.env.Status() == StatusRunning {
		return StatusRunning
	}
	return poller.StatusSucceeded
}

func (e execution) Has(string) bool { return false }

// Validate starts a validation run and waits until it is no longer RUNNING.
// The returned envelope carries the run's own final status and results.
func (p *Project) Validate(ctx context.Context, timeout time.Duration) (*resource.Envelope, error) {
	if timeout <= 0 {
		timeout = DefaultValidateTimeout
	}

	started, err := p.sub("executions").Create(ctx, resource.Params{})
	if err != nil {
		return nil, fmt.Errorf("failed to start validation of %s: %w", p.Name, err)
	}
	execID := started.String("execution_id")
	if execID == "" {
		return nil, &resource.PreconditionError{Op: "validate " + p.Name, Missing: []string{"execution_id"}}
	}
	p.service.logger.WithField("execution_id", execID).Debug("Execution started")

	executions := p.sub("executions")
	last, err := poller.Wait(ctx, func(ctx context.Context) (execution, error) {
		env, err := executions.Get(ctx, execID, nil)
		if err != nil {
			return execution{}, err
		}
		return execution{env: env}, nil
	}, poller.Options{
		Timeout:  timeout,
		Unit:     p.service.unit,
		Clock:    p.service.clock,
		ObjectID: execID,
		Logger:   p.service.logger,
	})
	if err != nil {
		return last.env, err
	}
	return last.env, nil
}

// checkFile verifies that path is a readable CSV with a header or a parquet file
func checkFile(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		header, err := csv.NewReader(f).Read()
		if err != nil {
			return fmt.Errorf("failed to read CSV header of %s: %w", path, err)
		}
		if len(header) == 0 {
			return fmt.Errorf("%s has an empty header", path)
		}
		return nil
	case ".parquet":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		magic := []byte("PAR1")
		if len(data) < 8 || !bytes.HasPrefix(data, magic) || !bytes.HasSuffix(data, magic) {
			return fmt.Errorf("%s is not a parquet file", path)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Base(path))
	}
}

// postForm sends the presigned multipart form with the file as the last field
func (s *Service) postForm(ctx context.Context, url string, form map[string]string, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := mw.WriteField(k, form[k]); err != nil {
			return err
		}
	}

	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	resp, err := s.http.Post(ctx, url, mw.FormDataContentType(), &body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: status %d", ErrUploadFailed, resp.StatusCode)
	}
	return nil
}
