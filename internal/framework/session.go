// Package framework binds local strategy and instrument objects to their
// remote counterparts in one framework API session.
//
// A Session owns the remote session id, the settings it was created with and
// a name registry used to resolve references between objects. Every object
// constructor takes the session explicitly.
package framework

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/wonny/sigapi/internal/resource"
	"github.com/wonny/sigapi/pkg/logger"
	"github.com/wonny/sigapi/pkg/redis"
)

// Setting is a session-level option sent with the session creation request
type Setting string

const (
	ExcludeTransactionCosts Setting = "exclude_transaction_costs"
	DisableTCostNetting     Setting = "disable_t_cost_netting"
	ExcessReturnOnly        Setting = "excess_return_only"
	TMTimezone              Setting = "tm_timezone"
	DefaultCurrency         Setting = "default_currency"
)

// settingSpec maps a setting to its wire field; inverted booleans are negated on the way out
type settingSpec struct {
	field    string
	inverted bool
	isBool   bool
}

// ⭐ SSOT: 세션 설정 ↔ wire 필드 매핑은 여기서만
var settingsTable = map[Setting]settingSpec{
	ExcludeTransactionCosts: {field: "include_transaction_costs", inverted: true, isBool: true},
	DisableTCostNetting:     {field: "t_cost_netting", inverted: true, isBool: true},
	ExcessReturnOnly:        {field: "excess_return_only", isBool: true},
	TMTimezone:              {field: "tm_timezone"},
	DefaultCurrency:         {field: "default_currency"},
}

// Session is one framework API session plus its object registry.
// Registry access is serialized; object construction and polling are not.
type Session struct {
	client *resource.Client
	logger *logger.Logger
	cache  *redis.Cache

	mu       sync.Mutex
	id       string
	settings map[Setting]interface{}
	registry map[string]Object
	objects  []Object
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(log *logger.Logger) Option {
	return func(s *Session) {
		s.logger = log.Component("framework")
	}
}

// WithCache enables the reference data cache
func WithCache(cache *redis.Cache) Option {
	return func(s *Session) {
		s.cache = cache
	}
}

// NewSession checks API health and returns a session whose remote id is created on first use
func NewSession(ctx context.Context, client *resource.Client, opts ...Option) (*Session, error) {
	s := &Session{
		client:   client,
		logger:   logger.Nop(),
		settings: make(map[Setting]interface{}),
		registry: make(map[string]Object),
	}
	for _, opt := range opts {
		opt(s)
	}

	status, err := client.WithPath("status").Get(ctx, "", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}
	switch strings.ToUpper(status.Status()) {
	case "OK", "HEALTHY", "UP":
	default:
		return nil, fmt.Errorf("%w: status %q", ErrUnhealthy, status.Status())
	}

	s.logger.WithField("api", client.URL()).Debug("Framework API is healthy")
	return s, nil
}

// Client returns the root resource client
func (s *Session) Client() *resource.Client {
	return s.client
}

// Set records a setting. Fails with ErrSettingsFrozen once the remote session exists.
func (s *Session) Set(setting Setting, value interface{}) error {
	spec, ok := settingsTable[setting]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, setting)
	}
	if spec.isBool {
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("setting %s expects a bool, got %T", setting, value)
		}
	} else if _, ok := value.(string); !ok {
		return fmt.Errorf("setting %s expects a string, got %T", setting, value)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id != "" {
		return ErrSettingsFrozen
	}
	s.settings[setting] = value
	return nil
}

// ID returns the remote session id, creating the session on first call
func (s *Session) ID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id != "" {
		return s.id, nil
	}

	params := s.settingsParams()
	env, err := s.client.WithPath("sessions").Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	id := env.String("session_id")
	if id == "" {
		return "", fmt.Errorf("session response has no session_id: %#v", env)
	}
	s.id = id

	s.logger.WithFields(map[string]interface{}{
		"session_id": id,
		"settings":   params,
	}).Info("Session created")
	return id, nil
}

// settingsParams renders the settings snapshot; caller holds s.mu
func (s *Session) settingsParams() resource.Params {
	params := resource.Params{}
	for setting, value := range s.settings {
		spec := settingsTable[setting]
		if spec.inverted {
			value = !value.(bool)
		}
		params[spec.field] = value
	}
	return params
}

// track adds a newly constructed object to the all-objects list
func (s *Session) track(obj Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = append(s.objects, obj)
}

// register maps a resolved name to its object
func (s *Session) register(name string, obj Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry[name] = obj
}

// Registered returns the object registered under name, if any
func (s *Session) Registered(name string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.registry[name]
	return obj, ok
}

// Objects returns every object constructed in this session, in construction order
func (s *Session) Objects() []Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Object, len(s.objects))
	copy(out, s.objects)
	return out
}

// Get resolves a name to an object:
//  1. the name registry
//  2. every constructed object, by object id and then by resolved name
//  3. a new primitive instrument created from the name as identifier
func (s *Session) Get(ctx context.Context, name string) (Object, error) {
	if obj, ok := s.Registered(name); ok {
		return obj, nil
	}

	objects := s.Objects()
	for _, obj := range objects {
		if id, err := obj.ObjectID(); err == nil && id == name {
			return obj, nil
		}
	}
	for _, obj := range objects {
		resolved, err := obj.Name(ctx)
		var remote *resource.RemoteFailureError
		if errors.As(err, &remote) {
			// 실패한 객체는 이름이 없으므로 건너뜀
			continue
		}
		if err != nil {
			return nil, err
		}
		if resolved == name {
			return obj, nil
		}
	}

	return s.instrument(ctx, name)
}

// Resolve turns each reference into an object that has finished computing
func (s *Session) Resolve(ctx context.Context, refs ...Ref) ([]Object, error) {
	out := make([]Object, 0, len(refs))
	for _, ref := range refs {
		obj, err := ref.resolve(ctx, s)
		if err != nil {
			return nil, err
		}
		if err := obj.Wait(ctx); err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

// create POSTs a creation request for path in this session
func (s *Session) create(ctx context.Context, path string, params resource.Params) (*resource.Envelope, error) {
	id, err := s.ID(ctx)
	if err != nil {
		return nil, err
	}

	body := resource.Params{"session_id": id}
	for k, v := range params {
		if v == nil {
			continue
		}
		body[k] = v
	}

	env, err := s.client.WithRoot(path).Create(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"path":      path,
		"object_id": env.ObjectID(),
	}).Debug("Object created")
	return env, nil
}
