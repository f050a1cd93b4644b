package framework

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wonny/sigapi/internal/poller"
	"github.com/wonny/sigapi/internal/resource"
	"github.com/wonny/sigapi/pkg/redis"
)

// Object is any wrapper bound to a remote framework object
type Object interface {
	ObjectID() (string, error)
	SessionID() (string, error)
	Name(ctx context.Context) (string, error)
	Status(ctx context.Context) (string, error)
	Wait(ctx context.Context) error
	base() *Base
}

// Ref is a dependency given either as an object or by name
type Ref interface {
	resolve(ctx context.Context, s *Session) (Object, error)
}

// Named references an object by its resolved name or object id
type Named string

func (n Named) resolve(ctx context.Context, s *Session) (Object, error) {
	return s.Get(ctx, string(n))
}

// Base binds a wrapper to its creation response. Embedded by every wrapper.
type Base struct {
	session  *Session
	creation *resource.Envelope
	self     Object

	mu      sync.Mutex
	status  string
	failure error
	latest  *resource.Envelope
	name    string
	refData map[string]interface{}
}

// bind attaches the creation response and makes the object discoverable
func (b *Base) bind(s *Session, creation *resource.Envelope, self Object) {
	b.session = s
	b.creation = creation
	b.self = self
	if creation.Status() == poller.StatusSucceeded {
		b.status = poller.StatusSucceeded
	}
	s.track(self)
}

func (b *Base) base() *Base {
	return b
}

func (b *Base) resolve(ctx context.Context, s *Session) (Object, error) {
	return b.self, nil
}

// RefOf uses an already constructed object as a dependency
func RefOf(obj Object) Ref {
	return obj.base()
}

// Session returns the owning session
func (b *Base) Session() *Session {
	return b.session
}

// Creation returns the creation response
func (b *Base) Creation() *resource.Envelope {
	return b.creation
}

// ObjectID returns the remote object id
func (b *Base) ObjectID() (string, error) {
	id := b.creation.ObjectID()
	if id == "" {
		return "", &resource.PreconditionError{Op: "object id", Missing: []string{"object_id"}}
	}
	return id, nil
}

// SessionID returns the remote session id the object was created in
func (b *Base) SessionID() (string, error) {
	id := b.creation.SessionID()
	if id == "" {
		return "", &resource.PreconditionError{Op: "session id", Missing: []string{"session_id"}}
	}
	return id, nil
}

// Status returns the cached terminal status, or re-queries the object
func (b *Base) Status(ctx context.Context) (string, error) {
	b.mu.Lock()
	if poller.IsTerminal(b.status) {
		defer b.mu.Unlock()
		return b.status, nil
	}
	b.mu.Unlock()

	latest, err := b.creation.LatestObjectResponse(ctx)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	// 다른 호출이 이미 terminal 상태를 저장했다면 덮어쓰지 않음
	if poller.IsTerminal(b.status) {
		return b.status, nil
	}
	b.status = latest.Status()
	b.latest = latest
	if b.status == poller.StatusFailed {
		b.failure = b.remoteFailure(latest)
	}
	return b.status, nil
}

// remoteFailure describes a FAILED response with the object's identifiers
func (b *Base) remoteFailure(latest *resource.Envelope) error {
	return &resource.RemoteFailureError{
		SessionID: b.creation.SessionID(),
		ObjectID:  b.creation.ObjectID(),
		Message:   latest.String("error"),
	}
}

// Wait blocks until the object has finished computing.
// A cached SUCCEEDED returns immediately; a cached FAILED returns the same error again.
func (b *Base) Wait(ctx context.Context) error {
	b.mu.Lock()
	switch b.status {
	case poller.StatusSucceeded:
		b.mu.Unlock()
		return nil
	case poller.StatusFailed:
		defer b.mu.Unlock()
		if b.failure == nil {
			b.failure = b.remoteFailure(b.creation)
		}
		return b.failure
	}
	b.mu.Unlock()

	latest, err := b.creation.WaitForObjectStatus(ctx, resource.WaitOptions{})

	b.mu.Lock()
	defer b.mu.Unlock()

	var remote *resource.RemoteFailureError
	switch {
	case b.status == poller.StatusFailed && b.failure != nil:
		return b.failure
	case errors.As(err, &remote):
		b.status = poller.StatusFailed
		b.failure = err
		return err
	case err != nil:
		return err
	}

	b.status = poller.StatusSucceeded
	b.latest = latest
	return nil
}

// Name resolves the object's name once and registers it in the session
func (b *Base) Name(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.name != "" {
		return b.name, nil
	}

	env, err := b.creation.WaitForObjectStatus(ctx, resource.WaitOptions{Property: "name"})
	if err != nil {
		return "", err
	}
	name := env.String("name")
	if name == "" {
		return "", fmt.Errorf("%s %s resolved without a name", b.creation.Name(), b.creation.ObjectID())
	}

	b.name = name
	b.session.register(name, b.self)
	return name, nil
}

// ReferenceData returns the object's static data (currency, dates, contract terms)
func (b *Base) ReferenceData(ctx context.Context) (map[string]interface{}, error) {
	b.mu.Lock()
	cached := b.refData
	b.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	cache := b.session.cache
	var key string
	if cache != nil {
		name, err := b.Name(ctx)
		if err != nil {
			return nil, err
		}
		key = redis.ReferenceDataKey(name)

		var hit map[string]interface{}
		found, err := cache.Get(ctx, key, &hit)
		if err != nil {
			b.session.logger.WithError(err).Warn("Reference data cache read failed")
		}
		if found {
			b.setRefData(hit)
			return hit, nil
		}
	}

	env, err := b.creation.WaitForObjectStatus(ctx, resource.WaitOptions{Property: "reference_data"})
	if err != nil {
		return nil, err
	}

	var data map[string]interface{}
	if err := env.Decode("reference_data", &data); err != nil {
		return nil, err
	}

	if cache != nil {
		if err := cache.Set(ctx, key, data, redis.TTLLong); err != nil {
			b.session.logger.WithError(err).Warn("Reference data cache write failed")
		}
	}

	b.setRefData(data)
	return data, nil
}

func (b *Base) setRefData(data map[string]interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refData = data
}

// refString reads one string reference field
func (b *Base) refString(ctx context.Context, key string) (string, error) {
	data, err := b.ReferenceData(ctx)
	if err != nil {
		return "", err
	}
	v, ok := data[key]
	if !ok || v == nil {
		return "", fmt.Errorf("reference data has no %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("reference data %q is %T, not string", key, v)
	}
	return s, nil
}

// refFloat reads one numeric reference field
func (b *Base) refFloat(ctx context.Context, key string) (float64, error) {
	data, err := b.ReferenceData(ctx)
	if err != nil {
		return 0, err
	}
	f, ok := data[key].(float64)
	if !ok {
		return 0, fmt.Errorf("reference data has no numeric %q", key)
	}
	return f, nil
}

// Currency returns the object's currency from its reference data
func (b *Base) Currency(ctx context.Context) (string, error) {
	return b.refString(ctx, "currency")
}

func (b *Base) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.name != "" {
		return fmt.Sprintf("%s <%s>", b.name, b.creation.Name())
	}
	return fmt.Sprintf("%s <%s>", b.creation.ObjectID(), b.creation.Name())
}
