package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wonny/sigapi/internal/poller"
)

// Envelope is a read-only snake_case view of one decoded API object
type Envelope struct {
	fields map[string]interface{}
	name   string
	client *Client
	params Params
}

// NewEnvelope normalizes raw keys to snake_case. client and params may be nil.
func NewEnvelope(raw map[string]interface{}, name string, client *Client, params Params) *Envelope {
	if name == "" {
		name = "Response"
	}
	var p Params
	if params != nil {
		p = make(Params, len(params))
		for k, v := range params {
			p[k] = v
		}
	}
	return &Envelope{
		fields: fromWire(raw),
		name:   name,
		client: client,
		params: p,
	}
}

// Name is the diagnostic label (singular collection name)
func (e *Envelope) Name() string {
	return e.name
}

// Client returns the client that produced the envelope, or nil
func (e *Envelope) Client() *Client {
	return e.client
}

// Field returns a raw field value
func (e *Envelope) Field(key string) (interface{}, bool) {
	v, ok := e.fields[key]
	return v, ok
}

// Has reports whether key is present with a non-null value
func (e *Envelope) Has(key string) bool {
	v, ok := e.fields[key]
	return ok && v != nil
}

// String returns a field as string ("" when absent or not a string)
func (e *Envelope) String(key string) string {
	if s, ok := e.fields[key].(string); ok {
		return s
	}
	return ""
}

// Status returns the server status field
func (e *Envelope) Status() string {
	return e.String("status")
}

// ObjectID returns the object_id field
func (e *Envelope) ObjectID() string {
	return e.String("object_id")
}

// SessionID returns the session id from the request params, falling back to the body
func (e *Envelope) SessionID() string {
	if s, ok := e.params["session_id"].(string); ok && s != "" {
		return s
	}
	return e.String("session_id")
}

// Fields returns a copy of the normalized fields
func (e *Envelope) Fields() map[string]interface{} {
	out := make(map[string]interface{}, len(e.fields))
	for k, v := range e.fields {
		out[k] = v
	}
	return out
}

// Params returns a copy of the originating request params
func (e *Envelope) Params() Params {
	out := make(Params, len(e.params))
	for k, v := range e.params {
		out[k] = v
	}
	return out
}

// Decode re-marshals one field into dest
func (e *Envelope) Decode(key string, dest interface{}) error {
	v, ok := e.fields[key]
	if !ok || v == nil {
		return fmt.Errorf("%s has no field %q", e.name, key)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal field %q: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode field %q: %w", key, err)
	}
	return nil
}

func (e *Envelope) GoString() string {
	keys := make([]string, 0, len(e.fields))
	for k := range e.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.fields[k]))
	}
	return fmt.Sprintf("%s(%s)", e.name, strings.Join(parts, ", "))
}

func (e *Envelope) checkIdentity(op string) (sessionID, objectID string, err error) {
	sessionID, _ = e.params["session_id"].(string)
	objectID = e.ObjectID()

	var missing []string
	if sessionID == "" {
		missing = append(missing, "session_id")
	}
	if objectID == "" {
		missing = append(missing, "object_id")
	}
	if e.client == nil {
		missing = append(missing, "client")
	}
	if len(missing) > 0 {
		return "", "", &PreconditionError{Op: op, Missing: missing}
	}
	return sessionID, objectID, nil
}

// LatestObjectResponse re-fetches the object through sessions/{session}/objects/{object}.
// Requires session_id in the request params and object_id in the body.
func (e *Envelope) LatestObjectResponse(ctx context.Context) (*Envelope, error) {
	sessionID, objectID, err := e.checkIdentity("latest object response")
	if err != nil {
		return nil, err
	}
	return e.client.QueryObject(ctx, sessionID, objectID)
}

// WaitOptions configures WaitForObjectStatus
type WaitOptions struct {
	Property string        // wait only until this field is present
	Timeout  time.Duration // 0 ⇒ client's configured wait timeout
}

// WaitForObjectStatus returns once the object is SUCCEEDED or opts.Property is present.
// FAILED surfaces as *RemoteFailureError, an exhausted budget as *poller.TimeoutError.
func (e *Envelope) WaitForObjectStatus(ctx context.Context, opts WaitOptions) (*Envelope, error) {
	sessionID, objectID, err := e.checkIdentity("wait for object status")
	if err != nil {
		return nil, err
	}

	if opts.Property != "" && e.Has(opts.Property) {
		return e, nil
	}
	if e.Status() == poller.StatusSucceeded {
		return e, nil
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.client.waitTimeout
	}

	latest, err := poller.Wait(ctx, func(ctx context.Context) (*Envelope, error) {
		return e.client.QueryObject(ctx, sessionID, objectID)
	}, poller.Options{
		Property: opts.Property,
		Timeout:  timeout,
		Unit:     e.client.pollUnit,
		Clock:    e.client.pollClock,
		ObjectID: objectID,
		Logger:   e.client.logger,
		Progress: e.client.waitTimer,
	})
	if errors.Is(err, poller.ErrFailed) {
		return latest, &RemoteFailureError{
			SessionID: sessionID,
			ObjectID:  objectID,
			Message:   latest.String("error"),
		}
	}
	return latest, err
}
