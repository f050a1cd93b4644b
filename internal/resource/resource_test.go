package resource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/sigapi/internal/fakeapi"
	"github.com/wonny/sigapi/internal/poller"
	"github.com/wonny/sigapi/pkg/config"
	"github.com/wonny/sigapi/pkg/httputil"
	"github.com/wonny/sigapi/pkg/logger"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	cfg := &config.Config{
		Env:      "test",
		LogLevel: "error",
		API: config.APIConfig{
			BaseURL:     baseURL,
			APIKey:      "test-key",
			Version:     "1.4.0",
			WaitTimeout: 5 * time.Second,
		},
	}

	client, err := New(cfg.API, httputil.New(cfg, logger.Nop()), logger.Nop())
	require.NoError(t, err)
	return client.WithPolling(poller.RealClock, time.Millisecond)
}

func newSession(t *testing.T, client *Client) string {
	t.Helper()

	env, err := client.WithPath("sessions").Create(context.Background(), Params{"start_date": "2024-01-02"})
	require.NoError(t, err)
	require.NotEmpty(t, env.String("session_id"))
	return env.String("session_id")
}

func TestCasing(t *testing.T) {
	tests := []struct {
		snake string
		camel string
	}{
		{"session_id", "sessionId"},
		{"include_transaction_costs", "includeTransactionCosts"},
		{"name", "name"},
		{"rebalance_frequency", "rebalanceFrequency"},
	}

	for _, tt := range tests {
		t.Run(tt.snake, func(t *testing.T) {
			assert.Equal(t, tt.camel, SnakeToCamel(tt.snake))
			assert.Equal(t, tt.snake, CamelToSnake(tt.camel))
			assert.Equal(t, tt.snake, CamelToSnake(SnakeToCamel(tt.snake)))
		})
	}
}

func TestSingular(t *testing.T) {
	assert.Equal(t, "Strategie", Singular("strategies"))
	assert.Equal(t, "Session", Singular("sessions"))
	assert.Equal(t, "Status", Singular("status"))
	assert.Equal(t, "Basket", Singular("basket"))
}

func TestWireConversionIsTopLevelOnly(t *testing.T) {
	wire := toWire(Params{
		"session_id": "s-1",
		"reference_data": map[string]interface{}{
			"start_date": "2024-01-02",
		},
	})

	assert.Contains(t, wire, "sessionId")
	nested := wire["referenceData"].(map[string]interface{})
	assert.Contains(t, nested, "start_date")
}

func TestNew_MissingAPIKey(t *testing.T) {
	_, err := New(config.APIConfig{BaseURL: "http://localhost"}, nil, nil)
	assert.ErrorIs(t, err, config.ErrMissingAPIKey)
}

func TestWithPathIsImmutable(t *testing.T) {
	root := newTestClient(t, "http://api.test/")

	strategies := root.WithPath("strategies")
	basket := strategies.WithPath("basket")

	assert.Equal(t, "http://api.test", root.URL())
	assert.Equal(t, "http://api.test/strategies", strategies.URL())
	assert.Equal(t, "http://api.test/strategies/basket", basket.URL())
	assert.Equal(t, "basket", basket.Namespace())
	assert.Equal(t, "http://api.test/instruments/custom", basket.WithRoot("instruments/custom").URL())
}

func TestRequestHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "1.4.0", r.Header.Get("Sig-Version"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(`{"status":"OK"}`))
	}))
	defer server.Close()

	env, err := newTestClient(t, server.URL).WithPath("status").Get(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Equal(t, "OK", env.Status())
	assert.Equal(t, "Status", env.Name())
}

func TestCreateSendsCamelCase(t *testing.T) {
	api := fakeapi.New(t)
	client := newTestClient(t, api.URL)
	sessionID := newSession(t, client)

	env, err := client.WithPath("strategies", "basket").Create(context.Background(), Params{
		"session_id":          sessionID,
		"rebalance_frequency": "EOM",
	})
	require.NoError(t, err)

	bodies := api.Creates("strategies/basket")
	require.Len(t, bodies, 1)
	assert.Equal(t, sessionID, bodies[0]["sessionId"])
	assert.Equal(t, "EOM", bodies[0]["rebalanceFrequency"])

	assert.NotEmpty(t, env.ObjectID())
	assert.Equal(t, sessionID, env.SessionID())
	assert.Equal(t, "QUEUED", env.Status())
	assert.Equal(t, "Basket", env.Name())
}

func TestList(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/bare", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("pageSize"))
		w.Write([]byte(`[{"objectId":"a"},{"objectId":"b"}]`))
	})
	mux.HandleFunc("/strategies", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"strategies":[{"objectId":"c"}]}`))
	})
	mux.HandleFunc("/option_groups", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"optionGroups":[{"objectId":"d"}]}`))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"other":[]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t, server.URL)
	ctx := context.Background()

	items, err := client.WithPath("bare").List(ctx, Params{"page_size": 10})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[1].ObjectID())

	items, err = client.WithPath("strategies").List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "c", items[0].ObjectID())

	items, err = client.WithPath("option_groups").List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "d", items[0].ObjectID())

	_, err = client.WithPath("broken").List(ctx, nil)
	assert.Error(t, err)
}

func TestHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"no such object"}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).WithPath("strategies").Get(context.Background(), "missing", nil)
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Equal(t, http.MethodGet, httpErr.Method)
	assert.Contains(t, httpErr.Error(), "no such object")
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
	assert.Equal(t, 0, StatusCode(errors.New("other")))
}

func TestDeleteEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/projects/p-1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	env, err := newTestClient(t, server.URL).WithPath("projects").Delete(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Empty(t, env.Fields())
}

func TestEnvelopeAccessors(t *testing.T) {
	env := NewEnvelope(map[string]interface{}{
		"objectId":      "o-1",
		"sessionId":     "body-session",
		"referenceData": map[string]interface{}{"currency": "EUR"},
		"name":          nil,
	}, "", nil, Params{"session_id": "param-session"})

	assert.Equal(t, "Response", env.Name())
	assert.Equal(t, "o-1", env.ObjectID())
	assert.Equal(t, "param-session", env.SessionID())
	assert.False(t, env.Has("name"))
	assert.True(t, env.Has("reference_data"))

	var ref struct {
		Currency string `json:"currency"`
	}
	require.NoError(t, env.Decode("reference_data", &ref))
	assert.Equal(t, "EUR", ref.Currency)
	assert.Error(t, env.Decode("missing", &ref))

	assert.Contains(t, env.GoString(), "object_id=o-1")

	// params are copied
	p := env.Params()
	p["session_id"] = "changed"
	assert.Equal(t, "param-session", env.SessionID())
}

func TestPreconditions(t *testing.T) {
	env := NewEnvelope(map[string]interface{}{"objectId": "o-1"}, "Basket", nil, nil)

	_, err := env.LatestObjectResponse(context.Background())
	var pre *PreconditionError
	require.True(t, errors.As(err, &pre))
	assert.Equal(t, []string{"session_id", "client"}, pre.Missing)

	_, err = env.WaitForObjectStatus(context.Background(), WaitOptions{})
	assert.True(t, errors.As(err, &pre))
}

func TestWaitForObjectStatus(t *testing.T) {
	api := fakeapi.New(t)
	api.SetPendingPolls(2)
	client := newTestClient(t, api.URL)
	sessionID := newSession(t, client)

	created, err := client.WithPath("strategies", "basket").Create(context.Background(), Params{"session_id": sessionID})
	require.NoError(t, err)

	done, err := created.WaitForObjectStatus(context.Background(), WaitOptions{})
	require.NoError(t, err)
	assert.Equal(t, poller.StatusSucceeded, done.Status())
	assert.True(t, done.Has("type"))

	obj, ok := api.Object(created.ObjectID())
	require.True(t, ok)
	assert.Equal(t, 3, obj.Polls)

	// already terminal: no request
	again, err := done.WaitForObjectStatus(context.Background(), WaitOptions{})
	require.NoError(t, err)
	assert.Same(t, done, again)
	assert.Equal(t, 3, obj.Polls)
}

func TestWaitForProperty(t *testing.T) {
	api := fakeapi.New(t)
	api.SetPendingPolls(5)
	client := newTestClient(t, api.URL)
	sessionID := newSession(t, client)

	created, err := client.WithPath("strategies", "basket").Create(context.Background(), Params{"session_id": sessionID})
	require.NoError(t, err)

	env, err := created.WaitForObjectStatus(context.Background(), WaitOptions{Property: "name"})
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", env.Status())
	assert.NotEmpty(t, env.String("name"))

	obj, _ := api.Object(created.ObjectID())
	assert.Equal(t, 1, obj.Polls)
}

func TestWaitRemoteFailure(t *testing.T) {
	api := fakeapi.New(t)
	api.OnCreate(func(o *fakeapi.Object) {
		o.FailWith = "weights do not sum to one"
	})
	client := newTestClient(t, api.URL)
	sessionID := newSession(t, client)

	created, err := client.WithPath("strategies", "basket").Create(context.Background(), Params{"session_id": sessionID})
	require.NoError(t, err)

	_, err = created.WaitForObjectStatus(context.Background(), WaitOptions{})
	require.Error(t, err)

	var remote *RemoteFailureError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, created.ObjectID(), remote.ObjectID)
	assert.Equal(t, sessionID, remote.SessionID)
	assert.ErrorIs(t, err, poller.ErrFailed)
	assert.Contains(t, err.Error(), "weights do not sum to one")
}

func TestWaitTimeout(t *testing.T) {
	api := fakeapi.New(t)
	api.SetPendingPolls(1000)
	client := newTestClient(t, api.URL)
	sessionID := newSession(t, client)

	created, err := client.WithPath("strategies", "basket").Create(context.Background(), Params{"session_id": sessionID})
	require.NoError(t, err)

	_, err = created.WaitForObjectStatus(context.Background(), WaitOptions{Timeout: 20 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, poller.ErrTimeout)

	var timeout *poller.TimeoutError
	require.True(t, errors.As(err, &timeout))
	assert.Equal(t, created.ObjectID(), timeout.ObjectID)
}

func TestQueryObjectKeepsSession(t *testing.T) {
	api := fakeapi.New(t)
	client := newTestClient(t, api.URL)
	sessionID := newSession(t, client)

	created, err := client.WithPath("instruments").Create(context.Background(), Params{
		"session_id": sessionID,
		"identifier": "ESZ24 INDEX",
	})
	require.NoError(t, err)

	latest, err := created.LatestObjectResponse(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sessionID, latest.SessionID())
	assert.Equal(t, "INDEX", latest.String("type"))

	_, err = client.QueryObject(context.Background(), "other-session", created.ObjectID())
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
}
