package framework

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/sigapi/internal/fakeapi"
	"github.com/wonny/sigapi/internal/poller"
	"github.com/wonny/sigapi/internal/resource"
)

func TestWaitIsIdempotentOnceSucceeded(t *testing.T) {
	api := fakeapi.New(t)
	api.SetPendingPolls(2)
	s := newTestSession(t, api)
	ctx := context.Background()

	st, err := NewRollingFutureStrategy(ctx, s, RollingFutureInput{ContractCode: "ES", ContractSector: "INDEX"})
	require.NoError(t, err)

	require.NoError(t, st.Wait(ctx))
	obj, _ := api.Object(mustID(t, st))
	polls := obj.Polls
	before := len(api.Requests("", ""))

	require.NoError(t, st.Wait(ctx))
	status, err := st.Status(ctx)
	require.NoError(t, err)

	assert.Equal(t, poller.StatusSucceeded, status)
	assert.Equal(t, polls, obj.Polls)
	assert.Len(t, api.Requests("", ""), before)
}

func TestStatusRequeriesUntilTerminal(t *testing.T) {
	api := fakeapi.New(t)
	api.SetPendingPolls(1)
	s := newTestSession(t, api)
	ctx := context.Background()

	st, err := NewRollingBondStrategy(ctx, s, RollingBondInput{Country: "US", Tenor: "10Y"})
	require.NoError(t, err)

	status, err := st.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", status)

	status, err = st.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, poller.StatusSucceeded, status)

	obj, _ := api.Object(mustID(t, st))
	polls := obj.Polls

	status, err = st.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, poller.StatusSucceeded, status)
	assert.Equal(t, polls, obj.Polls)
}

func TestWaitCachesFailure(t *testing.T) {
	api := fakeapi.New(t)
	api.OnCreate(func(o *fakeapi.Object) {
		o.FailWith = "contract not found"
	})
	s := newTestSession(t, api)
	ctx := context.Background()

	st, err := NewRollingFutureStrategy(ctx, s, RollingFutureInput{ContractCode: "ZZ", ContractSector: "COMDTY"})
	require.NoError(t, err)

	err = st.Wait(ctx)
	var remote *resource.RemoteFailureError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, "contract not found", remote.Message)
	assert.Equal(t, mustID(t, st), remote.ObjectID)

	obj, _ := api.Object(mustID(t, st))
	polls := obj.Polls

	again := st.Wait(ctx)
	assert.Equal(t, err, again)
	assert.Equal(t, polls, obj.Polls)

	status, err := st.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, poller.StatusFailed, status)
}

func TestObjectIdentityPreconditions(t *testing.T) {
	api := fakeapi.New(t)
	s := newTestSession(t, api)

	b := &Base{}
	b.bind(s, resource.NewEnvelope(map[string]interface{}{"status": "QUEUED"}, "Basket", nil, nil), b)

	_, err := b.ObjectID()
	var pre *resource.PreconditionError
	assert.True(t, errors.As(err, &pre))

	_, err = b.SessionID()
	assert.True(t, errors.As(err, &pre))

	err = b.Wait(context.Background())
	assert.True(t, errors.As(err, &pre))
}

func TestReferenceData(t *testing.T) {
	api := fakeapi.New(t)
	api.OnCreate(func(o *fakeapi.Object) {
		o.Fields["referenceData"] = map[string]interface{}{
			"currency":     "USD",
			"contractSize": 50.0,
			"expiryDate":   "2024-12-20",
			"$group": map[string]interface{}{
				"currency":     "USD",
				"description":  "S&P 500 E-mini",
				"contractSize": 50.0,
			},
		}
	})
	s := newTestSession(t, api)
	ctx := context.Background()

	obj, err := s.Get(ctx, "ESZ24 COMDTY")
	require.NoError(t, err)
	fut, ok := obj.(*Future)
	require.True(t, ok)

	currency, err := fut.Currency(ctx)
	require.NoError(t, err)
	assert.Equal(t, "USD", currency)

	size, err := fut.ContractSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50.0, size)

	expiry, ok, err := fut.ExpiryDate(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-12-20", expiry.Format("2006-01-02"))

	_, ok, err = fut.FirstDeliveryNoticeDate(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	group, err := fut.Group(ctx)
	require.NoError(t, err)
	assert.Equal(t, "S&P 500 E-mini", group.AssetDescription)

	// cached after the first read
	inner, _ := api.Object(mustID(t, fut))
	polls := inner.Polls
	_, err = fut.ReferenceData(ctx)
	require.NoError(t, err)
	assert.Equal(t, polls, inner.Polls)
}

func TestStatusKeepsFailureDetails(t *testing.T) {
	api := fakeapi.New(t)
	api.OnCreate(func(o *fakeapi.Object) {
		o.FailWith = "contract not found"
	})
	s := newTestSession(t, api)
	ctx := context.Background()

	st, err := NewRollingFutureStrategy(ctx, s, RollingFutureInput{ContractCode: "ZZ", ContractSector: "COMDTY"})
	require.NoError(t, err)

	status, err := st.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, poller.StatusFailed, status)

	obj, _ := api.Object(mustID(t, st))
	polls := obj.Polls

	err = st.Wait(ctx)
	var remote *resource.RemoteFailureError
	require.True(t, errors.As(err, &remote), "got %v", err)
	assert.Equal(t, "contract not found", remote.Message)
	assert.Equal(t, mustID(t, st), remote.ObjectID)
	assert.NotEmpty(t, remote.SessionID)
	assert.ErrorIs(t, err, poller.ErrFailed)
	assert.Equal(t, polls, obj.Polls)
}

func TestStatusNeverRegressesOnceTerminal(t *testing.T) {
	api := fakeapi.New(t)
	api.SetPendingPolls(5)
	s := newTestSession(t, api)
	ctx := context.Background()

	st, err := NewRollingBondStrategy(ctx, s, RollingBondInput{Country: "US", Tenor: "10Y"})
	require.NoError(t, err)
	id := mustID(t, st)

	// a concurrent Wait finishes while the status request is in flight
	var finished atomic.Bool
	api.OnPoll(func(objectID string) {
		if objectID != id || !finished.CompareAndSwap(false, true) {
			return
		}
		b := st.base()
		b.mu.Lock()
		b.status = poller.StatusSucceeded
		b.mu.Unlock()
	})

	status, err := st.Status(ctx)
	require.NoError(t, err)
	assert.True(t, finished.Load())
	assert.Equal(t, poller.StatusSucceeded, status)

	obj, _ := api.Object(id)
	polls := obj.Polls

	status, err = st.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, poller.StatusSucceeded, status)
	assert.Equal(t, polls, obj.Polls)
}
