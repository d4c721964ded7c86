package registry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(proxies []registry.Proxy) []string {
	out := make([]string, len(proxies))
	for i, p := range proxies {
		out[i] = p.ID
	}

	return out
}

func TestRegister(t *testing.T) {
	r := registry.New()

	cases := []struct {
		desc  string
		id    string
		setup func()
		err   error
	}{
		{
			desc: "register new client",
			id:   "client-1",
		},
		{
			desc: "re-register is idempotent",
			id:   "client-1",
		},
		{
			desc: "empty id",
			id:   "",
			err:  fl.ErrEmptyClientID,
		},
		{
			desc:  "busy client cannot re-register",
			id:    "client-2",
			setup: func() { _, _ = r.Register("client-2", nil); r.Acquire([]string{"client-2"}) },
			err:   fl.ErrDuplicateActiveClient,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			if tc.setup != nil {
				tc.setup()
			}
			p, err := r.Register(tc.id, nil)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.id, p.ID)
			assert.Equal(t, registry.Available, p.State)
		})
	}

	assert.Equal(t, 2, r.Len())
}

func TestListAvailableSortedSnapshot(t *testing.T) {
	r := registry.New()
	for _, id := range []string{"c", "a", "b", "d"} {
		_, err := r.Register(id, nil)
		require.NoError(t, err)
	}
	r.Acquire([]string{"d"})
	r.MarkResult("b", false)

	available := r.ListAvailable()
	assert.Equal(t, []string{"a", "c"}, ids(available))

	available[0].State = registry.Busy
	p, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, registry.Available, p.State, "snapshot must not alias registry state")
}

func TestMarkResult(t *testing.T) {
	r := registry.New()
	_, err := r.Register("a", nil)
	require.NoError(t, err)

	r.MarkResult("a", false, registry.WithError(errors.New("timeout")))
	r.MarkResult("a", false)
	p, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, registry.Unreachable, p.State)
	assert.Equal(t, 2, p.Failures)
	assert.Equal(t, "timeout", p.LastError)

	r.MarkResult("a", true, registry.WithSamples(120))
	p, err = r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, registry.Available, p.State)
	assert.Zero(t, p.Failures)
	assert.Empty(t, p.LastError)
	assert.Equal(t, uint64(120), p.NumSamples)

	r.MarkResult("missing", true)
}

func TestEvictIfExhausted(t *testing.T) {
	cases := []struct {
		desc      string
		threshold int
		failures  int
		evicted   bool
	}{
		{desc: "below threshold", threshold: 3, failures: 2, evicted: false},
		{desc: "at threshold", threshold: 3, failures: 3, evicted: false},
		{desc: "above threshold", threshold: 3, failures: 4, evicted: true},
		{desc: "threshold of one", threshold: 1, failures: 2, evicted: true},
		{desc: "eviction disabled", threshold: 0, failures: 10, evicted: false},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			r := registry.New(registry.WithEvictionThreshold(tc.threshold))
			_, err := r.Register("a", nil)
			require.NoError(t, err)
			for range tc.failures {
				r.MarkResult("a", false)
			}

			assert.Equal(t, tc.evicted, r.EvictIfExhausted("a"))
			_, err = r.Get("a")
			if tc.evicted {
				assert.ErrorIs(t, err, fl.ErrClientNotFound)

				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestHeartbeatKeepsFailureStreak(t *testing.T) {
	r := registry.New(registry.WithEvictionThreshold(2))
	_, err := r.Register("a", nil)
	require.NoError(t, err)

	r.MarkResult("a", false)
	require.NoError(t, r.Heartbeat("a"))

	p, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, registry.Available, p.State)
	assert.Equal(t, 1, p.Failures)

	r.MarkResult("a", false)
	assert.False(t, r.EvictIfExhausted("a"))
	require.NoError(t, r.Heartbeat("a"))

	r.MarkResult("a", false)
	assert.True(t, r.EvictIfExhausted("a"))
	assert.ErrorIs(t, r.Heartbeat("a"), fl.ErrClientNotFound)
}

func TestDisconnectAndRelease(t *testing.T) {
	r := registry.New()
	for _, id := range []string{"a", "b"} {
		_, err := r.Register(id, nil)
		require.NoError(t, err)
	}

	acquired := r.Acquire([]string{"a", "b", "gone"})
	assert.Equal(t, []string{"a", "b"}, ids(acquired))
	assert.ErrorIs(t, r.Remove("a"), fl.ErrDuplicateActiveClient)

	require.NoError(t, r.Disconnect("b"))
	p, err := r.Get("b")
	require.NoError(t, err)
	assert.Equal(t, registry.Busy, p.State, "in-flight client stays busy until the round marks it")

	r.Release([]string{"a", "b"})
	assert.Equal(t, []string{"a", "b"}, ids(r.ListAvailable()))

	require.NoError(t, r.Disconnect("b"))
	assert.Equal(t, []string{"a"}, ids(r.ListAvailable()))
	require.NoError(t, r.Remove("a"))
	assert.ErrorIs(t, r.Remove("a"), fl.ErrClientNotFound)
}

func TestAcquire(t *testing.T) {
	cases := []struct {
		desc  string
		setup func(r *registry.Registry)
		ids   []string
		want  []string
		state map[string]registry.State
	}{
		{
			desc: "all available",
			ids:  []string{"a", "b"},
			want: []string{"a", "b"},
			state: map[string]registry.State{
				"a": registry.Busy,
				"b": registry.Busy,
			},
		},
		{
			desc:  "unreachable client is skipped",
			setup: func(r *registry.Registry) { require.NoError(t, r.Disconnect("b")) },
			ids:   []string{"a", "b"},
			want:  []string{"a"},
			state: map[string]registry.State{
				"a": registry.Busy,
				"b": registry.Unreachable,
			},
		},
		{
			desc:  "busy client is skipped",
			setup: func(r *registry.Registry) { r.Acquire([]string{"b"}) },
			ids:   []string{"a", "b"},
			want:  []string{"a"},
			state: map[string]registry.State{
				"a": registry.Busy,
				"b": registry.Busy,
			},
		},
		{
			desc:  "unknown client is skipped",
			ids:   []string{"gone", "a"},
			want:  []string{"a"},
			state: map[string]registry.State{"a": registry.Busy},
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			r := registry.New()
			for _, id := range []string{"a", "b"} {
				_, err := r.Register(id, nil)
				require.NoError(t, err)
			}
			if tc.setup != nil {
				tc.setup(r)
			}

			assert.Equal(t, tc.want, ids(r.Acquire(tc.ids)))
			for id, state := range tc.state {
				p, err := r.Get(id)
				require.NoError(t, err)
				assert.Equal(t, state, p.State, id)
			}
		})
	}
}

func TestExpire(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := registry.New(registry.WithClock(func() time.Time { return now }))
	_, err := r.Register("old", nil)
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = r.Register("fresh", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"old"}, r.Expire(30*time.Second))
	assert.Equal(t, []string{"fresh"}, ids(r.ListAvailable()))
}

func TestWaitForAvailable(t *testing.T) {
	r := registry.New()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = r.Register("a", nil)
		_, _ = r.Register("b", nil)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.WaitForAvailable(ctx, 2, 5*time.Millisecond))

	ctx, cancel = context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.WaitForAvailable(ctx, 3, 5*time.Millisecond), context.DeadlineExceeded)
}

func TestProxyWithoutChannel(t *testing.T) {
	p := registry.NewProxy("a", nil)

	_, err := p.Fit(context.Background(), fl.ParameterSet{}, fl.RoundConfig{})
	assert.ErrorIs(t, err, fl.ErrNoResponse)
}

func TestStateJSON(t *testing.T) {
	data, err := registry.Unreachable.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"unreachable"`, string(data))

	var s registry.State
	require.NoError(t, s.UnmarshalJSON([]byte(`"busy"`)))
	assert.Equal(t, registry.Busy, s)
	assert.Error(t, s.UnmarshalJSON([]byte(`"sleeping"`)))
}
