// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rditech/rdi-bench/backend"
	"github.com/rditech/rdi-bench/sim"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fetcher answers each fetch with the next result after an optional delay.
// The last result repeats.
type fetcher struct {
	mu      sync.Mutex
	delay   func(n int) time.Duration
	results []string
	calls   int32
	active  int32
	maxActv int32
}

func (f *fetcher) Snapshot(ctx context.Context, v interface{}) error {
	n := int(atomic.AddInt32(&f.calls, 1))
	active := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)

	f.mu.Lock()
	if active > f.maxActv {
		f.maxActv = active
	}
	f.mu.Unlock()

	if f.delay != nil {
		select {
		case <-time.After(f.delay(n)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	body := `{"pwa": {"channel1": {"voltage": 1, "current": 3}}}`
	if n-1 < len(f.results) {
		body = f.results[n-1]
	} else if len(f.results) > 0 {
		body = f.results[len(f.results)-1]
	}
	if body == "error" {
		return errors.New("503 Service Unavailable")
	}
	return json.Unmarshal([]byte(body), v)
}

func (f *fetcher) maxActive() int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActv
}

func TestPollerAppliesSnapshots(t *testing.T) {
	s := sim.New()
	srv := httptest.NewServer(s)
	defer srv.Close()

	store := NewStore()
	p := &Poller{Client: backend.NewClient(srv.URL), Store: store, Interval: 5 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.State().Seq >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.NoError(t, store.State().PollErr)
}

func TestPollerKeepsGoingAfterErrors(t *testing.T) {
	f := &fetcher{results: []string{"error", "error", `{"pwa": {"channel1": {"current": 7}}}`}}
	store := NewStore()
	p := &Poller{Client: f, Store: store, Interval: 2 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		st := store.State()
		return st.PollErr == nil && st.Snapshot.PWA.Channel1.Current == Valid(7)
	}, 2*time.Second, 2*time.Millisecond)

	p.Stop()
	<-done
}

func TestPollerSkipsWhileInFlight(t *testing.T) {
	f := &fetcher{delay: func(int) time.Duration { return 20 * time.Millisecond }}
	p := &Poller{Client: f, Store: NewStore(), Interval: time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	assert.Equal(t, int32(1), f.maxActive())
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.active))
}

func TestPollerOverlapDiscardsStale(t *testing.T) {
	// the first fetch is slow and answers with an old value
	f := &fetcher{
		delay: func(n int) time.Duration {
			if n == 1 {
				return 50 * time.Millisecond
			}
			return 0
		},
		results: []string{
			`{"pwa": {"channel1": {"current": 1}}}`,
			`{"pwa": {"channel1": {"current": 2}}}`,
		},
	}
	store := NewStore()
	p := &Poller{Client: f, Store: store, Interval: 5 * time.Millisecond, Overlap: OverlapAllow}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	assert.True(t, f.maxActive() > 1)
	st := store.State()
	assert.True(t, st.Seq > 1)
	assert.NotEqual(t, Valid(1), st.Snapshot.PWA.Channel1.Current)
}

func TestPollerNothingLandsAfterRun(t *testing.T) {
	f := &fetcher{delay: func(int) time.Duration { return time.Hour }}
	store := NewStore()
	p := &Poller{Client: f, Store: store, Interval: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&f.active) == 1 }, time.Second, time.Millisecond)

	version := store.State().Version
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "Run did not return")
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.active))
	assert.Equal(t, version, store.State().Version)
}

func TestPollerStoppedBeforeRun(t *testing.T) {
	f := &fetcher{}
	store := NewStore()
	p := &Poller{Client: f, Store: store, Interval: time.Millisecond}
	p.Stop()

	done := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		p.mu.Lock()
		if p.cancel != nil {
			p.cancel()
		}
		p.mu.Unlock()
		require.FailNow(t, "Run polled after Stop")
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.calls))
	assert.Equal(t, uint64(0), store.State().Seq)
}

func TestParseOverlap(t *testing.T) {
	o, err := ParseOverlap("")
	require.NoError(t, err)
	assert.Equal(t, OverlapSkip, o)

	o, err = ParseOverlap("Allow")
	require.NoError(t, err)
	assert.Equal(t, OverlapAllow, o)

	_, err = ParseOverlap("queue")
	assert.Error(t, err)
}
