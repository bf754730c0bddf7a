// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package live

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const DefaultPollInterval = 50 * time.Millisecond

// Overlap decides what a tick does while an earlier fetch is still running.
type Overlap string

const (
	// OverlapSkip drops the tick.
	OverlapSkip Overlap = "skip"
	// OverlapAllow issues the fetch anyway; stale results are discarded by
	// sequence number.
	OverlapAllow Overlap = "allow"
)

func ParseOverlap(s string) (Overlap, error) {
	switch Overlap(strings.ToLower(strings.TrimSpace(s))) {
	case "", OverlapSkip:
		return OverlapSkip, nil
	case OverlapAllow:
		return OverlapAllow, nil
	}
	return "", fmt.Errorf("unknown overlap policy %q", s)
}

type Fetcher interface {
	Snapshot(ctx context.Context, v interface{}) error
}

// Poller fetches snapshots on a fixed period and applies them to a Store.
type Poller struct {
	Client   Fetcher
	Store    *Store
	Interval time.Duration
	Overlap  Overlap

	seq      uint64
	inFlight int32

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// Run polls until ctx is done or Stop is called. It returns once every
// fetch it started has finished, and no result is applied after that.
// Run on a stopped poller returns immediately.
func (p *Poller) Run(ctx context.Context) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		log.Println("poller already stopped")
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.ctx, p.cancel = runCtx, cancel
	p.mu.Unlock()

	log.Printf("starting poller every %v (overlap %v)", interval, p.overlap())
	defer log.Println("stopped poller")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			p.mu.Lock()
			cancel()
			p.ctx = nil
			p.mu.Unlock()
			p.wg.Wait()
			return
		case <-ticker.C:
			if p.overlap() == OverlapSkip && atomic.LoadInt32(&p.inFlight) > 0 {
				continue
			}
			p.fetch(runCtx)
		}
	}
}

// Stop cancels a running poller. A poller stopped before Run never polls.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	if p.cancel != nil {
		p.cancel()
	}
}

// Poll issues one fetch immediately, outside the tick schedule.
func (p *Poller) Poll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil || p.ctx.Err() != nil {
		return
	}
	p.fetch(p.ctx)
}

func (p *Poller) overlap() Overlap {
	if p.Overlap == "" {
		return OverlapSkip
	}
	return p.Overlap
}

func (p *Poller) fetch(ctx context.Context) {
	seq := atomic.AddUint64(&p.seq, 1)
	atomic.AddInt32(&p.inFlight, 1)
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		defer atomic.AddInt32(&p.inFlight, -1)

		snap := &Snapshot{}
		err := p.Client.Snapshot(ctx, snap)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			p.Store.ApplyPoll(seq, nil, err)
			return
		}
		p.Store.ApplyPoll(seq, snap, nil)
	}()
}
