// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/poiesic/kbingest/core"
)

// DefaultInterval is the delay between polls while any source is active.
const DefaultInterval = time.Second

// Lister returns the current state of every knowledge source.
type Lister interface {
	List(ctx context.Context) ([]*core.KnowledgeSource, error)
}

// Item is one source as seen by a poll.
type Item struct {
	Source *core.KnowledgeSource
	ETA    string
}

// Snapshot is the result of one poll.
type Snapshot struct {
	Items  []Item
	Active int
	At     time.Time
}

// Poller lists sources repeatedly while ingestion is in progress.
type Poller struct {
	lister       Lister
	interval     time.Duration
	idleInterval time.Duration
	trigger      chan struct{}
	now          func() time.Time
	logger       *slog.Logger
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the delay between polls while any source is active.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithIdleInterval makes the poller also poll every d while nothing is
// active, for listers whose changes cannot be signalled with Trigger.
func WithIdleInterval(d time.Duration) Option {
	return func(p *Poller) {
		p.idleInterval = d
	}
}

// WithClock overrides the time source used for ETAs.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New returns a Poller over lister. It polls every second while sources
// are active and waits for Trigger otherwise.
func New(lister Lister, opts ...Option) *Poller {
	p := &Poller{
		lister:   lister,
		interval: DefaultInterval,
		trigger:  make(chan struct{}, 1),
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Trigger wakes an idle poller. It never blocks.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Poll lists every source once and attaches an ETA to Running ones.
func (p *Poller) Poll(ctx context.Context) (*Snapshot, error) {
	sources, err := p.lister.List(ctx)
	if err != nil {
		return nil, err
	}
	now := p.now()
	snap := &Snapshot{Items: make([]Item, len(sources)), At: now}
	for i, src := range sources {
		snap.Items[i] = Item{Source: src, ETA: EstimateRemaining(src, now)}
		if src.Status.IsActive() {
			snap.Active++
		}
	}
	return snap, nil
}

// Run polls until ctx is done, handing every snapshot to fn. A failed
// list is logged and retried after the active interval.
func (p *Poller) Run(ctx context.Context, fn func(*Snapshot)) error {
	for {
		wait := p.interval
		snap, err := p.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn("poll failed", "err", err)
		} else {
			fn(snap)
			if snap.Active == 0 {
				wait = p.idleInterval
			}
		}
		if err := p.wait(ctx, wait); err != nil {
			return err
		}
	}
}

// RunUntilIdle polls until a snapshot has no active source and returns it.
func (p *Poller) RunUntilIdle(ctx context.Context, fn func(*Snapshot)) (*Snapshot, error) {
	for {
		snap, err := p.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("poll failed", "err", err)
		} else {
			if fn != nil {
				fn(snap)
			}
			if snap.Active == 0 {
				return snap, nil
			}
		}
		if err := p.wait(ctx, p.interval); err != nil {
			return nil, err
		}
	}
}

// wait sleeps for d, or until triggered when d is zero.
func (p *Poller) wait(ctx context.Context, d time.Duration) error {
	var tick <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		tick = timer.C
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.trigger:
	case <-tick:
	}
	return nil
}
