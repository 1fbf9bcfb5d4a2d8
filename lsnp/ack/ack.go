// Copyright 2025 The go-lsnp Authors
// This file is part of the go-lsnp library.
//
// The go-lsnp library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-lsnp library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-lsnp library. If not, see <http://www.gnu.org/licenses/>.

// Package ack tracks reliability-tracked sends and schedules retries until an
// ACK arrives or the retry budget is exhausted.
package ack

import (
	"sync"
	"time"

	"github.com/lsnp/go-lsnp/common/mclock"
	"github.com/lsnp/go-lsnp/log"
)

// Reliability-layer defaults: a retry every 2 seconds, three retries, the
// sweeper wakes every 100ms.
const (
	Timeout       = 2 * time.Second
	MaxRetries    = 3
	SweepInterval = 100 * time.Millisecond
)

// Resender re-emits the exact serialized frame for one pending message. The
// sending component registers it so retries rebuild the frame, preserving the
// MESSAGE_ID and the drop class of the original send.
type Resender interface {
	Resend()
}

// ResendFunc adapts a closure to the Resender interface.
type ResendFunc func()

// Resend calls the wrapped closure.
func (f ResendFunc) Resend() { f() }

// Config holds settings for the manager.
type Config struct {
	Timeout       time.Duration
	MaxRetries    int
	SweepInterval time.Duration

	// OnFailure runs when a message exhausts its retries. Optional.
	OnFailure func(mid string)

	Clock mclock.Clock
	Log   log.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.Timeout == 0 {
		cfg.Timeout = Timeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = MaxRetries
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = SweepInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = mclock.System{}
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	return cfg
}

// pendingSend is the record for one outstanding message. A record exists iff
// the message is still hoping for an ACK.
type pendingSend struct {
	resender Resender
	retries  int
	nextDue  mclock.AbsTime
}

// Manager owns the pending set and the sweeper goroutine.
type Manager struct {
	cfg   Config
	clock mclock.Clock
	log   log.Logger

	mu      sync.Mutex
	pending map[string]*pendingSend

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewManager creates a manager and starts its sweeper.
func NewManager(cfg Config) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:     cfg,
		clock:   cfg.Clock,
		log:     cfg.Log,
		pending: make(map[string]*pendingSend),
		quit:    make(chan struct{}),
	}
	m.wg.Add(1)
	go m.loop()
	return m
}

// Track registers an outstanding message. Tracking an already-pending ID
// resets its timer, which happens when a component re-sends explicitly.
func (m *Manager) Track(mid string, r Resender) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[mid] = &pendingSend{resender: r, nextDue: m.clock.Now().Add(m.cfg.Timeout)}
}

// Acked clears the pending record for mid. It reports whether the record
// existed, so duplicate ACKs are visible to callers.
func (m *Manager) Acked(mid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[mid]; !ok {
		return false
	}
	delete(m.pending, mid)
	return true
}

// PendingCount returns the number of outstanding messages.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Stop terminates the sweeper. Pending records are discarded.
func (m *Manager) Stop() {
	close(m.quit)
	m.wg.Wait()
}

// loop wakes on the sweep interval and processes due records.
func (m *Manager) loop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.clock.After(m.cfg.SweepInterval):
			m.sweep()
		case <-m.quit:
			return
		}
	}
}

// sweep retries every past-due record, dropping those out of budget. Resends
// run outside the lock; they go through the transport which serializes
// itself.
func (m *Manager) sweep() {
	now := m.clock.Now()

	var resend []Resender
	var failed []string

	m.mu.Lock()
	for mid, p := range m.pending {
		if now < p.nextDue {
			continue
		}
		if p.retries >= m.cfg.MaxRetries {
			delete(m.pending, mid)
			failed = append(failed, mid)
			continue
		}
		p.retries++
		p.nextDue = now.Add(m.cfg.Timeout)
		m.log.Debug("Retrying send", "id", mid, "attempt", p.retries)
		resend = append(resend, p.resender)
	}
	m.mu.Unlock()

	for _, r := range resend {
		r.Resend()
	}
	for _, mid := range failed {
		m.log.Warn("Gave up waiting for ACK", "id", mid, "retries", m.cfg.MaxRetries)
		if m.cfg.OnFailure != nil {
			m.cfg.OnFailure(mid)
		}
	}
}
