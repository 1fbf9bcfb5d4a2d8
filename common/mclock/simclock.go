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

package mclock

import (
	"sync"
	"time"
)

// Simulated implements a virtual Clock for reproducible time-sensitive tests.
// It simulates a scheduler on a virtual timescale where actual processing
// takes zero time.
//
// The virtual clock doesn't advance on its own, call Run to advance it and
// execute timers. To test timeout behaviour involving goroutines, first
// perform the action that is supposed to time out, ensure the timer you want
// to test is created, then run the clock until after the timeout and observe
// the effect through a channel or semaphore.
type Simulated struct {
	now       AbsTime
	epoch     int64
	scheduled []*simTimer
	mu        sync.RWMutex
	cond      *sync.Cond
	lastID    uint64
}

// simTimer implements Timer on the virtual clock.
type simTimer struct {
	do func()
	at AbsTime
	id uint64
	s  *Simulated
}

func (s *Simulated) init() {
	if s.cond == nil {
		s.cond = sync.NewCond(&s.mu)
	}
}

// Run moves the clock by the given duration, executing all timers scheduled
// before the end of that duration.
func (s *Simulated) Run(d time.Duration) {
	s.mu.Lock()
	s.init()

	end := s.now.Add(d)
	var do []func()
	for len(s.scheduled) > 0 && s.scheduled[0].at <= end {
		ev := s.scheduled[0]
		s.scheduled = s.scheduled[1:]
		s.now = ev.at
		do = append(do, ev.do)
	}
	s.now = end
	s.mu.Unlock()

	for _, fn := range do {
		fn()
	}
}

// ActiveTimers returns the number of timers that haven't fired.
func (s *Simulated) ActiveTimers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scheduled)
}

// WaitForTimers waits until the clock has at least n scheduled timers.
func (s *Simulated) WaitForTimers(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	for len(s.scheduled) < n {
		s.cond.Wait()
	}
}

// Now returns the current virtual time.
func (s *Simulated) Now() AbsTime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now
}

// Unix returns the virtual wall-clock time in seconds, offset by SetUnix.
func (s *Simulated) Unix() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch + int64(time.Duration(s.now)/time.Second)
}

// SetUnix pins the virtual wall-clock epoch, so Unix() returns epoch plus the
// elapsed virtual time.
func (s *Simulated) SetUnix(epoch int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch = epoch
}

// Sleep blocks until the clock has advanced by d.
func (s *Simulated) Sleep(d time.Duration) {
	<-s.After(d)
}

// After returns a channel which receives the current time after the clock
// has advanced by d.
func (s *Simulated) After(d time.Duration) <-chan AbsTime {
	after := make(chan AbsTime, 1)
	s.AfterFunc(d, func() {
		after <- s.now
	})
	return after
}

// AfterFunc runs fn after the clock has advanced by d. Unlike with the system
// clock, fn runs on the goroutine that calls Run.
func (s *Simulated) AfterFunc(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()

	at := s.now.Add(d)
	s.lastID++
	ev := &simTimer{do: fn, at: at, id: s.lastID, s: s}
	l, h := 0, len(s.scheduled)
	ll := h
	for l != h {
		m := (l + h) / 2
		if (at < s.scheduled[m].at) || ((at == s.scheduled[m].at) && (ev.id < s.scheduled[m].id)) {
			h = m
		} else {
			l = m + 1
		}
	}
	s.scheduled = append(s.scheduled, nil)
	copy(s.scheduled[l+1:], s.scheduled[l:ll])
	s.scheduled[l] = ev
	s.cond.Broadcast()
	return ev
}

func (ev *simTimer) Stop() bool {
	s := ev.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < len(s.scheduled); i++ {
		if s.scheduled[i] == ev {
			s.scheduled = append(s.scheduled[:i], s.scheduled[i+1:]...)
			s.cond.Broadcast()
			return true
		}
	}
	return false
}
