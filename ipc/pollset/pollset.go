//
// Copyright 2024 The ViperOS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package pollset implements the level-triggered readiness multiplexer
// described in spec.md §4.4: a set of watched sources (channel endpoints,
// timers, the console-input pseudo-handle), each associated with a wanted
// event mask, woken via a condition variable the way eventService.go
// drives its request/response handoff with channel signalling in the
// teacher repo — generalized here from a single in-flight event to an
// arbitrary number of concurrently watched sources.
package pollset

import (
	"sync"
	"time"

	"github.com/splanck/viperos/domain"
)

type watch struct {
	handle domain.Handle
	src    domain.Source
	mask   domain.EventMask
}

// Set is a poll set. The zero value is not usable; construct with New.
type Set struct {
	mu   sync.Mutex
	cond *sync.Cond

	watches []watch
	gen     uint64 // bumped on every Wake/Add/Remove to break a Wait out of its sleep
}

var _ domain.PollSet = (*Set)(nil)

// New returns an empty poll set.
func New() *Set {
	s := &Set{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *Set) Kind() domain.Kind { return domain.KindPoll }

// Add registers src under h, watching for mask. Re-adding the same handle
// replaces its prior registration.
func (s *Set) Add(h domain.Handle, src domain.Source, mask domain.EventMask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.watches {
		if s.watches[i].handle == h {
			s.watches[i].src = src
			s.watches[i].mask = mask
			s.gen++
			s.cond.Broadcast()
			return nil
		}
	}
	s.watches = append(s.watches, watch{handle: h, src: src, mask: mask})
	s.gen++
	s.cond.Broadcast()
	return nil
}

// Remove drops h's registration, if any.
func (s *Set) Remove(h domain.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.watches {
		if s.watches[i].handle == h {
			s.watches = append(s.watches[:i], s.watches[i+1:]...)
			s.gen++
			s.cond.Broadcast()
			return nil
		}
	}
	return domain.InvalidHandle
}

// Wake forces any blocked Wait to re-check readiness immediately.
func (s *Set) Wake() {
	s.mu.Lock()
	s.gen++
	s.cond.Broadcast()
	s.mu.Unlock()
}

// scan fills out with up to len(out) currently-ready watches. Caller must
// hold s.mu.
func (s *Set) scan(out []domain.PollEvent) int {
	n := 0
	for i := range s.watches {
		if n >= len(out) {
			break
		}
		w := &s.watches[i]
		got := w.src.Ready(w.mask)
		if got != 0 {
			out[n] = domain.PollEvent{Handle: w.handle, Triggered: got}
			n++
		}
	}
	return n
}

// Wait implements spec.md §4.4's timeout convention: timeoutMs < 0 blocks
// until at least one source is ready (or Wake is called with something
// ready), == 0 is a non-blocking poll, and > 0 bounds the wait.
func (s *Set) Wait(out []domain.PollEvent, timeoutMs int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := s.scan(out); n > 0 {
		return n, nil
	}
	if timeoutMs == 0 {
		return 0, nil
	}

	if timeoutMs < 0 {
		for {
			startGen := s.gen
			s.cond.Wait()
			if n := s.scan(out); n > 0 {
				return n, nil
			}
			if s.gen == startGen {
				// Spurious wake with nothing ready and no state change;
				// keep waiting.
				continue
			}
		}
	}

	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	timer := time.AfterFunc(time.Duration(timeoutMs)*time.Millisecond, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer timer.Stop()

	for {
		s.cond.Wait()
		if n := s.scan(out); n > 0 {
			return n, nil
		}
		if !time.Now().Before(deadline) {
			return 0, nil
		}
	}
}
