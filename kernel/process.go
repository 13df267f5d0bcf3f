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

// Package kernel implements the task/process model, numbered-syscall
// dispatcher, and bootstrap delegation described in spec.md §3, §4.6, §4.7.
// The registry of live tasks follows state/containerDB.go's
// map[id]*container-guarded-by-RWMutex shape, generalized from container
// bookkeeping to task bookkeeping.
package kernel

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/splanck/viperos/captable"
	"github.com/splanck/viperos/domain"
	"github.com/splanck/viperos/ipc/channel"
)

// Process is this kernel's concrete Task: a capability table plus exit
// state, backed by a goroutine running the entry function passed to Spawn.
type Process struct {
	mu sync.Mutex

	id   domain.Handle
	uuid uuid.UUID
	caps *captable.Table

	state    domain.TaskState
	exitCode int32
	exitCh   chan struct{}

	bootstrapRecv domain.Endpoint // the endpoint installed at handle 0 in caps
}

var _ domain.Task = (*Process)(nil)

func newProcess(id domain.Handle) *Process {
	return &Process{
		id:     id,
		uuid:   uuid.New(),
		caps:   captable.New(),
		exitCh: make(chan struct{}),
	}
}

func (p *Process) Kind() domain.Kind     { return domain.KindTask }
func (p *Process) ID() domain.Handle     { return p.id }
func (p *Process) Caps() domain.CapTable { return p.caps }

// UUID returns the task's process-lifetime-unique identifier, used to
// correlate log lines across a task's goroutine and any services it
// talks to without reusing the small, recycled Handle namespace.
func (p *Process) UUID() uuid.UUID { return p.uuid }

func (p *Process) State() domain.TaskState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Process) ExitCode() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// Exit transitions the task to TaskExitedState, recording code once; later
// calls are no-ops (a task exits at most once).
func (p *Process) Exit(code int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != domain.TaskRunning {
		return
	}
	p.state = domain.TaskExitedState
	p.exitCode = code
	close(p.exitCh)
}

// Wait blocks until the task exits, then reaps it.
func (p *Process) Wait() int32 {
	<-p.exitCh
	p.mu.Lock()
	defer p.mu.Unlock()
	code := p.exitCode
	if p.state == domain.TaskExitedState {
		p.state = domain.TaskReaped
	}
	return code
}

// Service is the concrete TaskService: it owns the process table and
// spawns goroutine-backed tasks, each with a bootstrap receive endpoint
// installed at handle 0 per spec.md §4.7.
type Service struct {
	mu      sync.RWMutex
	nextID  uint32
	tasks   map[domain.Handle]*Process
	log     logrus.FieldLogger
}

var _ domain.TaskService = (*Service)(nil)

// NewService returns an empty task service.
func NewService(log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		tasks:  make(map[domain.Handle]*Process),
		nextID: 1,
		log:    log,
	}
}

// Spawn creates a new task, installs its bootstrap receive endpoint at
// handle 0, and runs entry in its own goroutine. No bootstrap message is
// queued and the paired send endpoint is not returned to the caller; use
// SpawnWithBootstrap to deliver initial capabilities.
func (s *Service) Spawn(entry func(t domain.Task)) (domain.Task, error) {
	return s.SpawnWithBootstrap(entry, nil)
}

// SpawnWithBootstrap is Spawn plus an optional bootstrap message delivered
// synchronously before entry observes the task as running. Passing a nil
// msg still installs the handle-0 bootstrap channel; the child simply
// finds nothing queued on it (spec.md §4.7's "legacy bring-up" tolerance).
func (s *Service) SpawnWithBootstrap(entry func(t domain.Task), msg *domain.Message) (domain.Task, error) {
	s.mu.Lock()
	id := domain.Handle(s.nextID)
	s.nextID++
	p := newProcess(id)
	s.tasks[id] = p
	s.mu.Unlock()

	bootSend, bootRecv := channel.New(domain.DefaultChannelDepth)
	if _, err := p.caps.Install(bootRecv, domain.KindChannel, domain.RightRead); err != nil {
		return nil, err
	}
	p.bootstrapRecv = bootRecv

	if msg != nil {
		if err := bootSend.Send(*msg); err != nil {
			return nil, err
		}
	}
	_ = bootSend.Close()

	s.log.WithFields(logrus.Fields{"task": id, "uuid": p.uuid}).Debug("task spawned")

	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.Exit(-1)
				s.log.WithFields(logrus.Fields{"task": id, "uuid": p.uuid}).Errorf("task panicked: %v", r)
			}
		}()
		entry(p)
		if p.State() == domain.TaskRunning {
			p.Exit(0)
		}
	}()

	return p, nil
}

// Wait blocks on the task identified by h and returns its exit code.
func (s *Service) Wait(h domain.Handle) (int32, error) {
	s.mu.RLock()
	p, ok := s.tasks[h]
	s.mu.RUnlock()
	if !ok {
		return 0, domain.TaskNotFound
	}
	return p.Wait(), nil
}

// Lookup returns the live Process for h, if any.
func (s *Service) Lookup(h domain.Handle) (domain.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.tasks[h]
	if !ok {
		return nil, false
	}
	return p, true
}
