package sync

import (
	"context"
	gosync "sync"
)

type workerHandle struct {
	worker *Worker
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns one worker per account. Reload reconciles the registry with
// the account table; account create/delete flows call it after committing.
type Manager struct {
	deps Deps

	mu      gosync.Mutex
	ctx     context.Context
	workers map[string]*workerHandle
}

func NewManager(deps Deps) *Manager {
	return &Manager{
		deps:    deps,
		workers: make(map[string]*workerHandle),
	}
}

// Start binds the manager to its lifetime context and spins up a worker for
// every known account.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()
	return m.Reload()
}

// Reload starts workers for new accounts and stops workers whose account is
// gone. Existing workers are left alone; they pick up account edits through
// the bus.
func (m *Manager) Reload() error {
	accounts, err := m.deps.Accounts.FindAll()
	if err != nil {
		return err
	}

	current := make(map[string]bool, len(accounts))
	for _, account := range accounts {
		current[account.ID] = true
		m.Ensure(account.ID)
	}

	m.mu.Lock()
	var stale []*workerHandle
	for id, handle := range m.workers {
		if !current[id] {
			stale = append(stale, handle)
			delete(m.workers, id)
		}
	}
	m.mu.Unlock()

	for _, handle := range stale {
		handle.cancel()
		<-handle.done
	}
	return nil
}

// Ensure starts a worker for the account if none is running.
func (m *Manager) Ensure(accountID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil || m.ctx.Err() != nil {
		return
	}
	if _, ok := m.workers[accountID]; ok {
		return
	}

	ctx, cancel := context.WithCancel(m.ctx)
	handle := &workerHandle{
		worker: NewWorker(accountID, m.deps),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.workers[accountID] = handle

	go func() {
		defer close(handle.done)
		handle.worker.Run(ctx)
	}()
}

// Remove stops and forgets the account's worker, waiting for it to exit.
func (m *Manager) Remove(accountID string) {
	m.mu.Lock()
	handle, ok := m.workers[accountID]
	if ok {
		delete(m.workers, accountID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	handle.cancel()
	<-handle.done
}

// SyncNow triggers an immediate cycle for the account. Reports whether a
// worker was running.
func (m *Manager) SyncNow(accountID string) bool {
	m.mu.Lock()
	handle, ok := m.workers[accountID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	handle.worker.SyncNow()
	return true
}

// Stop shuts every worker down and waits for them.
func (m *Manager) Stop() {
	m.mu.Lock()
	handles := make([]*workerHandle, 0, len(m.workers))
	for id, handle := range m.workers {
		handles = append(handles, handle)
		delete(m.workers, id)
	}
	m.mu.Unlock()

	for _, handle := range handles {
		handle.cancel()
	}
	for _, handle := range handles {
		<-handle.done
	}
}
