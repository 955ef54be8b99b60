// Copyright 2025 Antfly, Inc.
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

package backends

import (
	"errors"
	"fmt"
	"sync"
)

// ErrManagerClosed is returned by a SessionManager after Close.
var ErrManagerClosed = errors.New("session manager is closed")

// SessionManager owns the inference runtimes of a process. Create one at
// startup, hand it to every model loader, and close it on shutdown.
//
// Usage:
//
//	manager := backends.NewSessionManager()
//	defer manager.Close()
//
//	manager.SetPriority([]BackendSpec{
//	    {Backend: BackendONNX, Device: DeviceCUDA},
//	    {Backend: BackendGo},
//	})
//
//	session, backend, err := manager.CreateSession(modelPath, nil)
type SessionManager struct {
	priority []BackendSpec
	sessions []Session
	mu       sync.RWMutex
	closed   bool
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{}
}

// SetPriority configures the backend priority order with device preferences.
func (sm *SessionManager) SetPriority(priority []BackendSpec) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.priority = append([]BackendSpec(nil), priority...)
}

// Priority returns the configured priority or the global default.
func (sm *SessionManager) Priority() []BackendSpec {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if len(sm.priority) > 0 {
		return append([]BackendSpec(nil), sm.priority...)
	}
	global := GetPriority()
	result := make([]BackendSpec, len(global))
	for i, bt := range global {
		result[i] = BackendSpec{Backend: bt, Device: DeviceAuto}
	}
	return result
}

// GetSessionFactory returns the SessionFactory of a backend.
func (sm *SessionManager) GetSessionFactory(backend BackendType) (SessionFactory, error) {
	sm.mu.RLock()
	closed := sm.closed
	sm.mu.RUnlock()
	if closed {
		return nil, ErrManagerClosed
	}

	b, ok := GetBackend(backend)
	if !ok {
		return nil, fmt.Errorf("backend %q not registered", backend)
	}
	if !b.Available() {
		return nil, fmt.Errorf("backend %q not available", backend)
	}
	return b.SessionFactory(), nil
}

// GetSessionFactoryForModel returns a SessionFactory for loading a model,
// respecting backend restrictions. Tries backends in priority order and
// returns the device preference of the matching spec.
func (sm *SessionManager) GetSessionFactoryForModel(modelBackends []string) (SessionFactory, BackendSpec, error) {
	allowed := make(map[BackendType]bool)
	for _, b := range modelBackends {
		allowed[BackendType(b)] = true
	}

	var lastErr error
	for _, spec := range sm.Priority() {
		if len(modelBackends) > 0 && !allowed[spec.Backend] {
			continue
		}
		factory, err := sm.GetSessionFactory(spec.Backend)
		if err == nil {
			return factory, spec, nil
		}
		lastErr = err
	}

	if lastErr != nil {
		if len(modelBackends) > 0 {
			return nil, BackendSpec{}, fmt.Errorf("no session factory for backends %v: %w", modelBackends, lastErr)
		}
		return nil, BackendSpec{}, fmt.Errorf("no session factory available: %w", lastErr)
	}
	if len(modelBackends) > 0 {
		return nil, BackendSpec{}, fmt.Errorf("no session factory for backends %v", modelBackends)
	}
	return nil, BackendSpec{}, fmt.Errorf("no session factory available")
}

// CreateSession opens a model on the best allowed backend. The session is
// closed together with the manager unless the caller closes it first.
func (sm *SessionManager) CreateSession(modelPath string, modelBackends []string, opts ...SessionOption) (Session, BackendType, error) {
	factory, spec, err := sm.GetSessionFactoryForModel(modelBackends)
	if err != nil {
		return nil, "", err
	}

	if spec.Device != DeviceAuto && spec.Device != "" {
		opts = append([]SessionOption{WithSessionGPUMode(spec.Device.ToGPUMode())}, opts...)
	}
	session, err := factory.CreateSession(modelPath, opts...)
	if err != nil {
		return nil, "", fmt.Errorf("creating session with %s backend: %w", spec.Backend, err)
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.closed {
		_ = session.Close()
		return nil, "", ErrManagerClosed
	}
	sm.sessions = append(sm.sessions, session)
	return session, spec.Backend, nil
}

// Close releases every session created through the manager.
// After Close, the SessionManager cannot be reused.
func (sm *SessionManager) Close() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.closed {
		return nil
	}
	sm.closed = true

	var errs []error
	for _, s := range sm.sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	sm.sessions = nil
	return errors.Join(errs...)
}
