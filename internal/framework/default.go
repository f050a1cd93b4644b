package framework

import (
	"context"
	"sync"

	"github.com/wonny/sigapi/internal/resource"
)

// 프로세스 기본 세션 (CLI 진입점 전용)
var (
	defaultMu      sync.Mutex
	defaultSession *Session
)

// Init creates the process default session. Calling it again returns the existing session.
func Init(ctx context.Context, client *resource.Client, opts ...Option) (*Session, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultSession != nil {
		return defaultSession, nil
	}

	s, err := NewSession(ctx, client, opts...)
	if err != nil {
		return nil, err
	}
	defaultSession = s
	return s, nil
}

// Current returns the process default session
func Current() (*Session, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultSession == nil {
		return nil, ErrNotInitialized
	}
	return defaultSession, nil
}

// Teardown drops the process default session
func Teardown() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultSession = nil
}
