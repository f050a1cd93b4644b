// Package fakeapi is an in-memory framework API for tests.
//
// Objects move from QUEUED to SUCCEEDED (or FAILED) after a configurable
// number of polls. Every request is recorded for assertions.
package fakeapi

import (
	"fmt"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// Request is one recorded call
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   map[string]interface{}
}

// Object is one server-side object
type Object struct {
	ID        string
	SessionID string
	Path      string                 // creation endpoint, e.g. strategies/basket
	Params    map[string]interface{} // creation body (camelCase)

	// Fields are served once the object succeeds; EarlyFields while it is still running
	Fields      map[string]interface{}
	EarlyFields map[string]interface{}

	// History is the $timestamp/$history payload of performance/history
	History map[string]interface{}
	// Data is the frame payload of data/history
	Data map[string]interface{}

	PendingPolls int    // RUNNING responses before the terminal one
	FailWith     string // non-empty ⇒ terminal status FAILED with this error
	Polls        int
}

// Server is a fake framework API
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	healthy  bool
	seq      int
	sessions map[string]map[string]interface{}
	objects  map[string]*Object
	requests []Request

	pendingPolls int
	pageSize     int
	onCreate     []func(*Object)
	onPoll       []func(objectID string)
}

// New starts a fake API. The server is closed when the test ends.
func New(t testing.TB) *Server {
	s := &Server{
		healthy:  true,
		sessions: make(map[string]map[string]interface{}),
		objects:  make(map[string]*Object),
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

// SetHealthy toggles the /status report
func (s *Server) SetHealthy(healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = healthy
}

// SetPendingPolls sets how many RUNNING responses new objects serve before finishing
func (s *Server) SetPendingPolls(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingPolls = n
}

// SetHistoryPageSize forces performance/history paging (0 ⇒ single page)
func (s *Server) SetHistoryPageSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageSize = n
}

// OnCreate registers a hook run (under the server lock) for every created object
func (s *Server) OnCreate(fn func(*Object)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCreate = append(s.onCreate, fn)
}

// OnPoll registers a hook run before each object status request is served
func (s *Server) OnPoll(fn func(objectID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPoll = append(s.onPoll, fn)
}

// Object returns a created object by id
func (s *Server) Object(id string) (*Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[id]
	return o, ok
}

// Session returns the settings body a session was created with
func (s *Server) Session(id string) (map[string]interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings, ok := s.sessions[id]
	return settings, ok
}

// Requests returns recorded requests matching method and path prefix ("" matches all)
func (s *Server) Requests(method, pathPrefix string) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Request
	for _, r := range s.requests {
		if method != "" && r.Method != method {
			continue
		}
		if !strings.HasPrefix(r.Path, pathPrefix) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Creates returns the POST bodies sent to a creation endpoint (e.g. "strategies/basket")
func (s *Server) Creates(path string) []map[string]interface{} {
	var out []map[string]interface{}
	for _, r := range s.Requests("POST", "/"+path) {
		if r.Path == "/"+path {
			out = append(out, r.Body)
		}
	}
	return out
}

func (s *Server) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}
