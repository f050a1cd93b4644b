package fakeapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

// router wires the fake endpoints
// ⭐ SSOT: 가짜 API 라우팅은 이 함수에서만
func (s *Server) router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	r.HandleFunc("/sessions/{session}/objects/{object}", s.handleGetObject).Methods("GET")
	r.HandleFunc("/performance/history", s.handleHistory).Methods("GET")
	r.HandleFunc("/data/history", s.handleData).Methods("GET")
	r.HandleFunc("/{path:.+}", s.handleCreateObject).Methods("POST")

	r.Use(s.recordingMiddleware)

	return r
}

// recordingMiddleware records every request with its decoded JSON body
func (s *Server) recordingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		if r.Body != nil {
			data, _ := io.ReadAll(r.Body)
			r.Body.Close()
			if len(bytes.TrimSpace(data)) > 0 {
				_ = json.Unmarshal(data, &body)
			}
			r.Body = io.NopCloser(bytes.NewReader(data))
		}

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Body:   body,
		})
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	healthy := s.healthy
	s.mu.Unlock()

	if !healthy {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "DOWN"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body == nil {
		body = map[string]interface{}{}
	}

	s.mu.Lock()
	id := s.nextID("session")
	s.sessions[id] = body
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId": id,
		"status":    "SUCCEEDED",
	})
}

func (s *Server) handleCreateObject(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]

	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sessionID, _ := body["sessionId"].(string)

	s.mu.Lock()
	if _, ok := s.sessions[sessionID]; !ok {
		s.mu.Unlock()
		respondError(w, http.StatusBadRequest, "unknown sessionId")
		return
	}

	obj := &Object{
		ID:           s.nextID("object"),
		SessionID:    sessionID,
		Path:         path,
		Params:       body,
		PendingPolls: s.pendingPolls,
	}
	fillDefaults(obj)
	for _, fn := range s.onCreate {
		fn(obj)
	}
	s.objects[obj.ID] = obj
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"objectId":  obj.ID,
		"sessionId": sessionID,
		"status":    "QUEUED",
	})
}

func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	s.mu.Lock()
	hooks := s.onPoll
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(vars["object"])
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[vars["object"]]
	if !ok || obj.SessionID != vars["session"] {
		respondError(w, http.StatusNotFound, "object not found")
		return
	}

	obj.Polls++
	view := map[string]interface{}{
		"objectId":  obj.ID,
		"sessionId": obj.SessionID,
	}

	switch {
	case obj.Polls <= obj.PendingPolls:
		view["status"] = "RUNNING"
		for k, v := range obj.EarlyFields {
			view[k] = v
		}
	case obj.FailWith != "":
		view["status"] = "FAILED"
		view["error"] = obj.FailWith
	default:
		view["status"] = "SUCCEEDED"
		for k, v := range obj.EarlyFields {
			view[k] = v
		}
		for k, v := range obj.Fields {
			view[k] = v
		}
	}

	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	s.mu.Lock()
	obj, ok := s.objects[q.Get("objectId")]
	pageSize := s.pageSize
	s.mu.Unlock()

	if !ok || obj.SessionID != q.Get("sessionId") {
		respondError(w, http.StatusNotFound, "object not found")
		return
	}

	if n, err := strconv.Atoi(q.Get("pageSize")); err == nil && n > 0 && (pageSize == 0 || n < pageSize) {
		pageSize = n
	}
	offset, _ := strconv.Atoi(q.Get("pageId"))

	page, next := paginate(obj.History, offset, pageSize)
	resp := map[string]interface{}{"history": page}
	if next > 0 {
		resp["nextPageId"] = strconv.Itoa(next)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	s.mu.Lock()
	obj, ok := s.objects[q.Get("objectId")]
	s.mu.Unlock()

	if !ok || obj.SessionID != q.Get("sessionId") {
		respondError(w, http.StatusNotFound, "object not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"history": obj.Data})
}

// paginate slices every array column of a frame; next is 0 on the last page
func paginate(frame map[string]interface{}, offset, size int) (map[string]interface{}, int) {
	total := 0
	for _, v := range frame {
		if arr, ok := v.([]interface{}); ok && len(arr) > total {
			total = len(arr)
		}
	}
	if offset > total {
		offset = total
	}
	if size <= 0 || size >= total-offset {
		size = total - offset
	}
	end := offset + size

	page := make(map[string]interface{}, len(frame))
	for k, v := range frame {
		arr, ok := v.([]interface{})
		if !ok {
			page[k] = v
			continue
		}
		lo, hi := offset, end
		if lo > len(arr) {
			lo = len(arr)
		}
		if hi > len(arr) {
			hi = len(arr)
		}
		page[k] = arr[lo:hi]
	}

	if end < total {
		return page, end
	}
	return page, 0
}

// fillDefaults derives name, type, reference data and history from the creation request
func fillDefaults(obj *Object) {
	identifier, _ := obj.Params["identifier"].(string)
	currency, _ := obj.Params["currency"].(string)
	if currency == "" {
		currency = "USD"
	}

	name := identifier
	if name == "" || obj.Path != "instruments" {
		name = strings.ToUpper(strings.ReplaceAll(obj.Path, "/", " ")) + " " + obj.ID
	}

	objType := "STRATEGY"
	if obj.Path == "instruments" {
		objType = typeForIdentifier(identifier)
	}

	obj.EarlyFields = map[string]interface{}{"name": name}
	obj.Fields = map[string]interface{}{
		"type": objType,
		"referenceData": map[string]interface{}{
			"currency":   currency,
			"identifier": identifier,
		},
	}

	switch {
	case obj.Path == "instruments/custom":
		if ts, ok := obj.Params["timeseries"].(map[string]interface{}); ok {
			obj.History = ts
		}
	case obj.Path == "analytics/portfolio":
		obj.History = portfolioFrame()
	case strings.HasPrefix(obj.Path, "instruments/otc"):
		obj.Data = metricsFrame()
		obj.History = defaultHistory()
	default:
		obj.History = defaultHistory()
	}
}

func typeForIdentifier(identifier string) string {
	id := strings.ToUpper(strings.TrimSpace(identifier))
	switch {
	case strings.HasSuffix(id, " CASH"):
		return "CASH"
	case strings.HasSuffix(id, " CURNCY"):
		return "FX_SPOT"
	case strings.HasSuffix(id, " EQUITY"):
		return "STOCK"
	case strings.HasSuffix(id, " GOVT"), strings.HasSuffix(id, " CORP"):
		return "BOND"
	case strings.HasSuffix(id, " COMDTY"):
		return "FUTURE"
	case strings.HasSuffix(id, " INDEX"):
		return "INDEX"
	default:
		return "UNSUPPORTED"
	}
}

func businessDates(n int) []interface{} {
	out := make([]interface{}, 0, n)
	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for len(out) < n {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			out = append(out, d.Format("2006-01-02T15:04:05"))
		}
		d = d.AddDate(0, 0, 1)
	}
	return out
}

func defaultHistory() map[string]interface{} {
	return map[string]interface{}{
		"$timestamp": businessDates(5),
		"$history":   []interface{}{100.0, 101.5, 99.75, nil, 103.0},
	}
}

func metricsFrame() map[string]interface{} {
	return map[string]interface{}{
		"$timestamp":        businessDates(3),
		"$history":          []interface{}{12.5, 13.1, 12.9},
		"delta":             []interface{}{0.51, 0.53, 0.52},
		"impliedVolatility": []interface{}{0.18, 0.19, nil},
	}
}

func portfolioFrame() map[string]interface{} {
	dates := businessDates(2)
	return map[string]interface{}{
		"$timestamp":     []interface{}{dates[0], dates[0], dates[1], dates[1]},
		"name":           []interface{}{"STRATEGY", "USD CASH", "STRATEGY", "USD CASH"},
		"level":          []interface{}{0.0, 1.0, 0.0, 1.0},
		"executionTime":  []interface{}{dates[0], nil, dates[1], nil},
		"weight":         []interface{}{1.0, 0.25, 1.0, 0.3},
		"exposureWeight": []interface{}{1.0, 0.0, 1.0, 0.0},
		"valuation":      []interface{}{1000.0, 250.0, 1010.0, 303.0},
		"quantity":       []interface{}{1.0, 250.0, 1.0, 303.0},
		"tradeQuantity":  []interface{}{0.0, 0.0, 0.0, 53.0},
		"value":          []interface{}{1000.0, 250.0, 1010.0, 303.0},
		"valueLocal":     []interface{}{1000.0, 250.0, 1010.0, 303.0},
		"type":           []interface{}{"STRATEGY", "CASH", "STRATEGY", "CASH"},
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
