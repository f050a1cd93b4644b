package datasets

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/wonny/sigapi/pkg/config"
	"github.com/wonny/sigapi/pkg/logger"
)

// fakePlatform is an in-memory ingestion API
type fakePlatform struct {
	*httptest.Server

	mu       sync.Mutex
	datasets map[string]*Dataset
	files    map[string]map[string][]byte // dataset → file id → decoded part
	uploads  []map[string]interface{}

	failPosts   int // 503 responses before part uploads succeed
	failDeletes int // 502 responses before dataset deletes succeed
	postCalls   int
	deleteCalls int
	clears      int
}

func newFakePlatform(t *testing.T) *fakePlatform {
	f := &fakePlatform{
		datasets: make(map[string]*Dataset),
		files:    make(map[string]map[string][]byte),
	}

	r := mux.NewRouter()
	r.HandleFunc("/ingestion/datasets/", f.handleList).Methods("GET")
	r.HandleFunc("/ingestion/datasets/{id}", f.handleGet).Methods("GET")
	r.HandleFunc("/ingestion/datasets/{id}", f.handleCreate).Methods("PUT")
	r.HandleFunc("/ingestion/datasets/{id}", f.handleDelete).Methods("DELETE")
	r.HandleFunc("/ingestion/datasets/{id}/files", f.handleFiles).Methods("GET")
	r.HandleFunc("/ingestion/datasets/{id}/files", f.handleUpload).Methods("POST")
	r.HandleFunc("/ingestion/datasets/{id}/files", f.handleClear).Methods("DELETE")
	r.HandleFunc("/ingestion/datasets/{id}/files/{file}", f.handleDeleteFile).Methods("DELETE")
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Header.Get("Authorization") != "Bearer platform-token" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, req)
		})
	})

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Close)
	return f
}

func (f *fakePlatform) client(t *testing.T) *Client {
	t.Helper()
	cfg := &config.Config{
		Env: "test",
		Platform: config.PlatformConfig{
			BaseURL:     f.URL,
			Token:       "platform-token",
			Workers:     4,
			MaxPartSize: DefaultMaxPartSize,
		},
	}
	c, err := New(cfg, logger.Nop(), WithRetryDelay(time.Millisecond))
	require.NoError(t, err)
	return c
}

func (f *fakePlatform) addDataset(id string, columns []string, files ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	schema := make([]Column, len(columns))
	for i, c := range columns {
		schema[i] = Column{Name: c, Type: "string"}
	}
	f.datasets[id] = &Dataset{ID: id, Name: id, Schema: schema}
	f.files[id] = make(map[string][]byte)
	for _, name := range files {
		f.files[id][name] = []byte("x\n")
	}
}

func (f *fakePlatform) fileIDs(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ids []string
	for name := range f.files[id] {
		ids = append(ids, name)
	}
	sort.Strings(ids)
	return ids
}

func (f *fakePlatform) handleList(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Dataset, 0, len(f.datasets))
	for _, d := range f.datasets {
		out = append(out, Dataset{ID: d.ID, Name: d.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (f *fakePlatform) handleGet(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.datasets[mux.Vars(r)["id"]]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (f *fakePlatform) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name       string            `json:"name"`
		Schema     []Column          `json:"schema"`
		Identifier string            `json:"identifier"`
		Tags       map[string]string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	id := mux.Vars(r)["id"]
	f.mu.Lock()
	defer f.mu.Unlock()

	d := &Dataset{ID: id, Name: body.Name, Schema: body.Schema, Tags: body.Tags}
	f.datasets[id] = d
	f.files[id] = make(map[string][]byte)
	writeJSON(w, http.StatusCreated, d)
}

func (f *fakePlatform) handleDelete(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleteCalls++
	if f.deleteCalls <= f.failDeletes {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "bad gateway"})
		return
	}
	id := mux.Vars(r)["id"]
	if _, ok := f.datasets[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	delete(f.datasets, id)
	delete(f.files, id)
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakePlatform) handleFiles(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	f.mu.Lock()
	_, ok := f.datasets[id]
	f.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ids": f.fileIDs(id)})
}

func (f *fakePlatform) handleUpload(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.postCalls++
	if f.postCalls <= f.failPosts {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "unavailable"})
		return
	}

	id := mux.Vars(r)["id"]
	fileID, _ := body["file_id"].(string)
	encoded, _ := body["file"].(string)
	part, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	f.files[id][fileID] = part
	f.uploads = append(f.uploads, body)
	writeJSON(w, http.StatusCreated, map[string]string{"raw_file_key": id + "/" + fileID})
}

func (f *fakePlatform) handleClear(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.clears++
	f.files[mux.Vars(r)["id"]] = make(map[string][]byte)
	writeJSON(w, http.StatusOK, map[string]string{})
}

func (f *fakePlatform) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	f.mu.Lock()
	defer f.mu.Unlock()

	files := f.files[vars["id"]]
	if _, ok := files[vars["file"]]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	delete(files, vars["file"])
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
