package elab

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

const testKey = "valid-key"

// fakeElab is an in-memory stand-in for the parts of the eLabFTW v2 API
// the client talks to.
type fakeElab struct {
	mu sync.Mutex

	nextID      int64
	itemTypes   []Resource
	templates   []Resource
	items       map[int64]Resource
	experiments map[int64]*fakeExperiment
	links       map[int64][]int64
	posts       map[string]int

	// idMode selects how created ids are reported: "body", "location" or
	// "none" (title search only).
	idMode         string
	rejectDirect   bool
	wrapLists      string
	listBodies     bool
	pdf            []byte
	lastPDFQuery   string
	lastPDFAccept  string
	lastStatusSent any
}

type fakeExperiment struct {
	Resource
	Status string
}

func newFakeElab() *fakeElab {
	return &fakeElab{
		nextID:      100,
		items:       make(map[int64]Resource),
		experiments: make(map[int64]*fakeExperiment),
		links:       make(map[int64][]int64),
		posts:       make(map[string]int),
		idMode:      "body",
		listBodies:  true,
		pdf:         []byte("%PDF-1.7\nfake"),
	}
}

func (f *fakeElab) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v2/items_types", f.listHandler(func() []Resource { return f.itemTypes }))
	mux.HandleFunc("POST /api/v2/items_types", f.createHandler("items_types", func(r Resource) { f.itemTypes = append(f.itemTypes, r) }))
	mux.HandleFunc("GET /api/v2/experiments_templates", f.listHandler(func() []Resource { return f.templates }))
	mux.HandleFunc("POST /api/v2/experiments_templates", f.createHandler("experiments_templates", func(r Resource) { f.templates = append(f.templates, r) }))
	mux.HandleFunc("GET /api/v2/experiments_templates/{id}", f.handleGetTemplate)
	mux.HandleFunc("GET /api/v2/items", f.listHandler(func() []Resource { return f.itemList() }))
	mux.HandleFunc("POST /api/v2/items", f.createHandler("items", func(r Resource) { f.items[int64(r.ID)] = r }))
	mux.HandleFunc("GET /api/v2/items/{id}", f.handleGetItem)
	mux.HandleFunc("GET /api/v2/experiments", f.listHandler(func() []Resource { return f.experimentList() }))
	mux.HandleFunc("POST /api/v2/experiments", f.createHandler("experiments", func(r Resource) {
		f.experiments[int64(r.ID)] = &fakeExperiment{Resource: r, Status: "ongoing"}
	}))
	mux.HandleFunc("GET /api/v2/experiments/{id}", f.handleGetExperiment)
	mux.HandleFunc("PATCH /api/v2/experiments/{id}", f.handlePatchExperiment)
	mux.HandleFunc("POST /api/v2/experiments/{id}/items_links/{item}", f.handleDirectLink)
	mux.HandleFunc("POST /api/v2/experiments/{id}/items_links", f.handleBodyLink)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != testKey {
			http.Error(w, `{"code":401,"message":"Unauthorized"}`, http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeElab) client(t *testing.T, opts ...Option) *Client {
	t.Helper()
	return f.clientWithKey(t, testKey, opts...)
}

func (f *fakeElab) clientWithKey(t *testing.T, key string, opts ...Option) *Client {
	t.Helper()
	srv := f.server(t)
	c, err := New(Config{
		BaseURL:            srv.URL + "/api/v2/",
		APIKey:             key,
		VerifyTLS:          true,
		Timeout:            5 * time.Second,
		ItemTypeTitle:      "Patient",
		TemplateTitle:      "Clinical Analysis",
		FallbackTemplateID: 1,
	}, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func (f *fakeElab) itemList() []Resource {
	out := make([]Resource, 0, len(f.items))
	for _, r := range f.items {
		out = append(out, r)
	}
	return out
}

func (f *fakeElab) experimentList() []Resource {
	out := make([]Resource, 0, len(f.experiments))
	for _, e := range f.experiments {
		out = append(out, e.Resource)
	}
	return out
}

func (f *fakeElab) listHandler(source func() []Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		list := append([]Resource(nil), source()...)
		wrap := f.wrapLists
		withBodies := f.listBodies
		f.mu.Unlock()

		if !withBodies {
			for i := range list {
				list[i].Body = ""
			}
		}
		if wrap != "" {
			writeTestJSON(w, http.StatusOK, map[string]any{wrap: list, "total": len(list)})
			return
		}
		writeTestJSON(w, http.StatusOK, list)
	}
}

func (f *fakeElab) createHandler(collection string, store func(Resource)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.nextID++
		id := f.nextID
		title, _ := payload["title"].(string)
		body, _ := payload["body"].(string)
		store(Resource{ID: ID(id), Title: title, Body: body})
		f.posts[collection]++
		mode := f.idMode
		f.mu.Unlock()

		switch mode {
		case "location":
			w.Header().Set("Location", fmt.Sprintf("/api/v2/%s/%d", collection, id))
			w.WriteHeader(http.StatusCreated)
		case "none":
			w.WriteHeader(http.StatusCreated)
		default:
			writeTestJSON(w, http.StatusCreated, map[string]any{"id": id})
		}
	}
}

func (f *fakeElab) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.templates {
		if int64(t.ID) == id {
			writeTestJSON(w, http.StatusOK, t)
			return
		}
	}
	http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
}

func (f *fakeElab) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	f.mu.Lock()
	item, ok := f.items[id]
	f.mu.Unlock()
	if !ok {
		http.Error(w, `{"message":"Nothing to show with this id"}`, http.StatusNotFound)
		return
	}
	writeTestJSON(w, http.StatusOK, item)
}

func (f *fakeElab) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	f.mu.Lock()
	exp, ok := f.experiments[id]
	var snapshot fakeExperiment
	if ok {
		snapshot = *exp
	}
	pdf := f.pdf
	if r.URL.Query().Get("format") == "pdf" {
		f.lastPDFQuery = r.URL.RawQuery
		f.lastPDFAccept = r.Header.Get("Accept")
	}
	f.mu.Unlock()

	if !ok {
		http.Error(w, `{"message":"Nothing to show with this id"}`, http.StatusNotFound)
		return
	}
	if r.URL.Query().Get("format") == "pdf" {
		w.Header().Set("Content-Type", "application/pdf")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(pdf)
		return
	}
	writeTestJSON(w, http.StatusOK, map[string]any{
		"id":           snapshot.ID,
		"title":        snapshot.Title,
		"body":         snapshot.Body,
		"status_title": snapshot.Status,
	})
}

func (f *fakeElab) handlePatchExperiment(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	exp, ok := f.experiments[id]
	if !ok {
		http.Error(w, `{"message":"Nothing to show with this id"}`, http.StatusNotFound)
		return
	}
	if body, ok := payload["body"].(string); ok {
		exp.Body = body
	}
	if status, ok := payload["status"]; ok {
		f.lastStatusSent = status
		exp.Status = fmt.Sprint(status)
	}
	writeTestJSON(w, http.StatusOK, map[string]any{"id": id})
}

func (f *fakeElab) handleDirectLink(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	reject := f.rejectDirect
	f.mu.Unlock()
	if reject {
		http.Error(w, `{"message":"Incorrect parameters"}`, http.StatusBadRequest)
		return
	}
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	item, _ := strconv.ParseInt(r.PathValue("item"), 10, 64)
	f.link(id, item)
	w.WriteHeader(http.StatusCreated)
}

func (f *fakeElab) handleBodyLink(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	var payload struct {
		ID ID `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.ID == 0 {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	f.link(id, int64(payload.ID))
	w.WriteHeader(http.StatusCreated)
}

func (f *fakeElab) link(experimentID, itemID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links[experimentID] = append(f.links[experimentID], itemID)
}

func (f *fakeElab) postCount(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.posts[collection]
}

func (f *fakeElab) seedTemplate(id int64, title, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templates = append(f.templates, Resource{ID: ID(id), Title: title, Body: body})
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
