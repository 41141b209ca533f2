package processing

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"wp_schema_sync/internal/model"
	"wp_schema_sync/internal/resolution"
	"wp_schema_sync/internal/wordpress"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// fakeWordPress serves the subset of wp/v2 the engine uses.
type fakeWordPress struct {
	t           *testing.T
	mu          sync.Mutex
	slugs       map[string]int    // "pages/about" -> 12
	entities    map[string]string // "pages/12" -> JSON body
	pageOnFront int
	patchStatus int
	patchBody   string
	onPatch     func(path string)
	requests    []recordedRequest
	server      *httptest.Server
}

func newFakeWordPress(t *testing.T) *fakeWordPress {
	f := &fakeWordPress{
		t:           t,
		slugs:       map[string]int{},
		entities:    map[string]string{},
		patchStatus: http.StatusOK,
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeWordPress) account() model.Account {
	return model.Account{Site: "site", BaseURL: f.server.URL, Token: "tkn"}
}

func (f *fakeWordPress) engine() (*wordpress.Client, *resolution.Resolver, *Patcher) {
	client := wordpress.NewClient(0)
	return client, resolution.NewResolver(client), NewPatcher(client)
}

func (f *fakeWordPress) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(body)})
	onPatch := f.onPatch
	f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/wp-json/wp/v2/")
	parts := strings.Split(path, "/")

	switch {
	case r.Method == http.MethodGet && path == "settings":
		json.NewEncoder(w).Encode(map[string]any{"page_on_front": f.pageOnFront})
	case r.Method == http.MethodGet && len(parts) == 1:
		id, ok := f.slugs[parts[0]+"/"+r.URL.Query().Get("slug")]
		if !ok {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte(`[{"id":` + strconv.Itoa(id) + `}]`))
	case r.Method == http.MethodGet && len(parts) == 2:
		entity, ok := f.entities[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"code":"rest_post_invalid_id","message":"Invalid post ID.","data":{"status":404}}`))
			return
		}
		w.Write([]byte(entity))
	case r.Method == http.MethodPatch && len(parts) == 2:
		if onPatch != nil {
			onPatch(path)
		}
		w.WriteHeader(f.patchStatus)
		if f.patchBody != "" {
			w.Write([]byte(f.patchBody))
			return
		}
		w.Write([]byte(`{}`))
	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.String())
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (f *fakeWordPress) patches() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedRequest
	for _, req := range f.requests {
		if req.Method == http.MethodPatch {
			out = append(out, req)
		}
	}
	return out
}

func (f *fakeWordPress) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func postEntityJSON(id int, script string) string {
	raw, _ := json.Marshal(map[string]any{
		"id": id,
		"meta": map[string]any{
			"_inpost_head_script": map[string]any{"synth_header_script": script},
			"_other":              "untouched",
		},
	})
	return string(raw)
}
