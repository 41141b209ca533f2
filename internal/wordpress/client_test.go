package wordpress

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"wp_schema_sync/internal/model"
)

func TestAPIRoot(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://site.com", "https://site.com/wp-json/wp/v2"},
		{"https://site.com/", "https://site.com/wp-json/wp/v2"},
		{" https://site.com/wp-json ", "https://site.com/wp-json/wp/v2"},
		{"https://site.com/wp-json/wp/v2/", "https://site.com/wp-json/wp/v2"},
	}
	for _, test := range tests {
		if got := APIRoot(test.in); got != test.want {
			t.Errorf("APIRoot(%q) = %q, expected %q", test.in, got, test.want)
		}
	}
}

func TestFindBySlugSendsQueryAndBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wp-json/wp/v2/pages" {
			t.Errorf("Expected pages path, got %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("slug"); got != "about" {
			t.Errorf("Expected slug about, got %s", got)
		}
		if got := r.URL.Query().Get("per_page"); got != "1" {
			t.Errorf("Expected per_page 1, got %s", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tkn" {
			t.Errorf("Expected bearer auth, got %q", got)
		}
		w.Write([]byte(`[{"id":42,"slug":"about"}]`))
	}))
	defer srv.Close()

	c := NewClient(0)
	refs, err := c.FindBySlug(context.Background(), model.Account{BaseURL: srv.URL, Token: "tkn"}, "pages", "about")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(refs) != 1 || refs[0].ID != 42 {
		t.Errorf("Expected one ref with id 42, got %+v", refs)
	}
	if c.GetAPICallCount() != 1 {
		t.Errorf("Expected 1 API call, got %d", c.GetAPICallCount())
	}
}

func TestBasicAuthStripsSpacesFromAppPassword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "editor" || pass != "abcdefgh" {
			t.Errorf("Expected basic auth editor/abcdefgh, got %s/%s (ok=%v)", user, pass, ok)
		}
		w.Write([]byte(`{"page_on_front":"7","show_on_front":"page"}`))
	}))
	defer srv.Close()

	c := NewClient(0)
	settings, err := c.GetSettings(context.Background(), model.Account{BaseURL: srv.URL, Username: "editor", AppPassword: "abcd efgh"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if settings.PageOnFront != 7 {
		t.Errorf("Expected page_on_front 7, got %d", settings.PageOnFront)
	}
}

func TestPatchReturnsParsedAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("Expected PATCH, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected JSON content type, got %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("Expected JSON body, got %s", body)
		}
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"code":"rest_cannot_edit","message":"Sorry, you are not allowed to edit this post.","data":{"status":403}}`))
	}))
	defer srv.Close()

	c := NewClient(0)
	err := c.Patch(context.Background(), model.Account{BaseURL: srv.URL}, "posts", 5, map[string]any{"meta": map[string]any{}})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	want := "HTTP 403 rest_cannot_edit: Sorry, you are not allowed to edit this post."
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
	if !IsStatus(err, http.StatusForbidden) {
		t.Error("Expected IsStatus to match 403")
	}
}

func TestAPIErrorFallsBackToRawBody(t *testing.T) {
	err := newAPIError(http.StatusBadGateway, []byte("<html>bad gateway</html>\n"))
	if got := err.Error(); got != "HTTP 502: <html>bad gateway</html>" {
		t.Errorf("Expected raw body in error, got %q", got)
	}
	if got := newAPIError(http.StatusInternalServerError, nil).Error(); got != "HTTP 500" {
		t.Errorf("Expected bare status, got %q", got)
	}
}

func TestEntityMetaDecoding(t *testing.T) {
	var e Entity
	raw := `{"id":3,"name":"News","description":"Latest","parent":1,
		"meta":{"category_schema":"<script>x</script>","_inpost_head_script":{"synth_header_script":"<script>y</script>"}}}`
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got := e.Meta.String("category_schema"); got != "<script>x</script>" {
		t.Errorf("Expected category schema, got %q", got)
	}
	if got := e.Meta.Object("_inpost_head_script").String("synth_header_script"); got != "<script>y</script>" {
		t.Errorf("Expected nested header script, got %q", got)
	}
	if got := e.Meta.Object("category_schema"); got != nil {
		t.Errorf("Expected nil for non-object meta, got %v", got)
	}

	var empty Entity
	if err := json.Unmarshal([]byte(`{"id":1,"meta":[]}`), &empty); err != nil {
		t.Fatalf("Expected empty array meta to decode, got %v", err)
	}
	if empty.Meta.String("category_schema") != "" {
		t.Error("Expected empty meta to yield empty string")
	}
}
