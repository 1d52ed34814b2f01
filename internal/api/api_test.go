package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/fernet/fernet-go"

	"github.com/starford/retronotes/internal/export"
	"github.com/starford/retronotes/internal/noteservice"
	"github.com/starford/retronotes/internal/testutil"
)

// testEnv sets up a temp workbook, SQLite index, service, and router.
// A non-empty token switches on token auth.
func testEnv(t *testing.T, authToken string) (*noteservice.Service, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sseHandler http.Handler) (*noteservice.Service, http.Handler) {
	t.Helper()
	svc, _ := testutil.TestService(t, nil)
	return svc, NewRouter(svc, authEnabled, token, sseHandler)
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeNote(t *testing.T, w *httptest.ResponseRecorder) Note {
	t.Helper()
	var n Note
	if err := json.Unmarshal(w.Body.Bytes(), &n); err != nil {
		t.Fatalf("decode note: %v (body %s)", err, w.Body.String())
	}
	return n
}

func TestCreateAndGetNote(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/notes", map[string]string{"title": "Shopping", "content": "milk, eggs"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/api/notes/1" {
		t.Errorf("Location = %q", loc)
	}
	created := decodeNote(t, w)
	if created.ID != 1 {
		t.Errorf("id = %s, want 1", created.ID)
	}

	w = do(t, router, http.MethodGet, "/notes/1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	got := decodeNote(t, w)
	if got.Title != "Shopping" || got.Content != "milk, eggs" {
		t.Errorf("note = %+v", got)
	}
	if !strings.Contains(w.Body.String(), `"id":"1"`) {
		t.Errorf("id should be serialised as a string: %s", w.Body.String())
	}
}

func TestCreateWithExistingID_Overwrites(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/notes", map[string]string{"title": "a", "content": "1"})

	w := do(t, router, http.MethodPost, "/notes", map[string]any{"id": 1, "title": "a", "content": "2"})
	if w.Code != http.StatusOK {
		t.Fatalf("overwrite status = %d, body = %s", w.Code, w.Body.String())
	}
	if n := decodeNote(t, w); n.ID != 1 || n.Content != "2" {
		t.Errorf("note = %+v", n)
	}
}

func TestCreate_BlankTitleBecomesUntitled(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/notes", map[string]string{"title": "  ", "content": "x"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}
	if n := decodeNote(t, w); n.Title != noteservice.DefaultTitle {
		t.Errorf("title = %q", n.Title)
	}
}

func TestCreate_InvalidJSON(t *testing.T) {
	_, router := testEnv(t, "")
	req := httptest.NewRequest(http.MethodPost, "/notes", strings.NewReader("{nope"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreate_TooLongRejected(t *testing.T) {
	_, router := testEnv(t, "")
	long := strings.Repeat("a", 40000)

	w := do(t, router, http.MethodPost, "/notes", map[string]string{"title": "big", "content": long})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (body %s)", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "too long") {
		t.Errorf("body = %s", w.Body.String())
	}
	if w := do(t, router, http.MethodGet, "/notes/1", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after rejected create = %d, want 404", w.Code)
	}
}

func TestUpdateNote(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/notes", map[string]string{"title": "v1", "content": "one"})

	w := do(t, router, http.MethodPut, "/notes/1", map[string]string{"title": "v2", "content": "two"})
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d, body = %s", w.Code, w.Body.String())
	}
	if n := decodeNote(t, w); n.Title != "v2" || n.Content != "two" {
		t.Errorf("note = %+v", n)
	}
}

func TestUpdateNote_UnknownIDCreates(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPut, "/notes/40", map[string]string{"title": "ghost"})
	if w.Code != http.StatusCreated {
		t.Fatalf("update unknown = %d, want 201", w.Code)
	}
	if n := decodeNote(t, w); n.ID != 1 {
		t.Errorf("id = %s, want freshly allocated 1", n.ID)
	}
}

func TestDeleteNote(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/notes", map[string]string{"title": "bye"})

	if w := do(t, router, http.MethodDelete, "/notes/1", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/notes/1", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/notes/1", nil); w.Code != http.StatusNoContent {
		t.Errorf("second delete = %d, want 204", w.Code)
	}
}

func TestListNotes(t *testing.T) {
	_, router := testEnv(t, "")
	for _, title := range []string{"a", "b"} {
		do(t, router, http.MethodPost, "/notes", map[string]string{"title": title})
	}

	w := do(t, router, http.MethodGet, "/notes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var resp NoteListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 2 || len(resp.Notes) != 2 || resp.Notes[0].Title != "a" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestInvalidIDs(t *testing.T) {
	_, router := testEnv(t, "")
	for _, id := range []string{"abc", "0", "-3"} {
		if w := do(t, router, http.MethodGet, "/notes/"+id, nil); w.Code != http.StatusBadRequest {
			t.Errorf("GET /notes/%s = %d, want 400", id, w.Code)
		}
	}
	w := do(t, router, http.MethodPost, "/notes", map[string]any{"id": -1, "title": "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("create with bad id = %d, want 400", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/notes", map[string]string{"title": "find", "content": "uniquetoken here"})
	do(t, router, http.MethodPost, "/notes", map[string]string{"title": "other", "content": "nothing"})

	w := do(t, router, http.MethodGet, "/search?q=uniquetoken", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d, body = %s", w.Code, w.Body.String())
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].Title != "find" {
		t.Errorf("results = %+v", resp.Results)
	}

	w = do(t, router, http.MethodGet, "/search", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 2 {
		t.Errorf("empty query results = %d, want 2", len(resp.Results))
	}

	w = do(t, router, http.MethodGet, "/search?q=absent", nil)
	if !strings.Contains(w.Body.String(), `"results":[]`) {
		t.Errorf("no-hit body = %s", w.Body.String())
	}
}

func decryptPayload(t *testing.T, payload []byte, password string) string {
	t.Helper()
	saltLine, token, ok := bytes.Cut(payload, []byte("\n"))
	if !ok {
		t.Fatalf("payload = %q", payload)
	}
	salt, err := base64.StdEncoding.DecodeString(string(saltLine))
	if err != nil {
		t.Fatal(err)
	}
	key, err := export.DeriveKey(password, salt)
	if err != nil {
		t.Fatal(err)
	}
	return string(fernet.VerifyAndDecrypt(token, time.Hour, []*fernet.Key{key}))
}

func TestExportNote_JSON(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/notes", map[string]string{"title": "Shopping List", "content": "milk"})
	created := decodeNote(t, w)

	w = do(t, router, http.MethodPost, "/notes/1/export", map[string]string{"password": "hunter2"})
	if w.Code != http.StatusOK {
		t.Fatalf("export = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != "attachment; filename=note_Shopping_List.secure" {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if got := decryptPayload(t, w.Body.Bytes(), "hunter2"); got != export.Plaintext(created) {
		t.Errorf("decrypted = %q", got)
	}
}

func TestExportNote_Form(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/notes", map[string]string{"title": "t"})

	form := url.Values{"password": {"pw"}}
	req := httptest.NewRequest(http.MethodPost, "/notes/1/export", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("export = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decryptPayload(t, w.Body.Bytes(), "pw"); !strings.HasPrefix(got, "Title: t\n") {
		t.Errorf("decrypted = %q", got)
	}
}

func TestExportNote_Errors(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/notes", map[string]string{"title": "t"})

	if w := do(t, router, http.MethodPost, "/notes/1/export", map[string]string{"password": ""}); w.Code != http.StatusBadRequest {
		t.Errorf("empty password = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/notes/9/export", map[string]string{"password": "pw"}); w.Code != http.StatusNotFound {
		t.Errorf("missing note = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/notes/x/export", map[string]string{"password": "pw"}); w.Code != http.StatusBadRequest {
		t.Errorf("bad id = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	body, _ := json.Marshal(map[string]string{"title": "auth"})
	req := httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("authed create = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	if w := do(t, router, http.MethodGet, "/notes", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/notes", nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "secret", okHandler())
	if w := do(t, router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "tok", okHandler())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}

func TestSSEEvents_NotMountedWithoutHandler(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/events", nil); w.Code != http.StatusNotFound {
		t.Errorf("events without broker = %d, want 404", w.Code)
	}
}
