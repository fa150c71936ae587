package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"inkpost/internal/ratelimit"
	"inkpost/pkg/domain"
	"inkpost/pkg/store"
	"inkpost/services/blog/internal/app"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testServer struct {
	*httptest.Server
	t *testing.T
}

type serverOption func(*Config, *app.Config)

func withTrustSuppliedAuthor() serverOption {
	return func(_ *Config, a *app.Config) { a.TrustSuppliedAuthor = true }
}

func withoutSignIn() serverOption {
	return func(c *Config, _ *app.Config) { c.DevSignIn = false }
}

func withLimiter(l ratelimit.Limiter) serverOption {
	return func(c *Config, _ *app.Config) { c.WriteLimiter = l }
}

func withStore(wrap func(store.Store) store.Store) serverOption {
	return func(_ *Config, a *app.Config) { a.Store = wrap(a.Store) }
}

// staleEmailStore misses every email lookup, so only the unique index can
// catch a duplicate.
type staleEmailStore struct {
	store.Store
}

func (staleEmailStore) GetUserByEmail(context.Context, string) (domain.User, bool, error) {
	return domain.User{}, false, nil
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	dataStore, err := store.NewGormStore("sqlite:" + filepath.Join(t.TempDir(), "blog.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = dataStore.Close() })
	sessions, err := store.NewJWTSessionStore(testSecret, time.Hour, store.NewMemoryTokenRevoker(), store.JWTOptions{})
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	appCfg := app.Config{
		Store:    dataStore,
		Sessions: sessions,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	}
	srvCfg := Config{DevSignIn: true, Health: dataStore.Ping}
	for _, opt := range opts {
		opt(&srvCfg, &appCfg)
	}
	core, err := app.New(appCfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srvCfg.App = core
	srv, err := New(srvCfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, t: t}
}

func (ts *testServer) do(method, path, token string, body any) (*http.Response, []byte) {
	ts.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			ts.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		ts.t.Fatalf("new request: %v", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		ts.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		ts.t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func (ts *testServer) expect(method, path, token string, body any, status int, out any) {
	ts.t.Helper()
	resp, data := ts.do(method, path, token, body)
	if resp.StatusCode != status {
		ts.t.Fatalf("%s %s status = %d, want %d (body %s)", method, path, resp.StatusCode, status, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			ts.t.Fatalf("decode %s %s: %v (%s)", method, path, err, data)
		}
	}
}

func (ts *testServer) signIn(email string) (domain.User, string) {
	ts.t.Helper()
	var res signInResponse
	ts.expect(http.MethodPost, "/auth/session", "", map[string]string{"email": email}, http.StatusCreated, &res)
	return res.User, res.Token
}

func errorMessage(t *testing.T, data []byte) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, data)
	}
	return body["error"]
}

func TestPostOwnershipScenario(t *testing.T) {
	ts := newTestServer(t)
	a, tokenA := ts.signIn("a@x.com")
	b, tokenB := ts.signIn("b@x.com")

	var p1 domain.Post
	ts.expect(http.MethodPost, "/posts", tokenA, map[string]any{"title": "T", "authorId": a.ID}, http.StatusCreated, &p1)
	if p1.AuthorID != a.ID || p1.Author.Email != "a@x.com" {
		t.Fatalf("created = %+v", p1)
	}

	resp, data := ts.do(http.MethodPut, "/posts/"+p1.ID, tokenB, map[string]any{"title": "hacked", "authorId": b.ID})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	if msg := errorMessage(t, data); msg != "Unauthorized to edit this post" {
		t.Fatalf("error = %q", msg)
	}
	var still domain.Post
	ts.expect(http.MethodGet, "/posts/"+p1.ID, "", nil, http.StatusOK, &still)
	if still.Title != "T" {
		t.Fatalf("title = %q after forbidden edit", still.Title)
	}

	var updated domain.Post
	ts.expect(http.MethodPut, "/posts/"+p1.ID, tokenA, map[string]any{"title": "T2", "authorId": a.ID}, http.StatusOK, &updated)
	if updated.Title != "T2" {
		t.Fatalf("title = %q, want T2", updated.Title)
	}

	ts.expect(http.MethodDelete, "/posts/"+p1.ID+"?authorId="+b.ID, tokenB, nil, http.StatusForbidden, nil)
	var msg messageResponse
	ts.expect(http.MethodDelete, "/posts/"+p1.ID, tokenA, nil, http.StatusOK, &msg)
	if msg.Message != "Post deleted successfully" {
		t.Fatalf("message = %q", msg.Message)
	}
	ts.expect(http.MethodDelete, "/posts/"+p1.ID, tokenA, nil, http.StatusNotFound, nil)
	ts.expect(http.MethodDelete, "/posts/"+p1.ID, tokenA, nil, http.StatusNotFound, nil)
}

func TestUserEmailConflictScenario(t *testing.T) {
	ts := newTestServer(t)
	ts.signIn("a@x.com")
	b, tokenB := ts.signIn("b@x.com")

	resp, data := ts.do(http.MethodPut, "/users/"+b.ID, tokenB, map[string]any{"email": "a@x.com"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	if msg := errorMessage(t, data); msg != "User with this email already exists" {
		t.Fatalf("error = %q", msg)
	}
	var got domain.UserWithPosts
	ts.expect(http.MethodGet, "/users/"+b.ID, "", nil, http.StatusOK, &got)
	if got.Email != "b@x.com" {
		t.Fatalf("email = %q, want b@x.com", got.Email)
	}
}

func TestCreatePostValidation(t *testing.T) {
	ts := newTestServer(t)
	a, token := ts.signIn("a@x.com")

	resp, data := ts.do(http.MethodPost, "/posts", token, map[string]any{"authorId": a.ID})
	if resp.StatusCode != http.StatusBadRequest || errorMessage(t, data) != "Title and authorId are required" {
		t.Fatalf("missing title: %d %s", resp.StatusCode, data)
	}
	resp, data = ts.do(http.MethodPost, "/posts", token, `{"title":`)
	if resp.StatusCode != http.StatusBadRequest || errorMessage(t, data) != "invalid JSON body" {
		t.Fatalf("bad json: %d %s", resp.StatusCode, data)
	}
	var posts []postListItem
	ts.expect(http.MethodGet, "/posts", "", nil, http.StatusOK, &posts)
	if len(posts) != 0 {
		t.Fatalf("posts = %d, want none", len(posts))
	}
}

func TestMutationsRequireSession(t *testing.T) {
	ts := newTestServer(t)
	a, token := ts.signIn("a@x.com")
	var p domain.Post
	ts.expect(http.MethodPost, "/posts", token, map[string]any{"title": "T", "authorId": a.ID}, http.StatusCreated, &p)

	ts.expect(http.MethodPost, "/posts", "", map[string]any{"title": "T", "authorId": a.ID}, http.StatusUnauthorized, nil)
	ts.expect(http.MethodPut, "/posts/"+p.ID, "", map[string]any{"title": "x", "authorId": a.ID}, http.StatusUnauthorized, nil)
	ts.expect(http.MethodDelete, "/posts/"+p.ID+"?authorId="+a.ID, "", nil, http.StatusUnauthorized, nil)
	ts.expect(http.MethodDelete, "/users/"+a.ID, "", nil, http.StatusUnauthorized, nil)
	ts.expect(http.MethodPut, "/posts/"+p.ID, "not-a-token", map[string]any{"title": "x"}, http.StatusUnauthorized, nil)
}

func TestTrustSuppliedAuthorMode(t *testing.T) {
	ts := newTestServer(t, withTrustSuppliedAuthor())
	a, _ := ts.signIn("a@x.com")
	b, _ := ts.signIn("b@x.com")

	var p domain.Post
	ts.expect(http.MethodPost, "/posts", "", map[string]any{"title": "T", "authorId": a.ID, "published": true}, http.StatusCreated, &p)
	if !p.Published {
		t.Fatalf("published = false, want true")
	}
	ts.expect(http.MethodPut, "/posts/"+p.ID, "", map[string]any{"title": "x", "authorId": b.ID}, http.StatusForbidden, nil)
	ts.expect(http.MethodPut, "/posts/"+p.ID, "", map[string]any{"content": "new"}, http.StatusOK, nil)
	ts.expect(http.MethodPost, "/posts", "", map[string]any{"title": "T", "authorId": "ghost"}, http.StatusBadRequest, nil)
}

func TestListPostsFiltersAndExcerpt(t *testing.T) {
	ts := newTestServer(t)
	a, tokenA := ts.signIn("a@x.com")
	b, tokenB := ts.signIn("b@x.com")
	long := strings.Repeat("é", domain.ExcerptLength+10)
	ts.expect(http.MethodPost, "/posts", tokenA, map[string]any{"title": "Go tips", "content": long, "authorId": a.ID, "published": true}, http.StatusCreated, nil)
	ts.expect(http.MethodPost, "/posts", tokenB, map[string]any{"title": "Draft", "content": "short", "authorId": b.ID}, http.StatusCreated, nil)

	var all []postListItem
	ts.expect(http.MethodGet, "/posts", "", nil, http.StatusOK, &all)
	if len(all) != 2 || all[0].Title != "Draft" {
		t.Fatalf("all = %+v", all)
	}
	if all[0].Excerpt != "short" {
		t.Fatalf("short excerpt = %q", all[0].Excerpt)
	}
	if want := strings.Repeat("é", domain.ExcerptLength) + "..."; all[1].Excerpt != want {
		t.Fatalf("long excerpt has %d runes", len([]rune(all[1].Excerpt)))
	}

	tests := []struct {
		query string
		want  int
	}{
		{"?q=GO", 1},
		{"?authorId=" + b.ID, 1},
		{"?published=false", 1},
		{"?published=true&q=draft", 0},
	}
	for _, tc := range tests {
		var got []postListItem
		ts.expect(http.MethodGet, "/posts"+tc.query, "", nil, http.StatusOK, &got)
		if len(got) != tc.want {
			t.Fatalf("GET /posts%s = %d items, want %d", tc.query, len(got), tc.want)
		}
	}
	ts.expect(http.MethodGet, "/posts?published=maybe", "", nil, http.StatusBadRequest, nil)
}

func TestUserEmailRaceReturnsConflict(t *testing.T) {
	ts := newTestServer(t, withStore(func(s store.Store) store.Store { return staleEmailStore{Store: s} }))
	ts.signIn("a@x.com")
	b, tokenB := ts.signIn("b@x.com")

	resp, data := ts.do(http.MethodPut, "/users/"+b.ID, tokenB, map[string]any{"email": "a@x.com"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409 (body %s)", resp.StatusCode, data)
	}
	if msg := errorMessage(t, data); msg != "User with this email already exists" {
		t.Fatalf("error = %q", msg)
	}
}

func TestUpdateUserNameNullClears(t *testing.T) {
	ts := newTestServer(t)
	a, tokenA := ts.signIn("a@x.com")

	var named domain.User
	ts.expect(http.MethodPut, "/users/"+a.ID, tokenA, map[string]any{"name": "Ann"}, http.StatusOK, &named)
	if named.Name == nil || *named.Name != "Ann" {
		t.Fatalf("name = %v, want Ann", named.Name)
	}

	var kept domain.User
	ts.expect(http.MethodPut, "/users/"+a.ID, tokenA, `{"email":"a@x.com"}`, http.StatusOK, &kept)
	if kept.Name == nil || *kept.Name != "Ann" {
		t.Fatalf("name = %v after absent name, want Ann", kept.Name)
	}

	var cleared domain.User
	ts.expect(http.MethodPut, "/users/"+a.ID, tokenA, `{"name":null}`, http.StatusOK, &cleared)
	if cleared.Name != nil {
		t.Fatalf("name = %q after null, want nil", *cleared.Name)
	}

	ts.expect(http.MethodPut, "/users/"+a.ID, tokenA, `{"name":42}`, http.StatusBadRequest, nil)
}

func TestUserLifecycle(t *testing.T) {
	ts := newTestServer(t)
	a, tokenA := ts.signIn("a@x.com")
	_, tokenB := ts.signIn("b@x.com")
	ts.expect(http.MethodPost, "/posts", tokenA, map[string]any{"title": "T", "authorId": a.ID}, http.StatusCreated, nil)

	var user domain.UserWithPosts
	ts.expect(http.MethodGet, "/users/"+a.ID, "", nil, http.StatusOK, &user)
	if len(user.Posts) != 1 || user.Posts[0].Title != "T" {
		t.Fatalf("user posts = %+v", user.Posts)
	}
	ts.expect(http.MethodGet, "/users/missing", "", nil, http.StatusNotFound, nil)

	var renamed domain.User
	ts.expect(http.MethodPut, "/users/"+a.ID, tokenA, map[string]any{"name": "Ann"}, http.StatusOK, &renamed)
	if renamed.Name == nil || *renamed.Name != "Ann" {
		t.Fatalf("name = %v", renamed.Name)
	}
	ts.expect(http.MethodPut, "/users/"+a.ID, tokenB, map[string]any{"name": "x"}, http.StatusForbidden, nil)

	var msg messageResponse
	ts.expect(http.MethodDelete, "/users/"+a.ID, tokenA, nil, http.StatusOK, &msg)
	if msg.Message != "User deleted successfully" {
		t.Fatalf("message = %q", msg.Message)
	}
	var posts []postListItem
	ts.expect(http.MethodGet, "/posts", "", nil, http.StatusOK, &posts)
	if len(posts) != 0 {
		t.Fatalf("posts after user delete = %d", len(posts))
	}
	ts.expect(http.MethodGet, "/auth/me", tokenA, nil, http.StatusUnauthorized, nil)
}

func TestSessionEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.expect(http.MethodPost, "/auth/session", "", map[string]string{"email": ""}, http.StatusBadRequest, nil)
	user, token := ts.signIn("a@x.com")

	var me domain.User
	ts.expect(http.MethodGet, "/auth/me", token, nil, http.StatusOK, &me)
	if me.ID != user.ID {
		t.Fatalf("me = %+v", me)
	}
	ts.expect(http.MethodGet, "/auth/me", "", nil, http.StatusUnauthorized, nil)
	ts.expect(http.MethodDelete, "/auth/session", "", nil, http.StatusUnauthorized, nil)
	ts.expect(http.MethodDelete, "/auth/session", token, nil, http.StatusNoContent, nil)
	ts.expect(http.MethodGet, "/auth/me", token, nil, http.StatusUnauthorized, nil)
}

func TestSignInDisabled(t *testing.T) {
	ts := newTestServer(t, withoutSignIn())
	ts.expect(http.MethodPost, "/auth/session", "", map[string]string{"email": "a@x.com"}, http.StatusNotFound, nil)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	var health map[string]string
	ts.expect(http.MethodGet, "/healthz", "", nil, http.StatusOK, &health)
	if health["status"] != "ok" {
		t.Fatalf("health = %v", health)
	}
	resp, data := ts.do(http.MethodGet, "/metrics", "", nil)
	if resp.StatusCode != http.StatusOK || !bytes.Contains(data, []byte("blog_http_requests_total")) {
		t.Fatalf("metrics status %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-Id") == "" || resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing middleware headers: %v", resp.Header)
	}
}
