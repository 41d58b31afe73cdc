package spacetrack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

// fakeUpstream simulates the Space-Track login flow: a form POST to the
// login endpoint issues a session cookie, and the data endpoint requires
// a currently valid one.
type fakeUpstream struct {
	mu          sync.Mutex
	logins      int
	dataCalls   int
	lastForm    url.Values
	valid       map[string]bool
	rejectLogin bool
	dataStatus  int // non-zero forces this status on the data endpoint
	payload     string

	server *httptest.Server
}

func newFakeUpstream() *fakeUpstream {
	f := &fakeUpstream{
		valid:   make(map[string]bool),
		payload: `[{"NORAD_CAT_ID":"25544"}]`,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ajaxauth/login", f.handleLogin)
	mux.HandleFunc("GET /data", f.handleData)
	f.server = httptest.NewServer(mux)
	return f
}

func (f *fakeUpstream) handleLogin(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	f.lastForm = r.PostForm

	if f.rejectLogin {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	session := fmt.Sprintf("session-%d", f.logins)
	f.valid[session] = true
	http.SetCookie(w, &http.Cookie{Name: "spacetrack_session", Value: session, Path: "/"})
	w.Write([]byte(`""`))
}

func (f *fakeUpstream) handleData(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dataCalls++

	if f.dataStatus != 0 {
		w.WriteHeader(f.dataStatus)
		w.Write([]byte("upstream broke"))
		return
	}

	cookie, err := r.Cookie("spacetrack_session")
	if err != nil || !f.valid[cookie.Value] {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Write([]byte(f.payload))
}

// revokeSessions invalidates every session issued so far, as if the
// remote side expired them.
func (f *fakeUpstream) revokeSessions() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.valid = make(map[string]bool)
}

func (f *fakeUpstream) counts() (logins, dataCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins, f.dataCalls
}

func newTestClient(t *testing.T, f *fakeUpstream) *Client {
	t.Helper()
	c, err := New(context.Background(), Config{
		Identity: "alice",
		Password: "hunter2",
		BaseURL:  f.server.URL,
	}, testLogger)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestNewPostsCredentials(t *testing.T) {
	f := newFakeUpstream()
	defer f.server.Close()

	c := newTestClient(t, f)

	logins, _ := f.counts()
	if logins != 1 {
		t.Errorf("logins = %d, want 1", logins)
	}
	if got := f.lastForm.Get("identity"); got != "alice" {
		t.Errorf("identity field = %q, want %q", got, "alice")
	}
	if got := f.lastForm.Get("password"); got != "hunter2" {
		t.Errorf("password field = %q, want %q", got, "hunter2")
	}
	if c.LastAuthenticated().IsZero() {
		t.Error("LastAuthenticated is zero after successful login")
	}
}

func TestNewLoginRejected(t *testing.T) {
	f := newFakeUpstream()
	defer f.server.Close()
	f.rejectLogin = true

	_, err := New(context.Background(), Config{
		Identity: "alice",
		Password: "wrong",
		BaseURL:  f.server.URL,
	}, testLogger)
	if err == nil {
		t.Fatal("expected error for rejected login, got nil")
	}
	if !IsAuth(err) {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestQueryUsesSessionCookie(t *testing.T) {
	f := newFakeUpstream()
	defer f.server.Close()

	c := newTestClient(t, f)

	body, err := c.Query(context.Background(), "data")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if string(body) != f.payload {
		t.Errorf("payload mismatch: got %q", body)
	}

	logins, dataCalls := f.counts()
	if logins != 1 {
		t.Errorf("logins = %d, want 1 (session should be reused)", logins)
	}
	if dataCalls != 1 {
		t.Errorf("dataCalls = %d, want 1", dataCalls)
	}
}

func TestQueryRenewsExpiredSession(t *testing.T) {
	f := newFakeUpstream()
	defer f.server.Close()

	c := newTestClient(t, f)
	c.renewGrace = 0
	f.revokeSessions()

	body, err := c.Query(context.Background(), "data")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if string(body) != f.payload {
		t.Errorf("payload mismatch: got %q", body)
	}

	logins, dataCalls := f.counts()
	if logins != 2 {
		t.Errorf("logins = %d, want 2 (one initial, one renewal)", logins)
	}
	if dataCalls != 2 {
		t.Errorf("dataCalls = %d, want 2 (one rejected, one retry)", dataCalls)
	}
}

// TestQueryGivesUpAfterSecondUnauthorized verifies the single
// renew-and-retry bound: a request that stays unauthorized after one
// renewal fails instead of looping.
func TestQueryGivesUpAfterSecondUnauthorized(t *testing.T) {
	f := newFakeUpstream()
	defer f.server.Close()

	c := newTestClient(t, f)
	c.renewGrace = 0
	f.dataStatus = http.StatusUnauthorized

	_, err := c.Query(context.Background(), "data")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !IsAuth(err) {
		t.Errorf("expected auth error, got %v", err)
	}

	logins, dataCalls := f.counts()
	if logins != 2 {
		t.Errorf("logins = %d, want 2", logins)
	}
	if dataCalls != 2 {
		t.Errorf("dataCalls = %d, want exactly 2 (no further retries)", dataCalls)
	}
}

func TestQueryAuthErrorWhenRenewalRejected(t *testing.T) {
	f := newFakeUpstream()
	defer f.server.Close()

	c := newTestClient(t, f)
	c.renewGrace = 0
	f.revokeSessions()
	f.rejectLogin = true

	_, err := c.Query(context.Background(), "data")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !IsAuth(err) {
		t.Errorf("expected auth error, got %v", err)
	}

	_, dataCalls := f.counts()
	if dataCalls != 1 {
		t.Errorf("dataCalls = %d, want 1 (no retry after failed renewal)", dataCalls)
	}
}

// TestRenewGraceReusesFreshHandshake verifies that a 401 observed right
// after a handshake does not trigger another one; the retry reuses the
// session as-is.
func TestRenewGraceReusesFreshHandshake(t *testing.T) {
	f := newFakeUpstream()
	defer f.server.Close()

	c := newTestClient(t, f)
	f.revokeSessions()

	_, err := c.Query(context.Background(), "data")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !IsAuth(err) {
		t.Errorf("expected auth error, got %v", err)
	}

	logins, dataCalls := f.counts()
	if logins != 1 {
		t.Errorf("logins = %d, want 1 (renewal inside grace window skips the handshake)", logins)
	}
	if dataCalls != 2 {
		t.Errorf("dataCalls = %d, want 2", dataCalls)
	}
}

func TestQueryUpstreamStatusError(t *testing.T) {
	f := newFakeUpstream()
	defer f.server.Close()

	c := newTestClient(t, f)
	f.dataStatus = http.StatusInternalServerError

	_, err := c.Query(context.Background(), "data")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if IsAuth(err) {
		t.Errorf("500 must not be classified as auth failure: %v", err)
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %T: %v", err, err)
	}
	if statusErr.Code != http.StatusInternalServerError {
		t.Errorf("Code = %d, want 500", statusErr.Code)
	}
	if !strings.Contains(statusErr.Body, "upstream broke") {
		t.Errorf("Body = %q, want response body snippet", statusErr.Body)
	}
}

func TestQueryTransportError(t *testing.T) {
	f := newFakeUpstream()
	c := newTestClient(t, f)
	f.server.Close()

	_, err := c.Query(context.Background(), "data")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if IsAuth(err) {
		t.Errorf("transport failure must not be classified as auth failure: %v", err)
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		t.Errorf("transport failure must not carry an upstream status: %v", err)
	}
}

func TestQueryResponseByteLimit(t *testing.T) {
	f := newFakeUpstream()
	defer f.server.Close()
	f.payload = strings.Repeat("A", 1024)

	c := newTestClient(t, f)
	c.maxResponseBytes = 256

	_, err := c.Query(context.Background(), "data")
	if err == nil {
		t.Fatal("expected error for oversized response, got nil")
	}
	if !strings.Contains(err.Error(), "byte limit") {
		t.Errorf("expected body limit error, got: %v", err)
	}
}

// TestConcurrentQueriesDuringExpiry exercises the renew path under
// concurrent load: every caller must eventually succeed even when several
// of them observe the expired session at once.
func TestConcurrentQueriesDuringExpiry(t *testing.T) {
	f := newFakeUpstream()
	defer f.server.Close()

	c := newTestClient(t, f)
	c.renewGrace = 0
	f.revokeSessions()

	const workers = 8
	errCh := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Query(context.Background(), "data")
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Errorf("concurrent Query failed: %v", err)
		}
	}

	logins, _ := f.counts()
	if logins < 2 {
		t.Errorf("logins = %d, want at least 2 (initial plus renewal)", logins)
	}
}
