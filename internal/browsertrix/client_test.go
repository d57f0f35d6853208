package browsertrix

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sudan-digital-archive/archive-api/internal/archive"
)

type fakeBrowsertrix struct {
	logins      atomic.Int64
	rejectFirst bool
	rejected    atomic.Bool
	lastState   string
	waczBody    []byte
}

func (f *fakeBrowsertrix) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/auth/jwt/login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "curator", r.FormValue("username"))
		require.Equal(t, "hunter2", r.FormValue("password"))
		f.logins.Add(1)
		writeJSON(t, w, map[string]string{"access_token": "tok"})
	})

	mux.HandleFunc("/orgs/org-1/crawlconfigs/", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		if r.Method == http.MethodPost {
			var cfg map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&cfg))
			require.Equal(t, true, cfg["runNow"])
			writeJSON(t, w, map[string]string{"id": "crawl-1", "run_now_job": "job-1"})
			return
		}
		writeJSON(t, w, map[string]string{"lastCrawlState": f.lastState})
	})

	mux.HandleFunc("/orgs/org-1/crawls/job-1/download", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		_, err := w.Write(f.waczBody)
		require.NoError(t, err)
	})

	return mux
}

func (f *fakeBrowsertrix) authorized(w http.ResponseWriter, r *http.Request) bool {
	if f.rejectFirst && f.rejected.CompareAndSwap(false, true) {
		w.WriteHeader(http.StatusUnauthorized)
		return false
	}
	if r.Header.Get("Authorization") != "Bearer tok" {
		w.WriteHeader(http.StatusUnauthorized)
		return false
	}
	return true
}

func writeJSON(t *testing.T, w http.ResponseWriter, payload any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(payload))
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := New(Config{
		BaseURL:  baseURL,
		OrgID:    "org-1",
		Username: "curator",
		Password: "hunter2",
	}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestClient_CreateAuthenticatesAndReturnsHandle(t *testing.T) {
	t.Parallel()

	fake := &fakeBrowsertrix{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	handle, err := client.Create(context.Background(), "https://example.sd/page", "")
	require.NoError(t, err)
	require.Equal(t, archive.CrawlHandle{CrawlID: "crawl-1", JobRunID: "job-1"}, handle)
	require.EqualValues(t, 1, fake.logins.Load())
}

func TestClient_ReauthenticatesOnceOnUnauthorized(t *testing.T) {
	t.Parallel()

	fake := &fakeBrowsertrix{rejectFirst: true, lastState: "running"}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	require.NoError(t, client.Authenticate(context.Background()))

	outcome, err := client.Status(context.Background(), archive.CrawlHandle{CrawlID: "crawl-1", JobRunID: "job-1"})
	require.NoError(t, err)
	require.Equal(t, archive.OutcomePending, outcome)
	// One explicit login plus one refresh after the 401.
	require.EqualValues(t, 2, fake.logins.Load())
}

func TestClient_StatusMapsCrawlStates(t *testing.T) {
	t.Parallel()

	cases := map[string]archive.CrawlOutcome{
		"complete":      archive.OutcomeComplete,
		"running":       archive.OutcomePending,
		"starting":      archive.OutcomePending,
		"generate-wacz": archive.OutcomePending,
		"failed":        archive.OutcomeUnknown,
		"canceled":      archive.OutcomeUnknown,
		"":              archive.OutcomeUnknown,
	}
	for state, want := range cases {
		require.Equal(t, want, mapCrawlState(state), "state %q", state)
	}
}

func TestClient_FetchReturnsWaczBytes(t *testing.T) {
	t.Parallel()

	fake := &fakeBrowsertrix{waczBody: []byte("wacz-bytes")}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	data, err := client.Fetch(context.Background(), archive.CrawlHandle{CrawlID: "crawl-1", JobRunID: "job-1"})
	require.NoError(t, err)
	require.Equal(t, []byte("wacz-bytes"), data)
}

func TestClient_FetchRejectsEmptyBody(t *testing.T) {
	t.Parallel()

	fake := &fakeBrowsertrix{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	_, err := client.Fetch(context.Background(), archive.CrawlHandle{CrawlID: "crawl-1", JobRunID: "job-1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty")
}

func TestNew_ValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{OrgID: "org", Username: "u", Password: "p"}, nil)
	require.Error(t, err)

	_, err = New(Config{BaseURL: "https://btrix", Username: "u", Password: "p"}, nil)
	require.Error(t, err)

	_, err = New(Config{BaseURL: "https://btrix", OrgID: "org"}, nil)
	require.Error(t, err)
}
