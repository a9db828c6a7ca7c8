package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-github/v57/github"

	"checkhub/internal/ghclient"
	"checkhub/internal/handler"
	"checkhub/internal/store"
	"checkhub/internal/stream"
	"checkhub/internal/webhook"
)

const (
	testSecret = "test-secret-with-enough-chars"
	testToken  = "good-token"
)

var errUnauthorized = errors.New("401 Bad credentials")

// fakeGitHub is an in-memory ghclient.Client shared by every token.
type fakeGitHub struct {
	mu       sync.Mutex
	repos    []*github.Repository
	hooks    int64
	statuses []ghclient.Status
}

func (f *fakeGitHub) CurrentUser(ctx context.Context) (*github.User, error) {
	return &github.User{Login: github.String("octo")}, nil
}

func (f *fakeGitHub) ListRepositories(ctx context.Context) ([]*github.Repository, error) {
	return f.repos, nil
}

func (f *fakeGitHub) GetRepository(ctx context.Context, id int64) (*github.Repository, error) {
	for _, r := range f.repos {
		if r.GetID() == id {
			return r, nil
		}
	}
	return nil, &github.ErrorResponse{
		Response: &http.Response{StatusCode: http.StatusNotFound},
		Message:  "Not Found",
	}
}

func (f *fakeGitHub) CreateHook(ctx context.Context, owner, repo string, hook ghclient.HookOptions) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks++
	return f.hooks, nil
}

func (f *fakeGitHub) DeleteHook(ctx context.Context, owner, repo string, id int64) error {
	return nil
}

func (f *fakeGitHub) CreateStatus(ctx context.Context, owner, repo, sha string, status ghclient.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeGitHub) ListPullRequestCommits(ctx context.Context, owner, repo string, number int) ([]*github.RepositoryCommit, error) {
	return nil, nil
}

func (f *fakeGitHub) ListPullRequestReviews(ctx context.Context, owner, repo string, number int) ([]*github.PullRequestReview, error) {
	return nil, nil
}

func (f *fakeGitHub) GetFile(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	return nil, errors.New("no such file")
}

// rejectingClient fails authentication.
type rejectingClient struct{ fakeGitHub }

func (*rejectingClient) CurrentUser(ctx context.Context) (*github.User, error) {
	return nil, errUnauthorized
}

// recordingStream keeps published events in memory.
type recordingStream struct {
	mu     sync.Mutex
	events []stream.Event
}

func (s *recordingStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *recordingStream) Publish(ev stream.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return true
}

func (s *recordingStream) Clients() int { return 0 }

func (s *recordingStream) Events() []stream.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]stream.Event(nil), s.events...)
}

type testServer struct {
	*Server
	github *fakeGitHub
	events *recordingStream
}

func setupTestServer(t *testing.T, allowUnsigned bool) *testServer {
	t.Helper()

	st, err := store.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gh := &fakeGitHub{repos: []*github.Repository{{
		ID:       github.Int64(1),
		Name:     github.String("hello"),
		FullName: github.String("octo/hello"),
		Owner:    &github.User{Login: github.String("octo")},
	}}}

	checkers := handler.DefaultCheckers()
	locks := handler.NewLockManager()
	hooks := handler.NewHookHandler(st, gh, checkers, locks, logger)

	events := &recordingStream{}
	server := NewServer(Options{
		Store:        st,
		Dispatcher:   webhook.NewDispatcher(hooks.Registry(), logger),
		Repositories: handler.NewRepositoryHandler(st, logger),
		Checks: handler.NewCheckHandler(st, checkers, locks, handler.CheckHandlerConfig{
			HookURL: "https://checkhub.example.com/api/hook",
			Secret:  testSecret,
		}, logger),
		CheckTypes: checkers.Types(),
		Stream:     events,
		Clients: func(token string) (ghclient.Client, error) {
			if token != testToken {
				return &rejectingClient{}, nil
			}
			return gh, nil
		},
		Secret:        []byte(testSecret),
		AllowUnsigned: allowUnsigned,
		Environment:   "test",
		Logger:        logger,
		TestMode:      true,
	})

	return &testServer{Server: server, github: gh, events: events}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	ts.Router().ServeHTTP(rr, req)
	return rr
}

func hookRequest(event string, payload []byte, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/hook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-GitHub-Delivery", "delivery-1")
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}
	return req
}
