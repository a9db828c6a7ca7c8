package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-github/v57/github"

	"checkhub/internal/ghclient"
	"checkhub/internal/store"
)

// fakeClient is an in-memory ghclient.Client.
type fakeClient struct {
	mu sync.Mutex

	login   string
	repos   []*github.Repository
	listErr error

	nextHookID    int64
	createHookErr error
	deleteHookErr error
	createdHooks  []ghclient.HookOptions
	deletedHooks  []int64

	statuses  []ghclient.Status
	statusErr error

	commits    []*github.RepositoryCommit
	reviews    []*github.PullRequestReview
	reviewsErr error
	files      map[string][]byte
	refFiles   map[string]map[string][]byte // ref -> path -> content
	fileRefs   []string
}

var _ ghclient.Client = (*fakeClient)(nil)

func notFoundError() error {
	return &github.ErrorResponse{
		Response: &http.Response{StatusCode: http.StatusNotFound},
		Message:  "Not Found",
	}
}

func (f *fakeClient) CurrentUser(ctx context.Context) (*github.User, error) {
	return &github.User{Login: github.String(f.login)}, nil
}

func (f *fakeClient) ListRepositories(ctx context.Context) ([]*github.Repository, error) {
	return f.repos, f.listErr
}

func (f *fakeClient) GetRepository(ctx context.Context, id int64) (*github.Repository, error) {
	for _, r := range f.repos {
		if r.GetID() == id {
			return r, nil
		}
	}
	return nil, notFoundError()
}

func (f *fakeClient) CreateHook(ctx context.Context, owner, repo string, hook ghclient.HookOptions) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createHookErr != nil {
		return 0, f.createHookErr
	}
	f.createdHooks = append(f.createdHooks, hook)
	f.nextHookID++
	return f.nextHookID, nil
}

func (f *fakeClient) DeleteHook(ctx context.Context, owner, repo string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteHookErr != nil {
		return f.deleteHookErr
	}
	f.deletedHooks = append(f.deletedHooks, id)
	return nil
}

func (f *fakeClient) CreateStatus(ctx context.Context, owner, repo, sha string, status ghclient.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return f.statusErr
	}
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeClient) ListPullRequestCommits(ctx context.Context, owner, repo string, number int) ([]*github.RepositoryCommit, error) {
	return f.commits, nil
}

func (f *fakeClient) ListPullRequestReviews(ctx context.Context, owner, repo string, number int) ([]*github.PullRequestReview, error) {
	return f.reviews, f.reviewsErr
}

func (f *fakeClient) GetFile(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	f.mu.Lock()
	f.fileRefs = append(f.fileRefs, ref)
	f.mu.Unlock()

	if data, ok := f.refFiles[ref][path]; ok {
		return data, nil
	}
	if data, ok := f.files[path]; ok {
		return data, nil
	}
	return nil, notFoundError()
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ghRepository(id int64, name string) *github.Repository {
	return &github.Repository{
		ID:            github.Int64(id),
		Name:          github.String(name),
		FullName:      github.String("octo/" + name),
		Owner:         &github.User{Login: github.String("octo")},
		HTMLURL:       github.String("https://github.com/octo/" + name),
		DefaultBranch: github.String("main"),
	}
}

func seedRepository(t *testing.T, s *store.Store, id int64, name string, checks ...string) *store.Repository {
	t.Helper()
	ctx := context.Background()
	repo := fromGitHub(ghRepository(id, name))
	if err := s.UpsertRepository(ctx, "octo", repo); err != nil {
		t.Fatalf("Failed to seed repository: %v", err)
	}
	for _, c := range checks {
		if _, err := s.SaveCheck(ctx, id, c, "octo"); err != nil {
			t.Fatalf("Failed to seed check: %v", err)
		}
	}
	stored, err := s.GetRepository(ctx, id)
	if err != nil {
		t.Fatalf("Failed to load seeded repository: %v", err)
	}
	return stored
}

func review(login, state string) *github.PullRequestReview {
	return &github.PullRequestReview{
		User:  &github.User{Login: github.String(login)},
		State: github.String(state),
	}
}

func commit(message string) *github.RepositoryCommit {
	return &github.RepositoryCommit{
		Commit: &github.Commit{Message: github.String(message)},
	}
}

var errBoom = errors.New("boom")
