package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/go-github/v57/github"

	"checkhub/internal/apperror"
)

func TestRepositoryHandler_OnGetAll_RefreshesFromGitHub(t *testing.T) {
	s := newTestStore(t)
	h := NewRepositoryHandler(s, testLogger())
	client := &fakeClient{repos: []*github.Repository{ghRepository(2, "zeta"), ghRepository(1, "alpha")}}
	user := &User{Login: "octo", Client: client}

	repos, err := h.OnGetAll(context.Background(), user, true)
	if err != nil {
		t.Fatalf("OnGetAll failed: %v", err)
	}
	if len(repos) != 2 {
		t.Fatalf("Expected 2 repositories, got %d", len(repos))
	}
	// Reduce keeps GitHub's order.
	if repos[0].ID != 2 || repos[1].ID != 1 {
		t.Errorf("Expected GitHub order, got %d, %d", repos[0].ID, repos[1].ID)
	}

	stored, err := s.ListRepositories(context.Background(), "octo")
	if err != nil {
		t.Fatalf("Failed to list stored repositories: %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("Expected repositories to be stored, got %d", len(stored))
	}
}

func TestRepositoryHandler_OnGetAll_UsesStore(t *testing.T) {
	s := newTestStore(t)
	seedRepository(t, s, 1, "hello", CheckApproval)
	h := NewRepositoryHandler(s, testLogger())
	client := &fakeClient{listErr: errBoom}

	repos, err := h.OnGetAll(context.Background(), &User{Login: "octo", Client: client}, false)
	if err != nil {
		t.Fatalf("Expected stored repositories without calling GitHub, got %v", err)
	}
	if len(repos) != 1 || len(repos[0].Checks) != 1 {
		t.Errorf("Unexpected repositories: %+v", repos)
	}
}

func TestRepositoryHandler_OnGetAll_GitHubFailure(t *testing.T) {
	h := NewRepositoryHandler(newTestStore(t), testLogger())
	client := &fakeClient{listErr: errBoom}

	_, err := h.OnGetAll(context.Background(), &User{Login: "octo", Client: client}, true)
	if err == nil {
		t.Fatal("Expected error when GitHub fails")
	}
	if apperror.StatusCode(err) != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", apperror.StatusCode(err))
	}
}

func TestRepositoryHandler_OnGetOne_FromStore(t *testing.T) {
	s := newTestStore(t)
	seedRepository(t, s, 1, "hello", CheckCommitMessage)
	h := NewRepositoryHandler(s, testLogger())

	repo, err := h.OnGetOne(context.Background(), 1, &User{Login: "octo", Client: &fakeClient{}})
	if err != nil {
		t.Fatalf("OnGetOne failed: %v", err)
	}
	if repo.FullName != "octo/hello" || len(repo.Checks) != 1 {
		t.Errorf("Unexpected repository: %+v", repo)
	}
}

func TestRepositoryHandler_OnGetOne_FallsBackToGitHub(t *testing.T) {
	s := newTestStore(t)
	h := NewRepositoryHandler(s, testLogger())
	client := &fakeClient{repos: []*github.Repository{ghRepository(3, "remote")}}

	repo, err := h.OnGetOne(context.Background(), 3, &User{Login: "hubot", Client: client})
	if err != nil {
		t.Fatalf("OnGetOne failed: %v", err)
	}
	if repo.FullName != "octo/remote" {
		t.Errorf("Expected repository from GitHub, got %q", repo.FullName)
	}

	ok, err := s.HasAccess(context.Background(), "hubot", 3)
	if err != nil || !ok {
		t.Errorf("Expected repository to be linked to hubot, got ok=%v err=%v", ok, err)
	}
}

func TestRepositoryHandler_OnGetOne_OtherUsersRepository(t *testing.T) {
	s := newTestStore(t)
	seedRepository(t, s, 1, "hello")
	h := NewRepositoryHandler(s, testLogger())

	// hubot is not linked and GitHub does not expose the repository.
	_, err := h.OnGetOne(context.Background(), 1, &User{Login: "hubot", Client: &fakeClient{}})
	if !apperror.Is(err, apperror.NotFound) {
		t.Errorf("Expected NotFound, got %v", err)
	}
}

func TestRepositoryHandler_OnGetOne_NotFound(t *testing.T) {
	h := NewRepositoryHandler(newTestStore(t), testLogger())

	_, err := h.OnGetOne(context.Background(), 404, &User{Login: "octo", Client: &fakeClient{}})
	if err == nil {
		t.Fatal("Expected error for unknown repository")
	}
	if apperror.StatusCode(err) != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", apperror.StatusCode(err))
	}
	if err.Error() == "" || !apperror.Is(err, apperror.NotFound) {
		t.Errorf("Expected repository handler error, got %v", err)
	}
}
