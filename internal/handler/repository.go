package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/go-github/v57/github"

	"checkhub/internal/apperror"
	"checkhub/internal/async"
	"checkhub/internal/store"
)

// RepositoryHandler lists and resolves repositories for API users.
type RepositoryHandler struct {
	store  *store.Store
	logger *slog.Logger
}

// NewRepositoryHandler creates a repository handler.
func NewRepositoryHandler(s *store.Store, logger *slog.Logger) *RepositoryHandler {
	return &RepositoryHandler{store: s, logger: logger}
}

// OnGetAll returns the user's repositories. With all set, or when nothing is
// stored yet, the list is refreshed from GitHub first.
func (h *RepositoryHandler) OnGetAll(ctx context.Context, user *User, all bool) ([]*store.Repository, error) {
	if !all {
		repos, err := h.store.ListRepositories(ctx, user.Login)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.HandlerFailure, "could not load repositories", 0)
		}
		if len(repos) > 0 {
			return repos, nil
		}
	}

	remote, err := user.Client.ListRepositories(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.HandlerFailure, "could not fetch repositories from GitHub", http.StatusBadGateway)
	}

	repos, err := async.Reduce(ctx, remote, func(ctx context.Context, acc []*store.Repository, r *github.Repository, _ int, _ []*github.Repository) ([]*store.Repository, error) {
		repo, err := h.save(ctx, user.Login, r)
		if err != nil {
			return nil, err
		}
		return append(acc, repo), nil
	}, make([]*store.Repository, 0, len(remote)))
	if err != nil {
		return nil, apperror.Wrap(err, apperror.HandlerFailure, "could not store repositories", 0)
	}

	h.logger.Info("Refreshed repositories from GitHub", "user", user.Login, "count", len(repos))
	return repos, nil
}

// OnGetOne resolves a repository the user can access, from the store first
// and from GitHub second.
func (h *RepositoryHandler) OnGetOne(ctx context.Context, id int64, user *User) (*store.Repository, error) {
	repo, err := async.FirstSuccess(ctx, []async.Operation[*store.Repository]{
		func(ctx context.Context) (*store.Repository, error) {
			ok, err := h.store.HasAccess(ctx, user.Login, id)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("repository %d: %w", id, store.ErrNotFound)
			}
			return h.store.GetRepository(ctx, id)
		},
		func(ctx context.Context) (*store.Repository, error) {
			r, err := user.Client.GetRepository(ctx, id)
			if err != nil {
				return nil, err
			}
			return h.save(ctx, user.Login, r)
		},
	})
	if err != nil {
		return nil, apperror.NewRepositoryHandlerError(fmt.Sprintf("repository %d not found", id), err)
	}
	return repo, nil
}

// save stores r for userLogin and returns it with its enabled checks.
func (h *RepositoryHandler) save(ctx context.Context, userLogin string, r *github.Repository) (*store.Repository, error) {
	repo := fromGitHub(r)
	if err := h.store.UpsertRepository(ctx, userLogin, repo); err != nil {
		return nil, err
	}

	stored, err := h.store.GetRepository(ctx, repo.ID)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func fromGitHub(r *github.Repository) *store.Repository {
	return &store.Repository{
		ID:            r.GetID(),
		Owner:         r.GetOwner().GetLogin(),
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		Private:       r.GetPrivate(),
		HTMLURL:       r.GetHTMLURL(),
		DefaultBranch: r.GetDefaultBranch(),
	}
}
