package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/go-github/v57/github"

	"checkhub/internal/apperror"
	"checkhub/internal/async"
	"checkhub/internal/ghclient"
	"checkhub/internal/store"
	"checkhub/internal/webhook"
)

var (
	pullRequestActions = map[string]bool{
		"opened":           true,
		"reopened":         true,
		"synchronize":      true,
		"edited":           true,
		"ready_for_review": true,
	}
	reviewActions = map[string]bool{
		"submitted": true,
		"edited":    true,
		"dismissed": true,
	}
)

// CheckResult is the outcome of one check on a pull request.
type CheckResult struct {
	Type        string `json:"type"`
	State       string `json:"state"`
	Description string `json:"description"`
}

// HookResult is returned for pull request events.
type HookResult struct {
	Event       string        `json:"event"`
	Action      string        `json:"action"`
	Repository  string        `json:"repository,omitempty"`
	PullRequest int           `json:"pull_request,omitempty"`
	Checks      []CheckResult `json:"checks"`
	Skipped     string        `json:"skipped,omitempty"`
}

// PingResult is returned for ping events.
type PingResult struct {
	Message string `json:"message"`
	Zen     string `json:"zen,omitempty"`
	HookID  int64  `json:"hook_id,omitempty"`
}

// HookHandler runs the enabled checks of a repository when GitHub reports
// pull request activity.
type HookHandler struct {
	store    *store.Store
	client   ghclient.Client
	checkers Checkers
	locks    *LockManager
	logger   *slog.Logger
}

// NewHookHandler creates a hook handler. client publishes commit statuses
// and reads repository config files.
func NewHookHandler(s *store.Store, client ghclient.Client, checkers Checkers, locks *LockManager, logger *slog.Logger) *HookHandler {
	return &HookHandler{
		store:    s,
		client:   client,
		checkers: checkers,
		locks:    locks,
		logger:   logger,
	}
}

// Registry returns the event registry served by this handler.
func (h *HookHandler) Registry() *webhook.Registry {
	return webhook.NewRegistry(map[string]webhook.Handler{
		"ping":                webhook.HandlerFunc(h.onPing),
		"pull_request":        webhook.HandlerFunc(h.onPullRequest),
		"pull_request_review": webhook.HandlerFunc(h.onPullRequestReview),
	})
}

func (h *HookHandler) onPing(_ context.Context, body *webhook.Body) (any, error) {
	hookID, _ := body.Int64("hook_id")
	return &PingResult{
		Message: "pong",
		Zen:     body.String("zen"),
		HookID:  hookID,
	}, nil
}

func (h *HookHandler) onPullRequest(ctx context.Context, body *webhook.Body) (any, error) {
	event, err := decodeEvent[*github.PullRequestEvent](body, "pull_request")
	if err != nil {
		return nil, err
	}

	action := event.GetAction()
	if !pullRequestActions[action] {
		return skipped("pull_request", action), nil
	}
	return h.runChecks(ctx, body, "pull_request", action, event.GetPullRequest())
}

func (h *HookHandler) onPullRequestReview(ctx context.Context, body *webhook.Body) (any, error) {
	event, err := decodeEvent[*github.PullRequestReviewEvent](body, "pull_request_review")
	if err != nil {
		return nil, err
	}

	action := event.GetAction()
	if !reviewActions[action] {
		return skipped("pull_request_review", action), nil
	}
	return h.runChecks(ctx, body, "pull_request_review", action, event.GetPullRequest())
}

func (h *HookHandler) runChecks(ctx context.Context, body *webhook.Body, eventType, action string, pr *github.PullRequest) (*HookResult, error) {
	repoID, ok := body.Int64("repository", "id")
	if !ok {
		return nil, apperror.BadRequestf("payload has no repository id")
	}
	if pr == nil {
		return nil, apperror.BadRequestf("payload has no pull request")
	}

	h.locks.Lock(repoID)
	defer h.locks.Unlock(repoID)

	repo, err := h.store.GetRepository(ctx, repoID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperror.NewRepositoryHandlerError(fmt.Sprintf("repository %d not found", repoID), err)
	}
	if err != nil {
		return nil, apperror.Wrap(err, apperror.HandlerFailure, "could not load repository", 0)
	}

	result := &HookResult{
		Event:       eventType,
		Action:      action,
		Repository:  repo.FullName,
		PullRequest: pr.GetNumber(),
		Checks:      []CheckResult{},
	}
	if len(repo.Checks) == 0 {
		result.Skipped = "no checks enabled"
		return result, nil
	}

	target := PullRequest{
		Owner:   repo.Owner,
		Repo:    repo.Name,
		Number:  pr.GetNumber(),
		HeadSHA: pr.GetHead().GetSHA(),
		Author:  pr.GetUser().GetLogin(),
	}

	// Policy comes from the default branch so a pull request cannot relax
	// the rules it is checked against.
	ref := repo.DefaultBranch
	if ref == "" {
		ref = pr.GetBase().GetRef()
	}
	cfg, err := LoadRepoConfig(ctx, h.client, target.Owner, target.Repo, ref)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.HandlerFailure, "could not load repository config", 0)
	}

	checks, err := async.Reduce(ctx, repo.Checks, func(ctx context.Context, acc []CheckResult, check store.Check, _ int, _ []store.Check) ([]CheckResult, error) {
		checker, ok := h.checkers[check.Type]
		if !ok {
			h.logger.Warn("Skipping unknown check type", "repository", repo.FullName, "type", check.Type)
			return acc, nil
		}

		status, err := checker.Run(ctx, h.client, target, cfg)
		if err != nil {
			h.logger.Error("Check failed", "repository", repo.FullName, "type", check.Type, "error", err)
			status = ghclient.Status{
				State:       StateError,
				Context:     statusContextPrefix + check.Type,
				Description: "Check could not be evaluated",
			}
		}

		if err := h.client.CreateStatus(ctx, target.Owner, target.Repo, target.HeadSHA, status); err != nil {
			return nil, err
		}
		return append(acc, CheckResult{
			Type:        check.Type,
			State:       status.State,
			Description: status.Description,
		}), nil
	}, result.Checks)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.HandlerFailure, "could not publish check status", http.StatusBadGateway)
	}
	result.Checks = checks

	h.logger.Info("Checks completed",
		"repository", repo.FullName,
		"pull_request", target.Number,
		"event", eventType,
		"action", action,
		"checks", len(checks),
	)
	return result, nil
}

func decodeEvent[E any](body *webhook.Body, eventType string) (E, error) {
	var zero E
	parsed, err := body.Event(eventType)
	if err != nil {
		return zero, apperror.Wrap(err, apperror.BadRequest, fmt.Sprintf("malformed %s payload", eventType), 0)
	}
	event, ok := parsed.(E)
	if !ok {
		return zero, apperror.BadRequestf("unexpected payload for %s", eventType)
	}
	return event, nil
}

func skipped(eventType, action string) *HookResult {
	return &HookResult{
		Event:   eventType,
		Action:  action,
		Checks:  []CheckResult{},
		Skipped: fmt.Sprintf("action %q does not affect checks", action),
	}
}
