package handler

import (
	"context"
	"log/slog"
	"net/http"

	"checkhub/internal/apperror"
	"checkhub/internal/ghclient"
	"checkhub/internal/store"
)

// HookEvents are the events subscribed to when a repository webhook is
// created.
var HookEvents = []string{"pull_request", "pull_request_review"}

// CheckHandler enables and disables checks on repositories and keeps the
// repository webhook in sync with them.
type CheckHandler struct {
	store    *store.Store
	checkers Checkers
	locks    *LockManager
	hookURL  string
	secret   string
	logger   *slog.Logger
}

// CheckHandlerConfig holds the webhook settings used when creating hooks.
type CheckHandlerConfig struct {
	HookURL string
	Secret  string
}

// NewCheckHandler creates a check handler.
func NewCheckHandler(s *store.Store, checkers Checkers, locks *LockManager, cfg CheckHandlerConfig, logger *slog.Logger) *CheckHandler {
	return &CheckHandler{
		store:    s,
		checkers: checkers,
		locks:    locks,
		hookURL:  cfg.HookURL,
		secret:   cfg.Secret,
		logger:   logger,
	}
}

// OnEnableCheck enables checkType on repo, creating the webhook when the
// repository does not have one yet. Enabling an enabled check is a no-op.
func (h *CheckHandler) OnEnableCheck(ctx context.Context, user *User, repo *store.Repository, checkType string) (*store.Check, error) {
	if _, ok := h.checkers[checkType]; !ok {
		return nil, apperror.BadRequestf("unknown check type %q", checkType)
	}

	h.locks.Lock(repo.ID)
	defer h.locks.Unlock(repo.ID)

	current, err := h.store.GetRepository(ctx, repo.ID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.HandlerFailure, "could not load repository", 0)
	}

	if current.HookID == nil && h.hookURL != "" {
		hookID, err := user.Client.CreateHook(ctx, current.Owner, current.Name, ghclient.HookOptions{
			URL:    h.hookURL,
			Secret: h.secret,
			Events: HookEvents,
		})
		if err != nil {
			return nil, apperror.Wrap(err, apperror.HandlerFailure, "could not create webhook", http.StatusBadGateway)
		}
		if err := h.store.SetHookID(ctx, current.ID, &hookID); err != nil {
			return nil, apperror.Wrap(err, apperror.HandlerFailure, "could not store webhook", 0)
		}
		h.logger.Info("Created webhook", "repository", current.FullName, "hook_id", hookID)
	}

	check, err := h.store.SaveCheck(ctx, current.ID, checkType, user.Login)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.HandlerFailure, "could not save check", 0)
	}

	h.logger.Info("Enabled check", "repository", current.FullName, "type", checkType, "user", user.Login)
	return check, nil
}

// OnDisableCheck disables checkType on repo. The webhook is removed once no
// checks remain.
func (h *CheckHandler) OnDisableCheck(ctx context.Context, user *User, repo *store.Repository, checkType string) error {
	if _, ok := h.checkers[checkType]; !ok {
		return apperror.BadRequestf("unknown check type %q", checkType)
	}

	h.locks.Lock(repo.ID)
	defer h.locks.Unlock(repo.ID)

	removed, err := h.store.DeleteCheck(ctx, repo.ID, checkType)
	if err != nil {
		return apperror.Wrap(err, apperror.HandlerFailure, "could not delete check", 0)
	}
	if !removed {
		return apperror.NotFoundf("check %q is not enabled on %s", checkType, repo.FullName)
	}
	h.logger.Info("Disabled check", "repository", repo.FullName, "type", checkType, "user", user.Login)

	current, err := h.store.GetRepository(ctx, repo.ID)
	if err != nil {
		return apperror.Wrap(err, apperror.HandlerFailure, "could not load repository", 0)
	}
	if len(current.Checks) > 0 || current.HookID == nil {
		return nil
	}

	err = user.Client.DeleteHook(ctx, current.Owner, current.Name, *current.HookID)
	if err != nil && !ghclient.IsNotFound(err) {
		return apperror.Wrap(err, apperror.HandlerFailure, "could not delete webhook", http.StatusBadGateway)
	}
	if err := h.store.SetHookID(ctx, current.ID, nil); err != nil {
		return apperror.Wrap(err, apperror.HandlerFailure, "could not clear webhook", 0)
	}

	h.logger.Info("Removed webhook", "repository", current.FullName, "hook_id", *current.HookID)
	return nil
}
