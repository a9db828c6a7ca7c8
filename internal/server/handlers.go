package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"checkhub/internal/apperror"
	"checkhub/internal/store"
	"checkhub/internal/stream"
	"checkhub/internal/webhook"
)

const (
	MaxPayloadBytes       = 1_000_000 // 1 MB
	RecentDeliveriesLimit = 50        // Number of deliveries returned by /api/deliveries
)

// Delivery statuses
const (
	DeliverySuccess  = "success"
	DeliveryFailed   = "failed"
	DeliveryRejected = "rejected"
)

// HandleHook handles GitHub webhook requests
func (s *Server) HandleHook(w http.ResponseWriter, r *http.Request) {
	req, err := webhook.ReadRequest(r, MaxPayloadBytes)
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrPayloadTooLarge):
			s.writeProblem(w, "Payload too large.", apperror.Wrap(err, apperror.BadRequest, "payload exceeds 1 MB", http.StatusRequestEntityTooLarge))
		default:
			s.writeProblem(w, "Invalid payload.", apperror.Wrap(err, apperror.BadRequest, "could not read payload", 0))
		}
		return
	}

	eventType := req.EventType()
	if eventType == "" {
		s.writeProblem(w, "Invalid payload.", apperror.BadRequestf("missing event type header"))
		return
	}

	logger := s.Logger.With("event", eventType, "delivery_id", req.DeliveryID())

	verification := req.Verify(s.secret)
	switch verification {
	case webhook.Invalid:
		logger.Warn("Rejected webhook with invalid signature")
		err := apperror.New(apperror.AuthenticationFailure, "signature does not match payload", http.StatusBadRequest)
		s.recordDelivery(r.Context(), req, verification, eventType, DeliveryRejected, err)
		s.writeProblem(w, "Invalid signature.", err)
		return
	case webhook.NoSignature:
		if !s.allowUnsigned {
			logger.Warn("Rejected unsigned webhook")
			err := apperror.New(apperror.AuthenticationFailure, "signature header is required", http.StatusBadRequest)
			s.recordDelivery(r.Context(), req, verification, eventType, DeliveryRejected, err)
			s.writeProblem(w, "Missing signature.", err)
			return
		}
		logger.Warn("Accepting unsigned webhook delivery")
	}

	result, err := s.Dispatcher.Dispatch(r.Context(), eventType, req.Body)
	if err != nil {
		logger.Error("Webhook handler failed", "error", err, "status", apperror.StatusCode(err))
		s.recordDelivery(r.Context(), req, verification, eventType, DeliveryFailed, err)
		s.writeProblem(w, "Could not handle event.", err)
		return
	}

	logger.Info("Webhook handled")
	s.recordDelivery(r.Context(), req, verification, eventType, DeliverySuccess, nil)
	s.respondJSON(w, http.StatusOK, result)
}

// recordDelivery stores the outcome of a delivery and publishes it to the
// event stream. Failures are logged and never change the response.
//
// Only signed deliveries may replace an earlier record for the same delivery
// ID, and rejected deliveries are never published.
func (s *Server) recordDelivery(ctx context.Context, req *webhook.Request, verification webhook.Verification, eventType, status string, cause error) {
	delivery := &store.Delivery{
		ID:     req.DeliveryID(),
		Event:  eventType,
		Status: status,
	}
	if repoID, ok := req.Body.Int64("repository", "id"); ok {
		delivery.RepositoryID = &repoID
	}
	if cause != nil {
		msg := cause.Error()
		delivery.ErrorMessage = &msg
	}

	if s.Store != nil {
		if verification == webhook.Valid {
			if err := s.Store.RecordDelivery(ctx, delivery); err != nil {
				s.Logger.Error("Failed to record delivery", "error", err, "delivery_id", delivery.ID)
			}
		} else {
			written, err := s.Store.InsertDelivery(ctx, delivery)
			if err != nil {
				s.Logger.Error("Failed to record delivery", "error", err, "delivery_id", delivery.ID)
			} else if !written {
				s.Logger.Warn("Unverified delivery reused an existing delivery id", "delivery_id", delivery.ID)
			}
		}
	}

	if status == DeliveryRejected {
		return
	}

	if s.Stream != nil {
		ev := stream.Event{
			Event:      eventType,
			DeliveryID: delivery.ID,
			Status:     status,
			Repository: req.Body.String("repository", "full_name"),
			Time:       delivery.ReceivedAt,
		}
		if cause != nil {
			ev.Error = cause.Error()
		}
		s.Stream.Publish(ev)
	}
}

// HandleHealth handles health check requests
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	registry := s.Dispatcher.Registry()

	response := map[string]interface{}{
		"status":      "ok",
		"events":      registry.Events(),
		"event_count": registry.Count(),
	}
	if s.Stream != nil {
		response["stream_clients"] = s.Stream.Clients()
	}

	s.respondJSON(w, http.StatusOK, response)
}

// HandleEnv returns client-facing settings.
func (s *Server) HandleEnv(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"environment": s.environment,
		"checks":      s.checkTypes,
	})
}

// HandleDeliveries returns the most recent webhook deliveries.
func (s *Server) HandleDeliveries(w http.ResponseWriter, r *http.Request) {
	deliveries, err := s.Store.RecentDeliveries(r.Context(), RecentDeliveriesLimit)
	if err != nil {
		s.Logger.Error("Failed to get deliveries", "error", err)
		s.writeProblem(w, "Could not load deliveries.", err)
		return
	}
	if deliveries == nil {
		deliveries = []store.Delivery{}
	}
	s.respondJSON(w, http.StatusOK, deliveries)
}

// HandleListRepositories lists the caller's repositories. ?all=true
// refreshes the list from GitHub.
func (s *Server) HandleListRepositories(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))

	repos, err := s.Repositories.OnGetAll(r.Context(), user, all)
	if err != nil {
		s.writeProblem(w, "Could not load repositories.", err)
		return
	}
	if repos == nil {
		repos = []*store.Repository{}
	}
	s.respondJSON(w, http.StatusOK, repos)
}

// HandleGetRepository returns one repository with its checks.
func (s *Server) HandleGetRepository(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.loadRepository(w, r, "Could not load repository.")
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, repo)
}

// HandleEnableCheck enables a check type on a repository.
func (s *Server) HandleEnableCheck(w http.ResponseWriter, r *http.Request) {
	const title = "Could not enable check."

	repo, ok := s.loadRepository(w, r, title)
	if !ok {
		return
	}
	user, _ := UserFromContext(r.Context())

	check, err := s.Checks.OnEnableCheck(r.Context(), user, repo, chi.URLParam(r, "type"))
	if err != nil {
		s.writeProblem(w, title, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, check)
}

// HandleDisableCheck disables a check type on a repository.
func (s *Server) HandleDisableCheck(w http.ResponseWriter, r *http.Request) {
	const title = "Could not disable check."

	repo, ok := s.loadRepository(w, r, title)
	if !ok {
		return
	}
	user, _ := UserFromContext(r.Context())

	if err := s.Checks.OnDisableCheck(r.Context(), user, repo, chi.URLParam(r, "type")); err != nil {
		s.writeProblem(w, title, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) loadRepository(w http.ResponseWriter, r *http.Request, title string) (*store.Repository, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeProblem(w, title, apperror.BadRequestf("invalid repository id %q", chi.URLParam(r, "id")))
		return nil, false
	}

	user, ok := UserFromContext(r.Context())
	if !ok {
		s.writeProblem(w, "Authentication required.", apperror.New(apperror.AuthenticationFailure, "missing user", http.StatusUnauthorized))
		return nil, false
	}

	repo, err := s.Repositories.OnGetOne(r.Context(), id, user)
	if err != nil {
		s.writeProblem(w, title, err)
		return nil, false
	}
	return repo, true
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("Failed to encode JSON response", "error", err)
	}
}

// writeProblem renders err as a problem document.
func (s *Server) writeProblem(w http.ResponseWriter, title string, err error) {
	if err := apperror.ProblemFor(title, err).Write(w); err != nil {
		s.Logger.Error("Failed to encode problem response", "error", err)
	}
}
