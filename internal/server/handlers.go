package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"promoter/internal/build"
	"promoter/internal/history"
	"promoter/internal/notify"
	"promoter/internal/promotion"
	"promoter/internal/registry"
	"promoter/internal/security"
	"promoter/internal/store"

	"github.com/go-chi/chi/v5"
)

const (
	MaxPayloadBytes     = 5_000_000 // 5 MB
	RecentHistoryLimit  = 10        // promotions returned by the status endpoint
	GenericFailureError = "Promotion failed"
)

// promoteBody is the JSON body of a promotion request. The build name and
// number come from the URL.
type promoteBody struct {
	SnapshotExpression string `json:"snapshot_expression"`
	TargetRepository   string `json:"target_repository"`
	BuildStarted       string `json:"build_started"`
	TriggeredBy        string `json:"triggered_by"`
}

// HandlePromote promotes a staged build synchronously and responds with the
// promotion result
func (s *Server) HandlePromote(w http.ResponseWriter, r *http.Request) {
	buildName := chi.URLParam(r, "buildName")
	buildNumber := chi.URLParam(r, "buildNumber")

	if err := security.ValidateBuildName(buildName); err != nil {
		s.Logger.Warn("Invalid build name in promote request", "build_name", buildName, "error", err)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Invalid build name: %v", err)})
		return
	}
	if err := security.ValidateBuildNumber(buildNumber); err != nil {
		s.Logger.Warn("Invalid build number in promote request", "build_number", buildNumber, "error", err)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Invalid build number: %v", err)})
		return
	}

	body, ok := s.readSignedJSON(w, r)
	if !ok {
		return
	}

	var payload promoteBody
	if err := json.Unmarshal(body, &payload); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload"})
		return
	}

	req := promotion.Request{
		BuildName:          buildName,
		BuildNumber:        buildNumber,
		BuildStarted:       payload.BuildStarted,
		SnapshotExpression: payload.SnapshotExpression,
		TargetRepository:   payload.TargetRepository,
		TriggeredBy:        payload.TriggeredBy,
	}
	user := UserFromContext(r.Context())
	start := time.Now()

	key := buildKey(buildName, buildNumber)
	if !s.LockManager.TryLock(key) {
		s.Logger.Warn("Promotion already in progress, rejecting", "build_name", buildName, "build_number", buildNumber)
		s.recordHistory(r.Context(), req, promotion.Result{
			Status:  http.StatusTooManyRequests,
			Message: "Promotion already in progress",
		}, user, start)
		s.respondJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Promotion already in progress"})
		return
	}
	defer s.LockManager.Unlock(key)

	res := s.Promoter.Promote(r.Context(), req)
	s.recordHistory(r.Context(), req, res, user, start)

	if res.OK() {
		s.notify(r.Context(), notify.NewEvent(req, res, user))
	}

	if res.Status >= http.StatusInternalServerError && !s.ExposeErrors {
		res.Message = GenericFailureError
	}
	s.respondJSON(w, res.Status, res)
}

// recordHistory stores the outcome of a promotion attempt
func (s *Server) recordHistory(ctx context.Context, req promotion.Request, res promotion.Result, user string, start time.Time) {
	if s.History == nil {
		return
	}

	completed := time.Now()
	duration := completed.Sub(start).Seconds()
	_, err := s.History.RecordPromotion(context.WithoutCancel(ctx), &history.PromotionRecord{
		AttemptID:       res.AttemptID,
		BuildName:       req.BuildName,
		BuildNumber:     req.BuildNumber,
		Target:          req.TargetRepository,
		StatusCode:      res.Status,
		Artifacts:       res.Artifacts,
		StartedAt:       start,
		CompletedAt:     &completed,
		DurationSeconds: &duration,
		User:            stringPtrOrNil(user),
		Message:         stringPtrOrNil(res.Message),
	})
	if err != nil {
		s.Logger.Error("Failed to record promotion history", "error", err, "build_name", req.BuildName)
	}
}

// notify announces a promotion in the background; failures are only logged
func (s *Server) notify(ctx context.Context, e notify.Event) {
	if s.Notifier.Len() == 0 {
		return
	}

	s.notifyWg.Add(1)
	go func() {
		defer s.notifyWg.Done()
		s.Notifier.Dispatch(context.WithoutCancel(ctx), e)
	}()
}

// HandleImport records a staged build document
func (s *Server) HandleImport(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readSignedJSON(w, r)
	if !ok {
		return
	}

	var b build.Build
	if err := json.Unmarshal(body, &b); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload"})
		return
	}

	for _, f := range b.Files {
		if _, err := s.Repositories.Get(f.RepoPath.Repo); err != nil {
			s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Unknown repository: %s", f.RepoPath.Repo)})
			return
		}
	}

	err := s.Builds.Import(r.Context(), &b, s.Store)
	switch {
	case err == nil:
	case errors.Is(err, registry.ErrAlreadyExists):
		s.respondJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	case errors.Is(err, registry.ErrInvalidBuild), errors.Is(err, store.ErrNotFound):
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	default:
		s.Logger.Error("Failed to import build", "error", err, "build_name", b.Name, "build_number", b.Number)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to import build"})
		return
	}

	s.Logger.Info("build imported", "build_name", b.Name, "build_number", b.Number, "files", len(b.Files))
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Build imported",
		"build":   b.Run(),
		"files":   len(b.Files),
	})
}

// HandleListBuilds lists the recorded runs of a build, newest first
func (s *Server) HandleListBuilds(w http.ResponseWriter, r *http.Request) {
	buildName := chi.URLParam(r, "buildName")
	if err := security.ValidateBuildName(buildName); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Invalid build name: %v", err)})
		return
	}

	runs, err := s.Builds.List(r.Context(), buildName)
	if err != nil {
		s.Logger.Error("Failed to list builds", "error", err, "build_name", buildName)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to list builds"})
		return
	}
	if len(runs) == 0 {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown build"})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"build_name": buildName,
		"runs":       runs,
	})
}

// HandleHealth handles health check requests
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":           "ok",
		"repositories":     s.Repositories.List(),
		"repository_count": s.Repositories.Count(),
	}

	s.respondJSON(w, http.StatusOK, response)
}

// HandleStatus reports the latest and recent promotions of a build
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	buildName := chi.URLParam(r, "buildName")

	if err := security.ValidateBuildName(buildName); err != nil {
		s.Logger.Warn("Invalid build name in status request", "build_name", buildName, "error", err)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Invalid build name: %v", err)})
		return
	}

	if s.History == nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "History not available"})
		return
	}

	latest, err := s.History.GetLatestPromotion(r.Context(), buildName)
	if err != nil {
		s.Logger.Error("Failed to get latest promotion", "error", err, "build_name", buildName)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch promotion status"})
		return
	}
	if latest == nil {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "No promotions recorded"})
		return
	}

	recent, err := s.History.GetPromotionHistory(r.Context(), buildName, RecentHistoryLimit)
	if err != nil {
		s.Logger.Error("Failed to get promotion history", "error", err, "build_name", buildName)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch promotion status"})
		return
	}

	s.respondJSON(w, http.StatusOK, history.BuildStatus{
		BuildName:       buildName,
		LatestPromotion: latest,
		RecentHistory:   recent,
	})
}

// HandleStatusAll reports the latest promotion of every build
func (s *Server) HandleStatusAll(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "History not available"})
		return
	}

	latest, err := s.History.GetAllBuildsStatus(r.Context())
	if err != nil {
		s.Logger.Error("Failed to get build statuses", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch promotion status"})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"builds": latest,
	})
}

// readSignedJSON reads a JSON request body and checks its signature when a
// secret is configured. It writes the error response itself.
func (s *Server) readSignedJSON(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.ContentLength > MaxPayloadBytes {
		s.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
		return nil, false
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		s.respondJSON(w, http.StatusUnsupportedMediaType, map[string]string{"error": "Invalid content type"})
		return nil, false
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxPayloadBytes+1))
	if err != nil {
		s.Logger.Error("Failed to read request body", "error", err, "path", r.URL.Path)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to read payload"})
		return nil, false
	}
	if len(body) > MaxPayloadBytes {
		s.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
		return nil, false
	}

	if s.Secret != "" && !VerifySignature(body, r.Header.Get(SignatureHeader), s.Secret) {
		s.respondJSON(w, http.StatusForbidden, map[string]string{"error": "Invalid signature"})
		return nil, false
	}

	return body, true
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("Failed to encode JSON response", "error", err)
	}
}

func stringPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
