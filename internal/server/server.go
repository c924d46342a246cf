package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"openshare/internal/app"
	"openshare/internal/ratelimit"
	"openshare/internal/util"
	"openshare/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Limiter        *ratelimit.FixedWindowLimiter
	TrustedProxies *util.TrustedProxies
}

// Server exposes the HTTP JSON API for resources, reviews, and launches.
type Server struct {
	app     *app.App
	limiter *ratelimit.FixedWindowLimiter
	proxies *util.TrustedProxies
	mux     *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	s := &Server{
		app:     cfg.App,
		limiter: cfg.Limiter,
		proxies: cfg.TrustedProxies,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.HandleFunc("/resources", s.handleResources)
	s.mux.HandleFunc("/resources/", s.handleResourceByID)

	s.mux.HandleFunc("/reviews", s.handleReviews)
	s.mux.HandleFunc("/reviews/", s.handleReviewByID)

	s.mux.HandleFunc("/lti/openshare", s.handleLtiHome)
	s.mux.HandleFunc("/lti/", s.handleLaunch)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// allowWrite applies the per-IP write rate limit. Reads are never limited.
func (s *Server) allowWrite(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter == nil {
		return true
	}
	if s.limiter.Allow(util.ClientIP(r, s.proxies)) {
		return true
	}
	writeError(w, http.StatusTooManyRequests, "rate limited")
	return false
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListResources(w)
	case http.MethodPost:
		if !s.allowWrite(w, r) {
			return
		}
		s.handleCreateResource(w, r)
	default:
		methodNotAllowed(w)
	}
}

// /resources/{id} or /resources/{id}/{action}
func (s *Server) handleResourceByID(w http.ResponseWriter, r *http.Request) {
	id, action, ok := splitIDPath(r.URL.Path, "/resources/")
	if !ok {
		notFound(w)
		return
	}
	if action == "" {
		switch r.Method {
		case http.MethodGet:
			s.handleGetResource(w, id)
		case http.MethodDelete:
			if !s.allowWrite(w, r) {
				return
			}
			s.handleDeleteResource(w, id)
		default:
			methodNotAllowed(w)
		}
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowWrite(w, r) {
		return
	}
	switch action {
	case "submit-review":
		s.handleSubmitForReview(w, id)
	case "invite":
		s.handleInvite(w, r, id)
	case "versions":
		s.handleAppendVersion(w, r, id)
	case "generate-link":
		s.handleGenerateLink(w, id)
	default:
		notFound(w)
	}
}

func (s *Server) handleListResources(w http.ResponseWriter) {
	resources, err := s.app.ListResources()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": resources,
		"count": len(resources),
	})
}

type createResourceRequest struct {
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	Content           string            `json:"content"`
	AuthorName        string            `json:"authorName"`
	AuthorEmail       string            `json:"authorEmail"`
	Institution       string            `json:"institution"`
	License           string            `json:"license"`
	CollaboratorEmail string            `json:"collaboratorEmail"`
	Message           string            `json:"message"`
	Metadata          map[string]string `json:"metadata"`
}

func (s *Server) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	var req createResourceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.app.CreateResource(app.CreateResourceInput{
		Title:             req.Title,
		Description:       req.Description,
		Content:           req.Content,
		AuthorName:        req.AuthorName,
		AuthorEmail:       req.AuthorEmail,
		Institution:       req.Institution,
		License:           req.License,
		CollaboratorEmail: req.CollaboratorEmail,
		Message:           req.Message,
		Metadata:          req.Metadata,
	})
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleGetResource(w http.ResponseWriter, id uint) {
	res, invites, err := s.app.GetResource(id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resource": res,
		"invites":  invites,
	})
}

func (s *Server) handleDeleteResource(w http.ResponseWriter, id uint) {
	if err := s.app.DeleteResource(id); err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSubmitForReview(w http.ResponseWriter, id uint) {
	res, err := s.app.SubmitForReview(id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type inviteRequest struct {
	CollaboratorEmail string `json:"collaboratorEmail"`
	Message           string `json:"message"`
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request, id uint) {
	var req inviteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	invite, err := s.app.InviteCollaborator(id, req.CollaboratorEmail, req.Message)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, invite)
}

type versionRequest struct {
	Content     string            `json:"content"`
	AuthorEmail string            `json:"authorEmail"`
	Metadata    map[string]string `json:"metadata"`
}

func (s *Server) handleAppendVersion(w http.ResponseWriter, r *http.Request, id uint) {
	var req versionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	version, err := s.app.UpdateContent(id, req.Content, req.AuthorEmail, req.Metadata)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, version)
}

func (s *Server) handleGenerateLink(w http.ResponseWriter, id uint) {
	link, err := s.app.GenerateLink(id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (s *Server) handleReviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	resources, err := s.app.ListInReview()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": resources,
		"count": len(resources),
	})
}

// /reviews/{id} or /reviews/{id}/decision
func (s *Server) handleReviewByID(w http.ResponseWriter, r *http.Request) {
	id, action, ok := splitIDPath(r.URL.Path, "/reviews/")
	if !ok {
		notFound(w)
		return
	}
	switch action {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		s.handleReviewDetail(w, id)
	case "decision":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if !s.allowWrite(w, r) {
			return
		}
		s.handleDecision(w, r, id)
	default:
		notFound(w)
	}
}

func (s *Server) handleReviewDetail(w http.ResponseWriter, id uint) {
	res, reviews, err := s.app.GetReviewTarget(id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resource": res,
		"reviews":  reviews,
	})
}

type decisionRequest struct {
	Decision            string `json:"decision"`
	Comments            string `json:"comments"`
	ReviewerName        string `json:"reviewerName"`
	ReviewerEmail       string `json:"reviewerEmail"`
	ReviewerInstitution string `json:"reviewerInstitution"`
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request, id uint) {
	var req decisionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	review, err := s.app.RecordDecision(id, domain.ReviewDecision(strings.TrimSpace(req.Decision)), req.Comments, app.ReviewerIdentity{
		Name:        req.ReviewerName,
		Email:       req.ReviewerEmail,
		Institution: req.ReviewerInstitution,
	})
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

func (s *Server) handleLtiHome(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	resources, err := s.app.LtiHome()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": resources,
		"count": len(resources),
	})
}

// /lti/{id}
func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id, action, ok := splitIDPath(r.URL.Path, "/lti/")
	if !ok || action != "" {
		notFound(w)
		return
	}
	snap, err := s.app.ResolveLaunch(id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// splitIDPath parses "{prefix}{id}" and "{prefix}{id}/{action}" paths.
func splitIDPath(path, prefix string) (uint, string, bool) {
	rest := strings.TrimPrefix(path, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if parts[0] == "" {
		return 0, "", false
	}
	id, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, "", false
	}
	action := ""
	if len(parts) == 2 {
		if parts[1] == "" {
			return 0, "", false
		}
		action = parts[1]
	}
	return uint(id), action, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrNoVersions):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCode(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCode(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case strings.Contains(message, "no versions"):
		return "RESOURCE_NO_VERSIONS"
	case message == "rate limited":
		return "REQUEST_RATE_LIMITED"
	case message == "invalid json body":
		return "REQUEST_INVALID_BODY"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	}
	switch status {
	case http.StatusBadRequest:
		return "REQUEST_VALIDATION_FAILED"
	case http.StatusNotFound:
		return "RESOURCE_NOT_FOUND"
	case http.StatusConflict:
		return "RESOURCE_INVALID_STATE"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "REQUEST_RATE_LIMITED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}
