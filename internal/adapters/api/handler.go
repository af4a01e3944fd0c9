package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/storyweave/consentd/internal/core/domain"
	"github.com/storyweave/consentd/internal/core/ports"
)

// APIHandler handles HTTP requests for the consent and revocation subsystem.
type APIHandler struct {
	tokens      ports.TokenService
	webhooks    ports.WebhookService
	revocations ports.RevocationService
	audit       ports.AuditService
	keys        ports.APIKeyRepository
	repo        ports.Repository
	cache       ports.ValidationCache // optional, health check only
}

// NewAPIHandler creates and returns a new APIHandler instance.
func NewAPIHandler(
	tokens ports.TokenService,
	webhooks ports.WebhookService,
	revocations ports.RevocationService,
	audit ports.AuditService,
	repo ports.Repository,
	cache ports.ValidationCache,
) *APIHandler {
	return &APIHandler{
		tokens:      tokens,
		webhooks:    webhooks,
		revocations: revocations,
		audit:       audit,
		keys:        repo,
		repo:        repo,
		cache:       cache,
	}
}

// RegisterRoutes registers the API routes with the provided ServeMux.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	// Public Routes
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /metrics", h.Metrics)

	// The validate endpoint is hit on every embed render; rate limit per IP.
	validateLimiter := newRateLimiter(50, 100)
	mux.Handle("GET /embed/validate", validateLimiter.Middleware(http.HandlerFunc(h.ValidateEmbed)))

	// Middleware
	auth := AuthMiddleware(h.keys)
	writer := RequireRole(domain.RoleAdmin, domain.RoleWriter)
	admin := RequireRole(domain.RoleAdmin)

	// Protected Routes (actor and app asserted by the auth key)
	mux.Handle("POST /tokens", auth(writer(http.HandlerFunc(h.IssueToken))))
	mux.Handle("GET /tokens", auth(http.HandlerFunc(h.ListTokens)))
	mux.Handle("DELETE /tokens/{id}", auth(writer(http.HandlerFunc(h.RevokeToken))))

	mux.Handle("GET /revocation/preview", auth(http.HandlerFunc(h.PreviewRevocation)))
	mux.Handle("POST /revocation", auth(writer(http.HandlerFunc(h.ExecuteRevocation))))
	mux.Handle("POST /consent/withdraw", auth(writer(http.HandlerFunc(h.WithdrawConsent))))

	mux.Handle("POST /webhooks", auth(admin(http.HandlerFunc(h.CreateWebhook))))
	mux.Handle("GET /webhooks", auth(http.HandlerFunc(h.ListWebhooks)))
	mux.Handle("PATCH /webhooks/{id}", auth(admin(http.HandlerFunc(h.UpdateWebhook))))
	mux.Handle("DELETE /webhooks/{id}", auth(admin(http.HandlerFunc(h.DeleteWebhook))))
	mux.Handle("POST /webhooks/{id}/test", auth(admin(http.HandlerFunc(h.TestWebhook))))
	mux.Handle("GET /webhooks/{id}/deliveries", auth(http.HandlerFunc(h.ListWebhookDeliveries)))

	mux.Handle("GET /audit-logs", auth(http.HandlerFunc(h.ListAuditLogs)))
}

// Metrics handles Prometheus metrics scraping requests.
func (h *APIHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// HealthCheck handles health check requests.
func (h *APIHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "UP"
	details := make(map[string]string)

	if err := h.repo.Ping(r.Context()); err != nil {
		status = "DEGRADED"
		details["database"] = err.Error()
	} else {
		details["database"] = "OK"
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "DEGRADED"
			details["cache"] = err.Error()
		} else {
			details["cache"] = "OK"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if status == "DEGRADED" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	writeBody(w, map[string]any{"status": status, "details": details})
}

type issueTokenRequest struct {
	ContentID       string   `json:"contentId"`
	Domains         []string `json:"domains"`
	ExpiresInDays   *int     `json:"expiresInDays,omitempty"`
	AllowAnalytics  bool     `json:"allowAnalytics,omitempty"`
	ShowAttribution bool     `json:"showAttribution,omitempty"`
	CustomStyle     string   `json:"customStyle,omitempty"`
}

type issueTokenResponse struct {
	Token                  string     `json:"token"`
	TokenID                string     `json:"tokenId"`
	ExpiresAt              *time.Time `json:"expiresAt,omitempty"`
	AllowedDomains         []string   `json:"allowedDomains"`
	EmbedURL               string     `json:"embedUrl"`
	ConsentRenewalRequired bool       `json:"consentRenewalRequired,omitempty"`
}

func (h *APIHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ContentID == "" {
		http.Error(w, "contentId is required", http.StatusBadRequest)
		return
	}

	actorID, ok := actorFromContext(w, r)
	if !ok {
		return
	}

	issued, err := h.tokens.Issue(r.Context(), ports.IssueTokenInput{
		ContentID:       req.ContentID,
		OwnerID:         actorID,
		Domains:         req.Domains,
		TTLDays:         req.ExpiresInDays,
		AllowAnalytics:  req.AllowAnalytics,
		ShowAttribution: req.ShowAttribution,
		CustomStyle:     req.CustomStyle,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, issueTokenResponse{
		Token:                  issued.Secret,
		TokenID:                issued.Token.ID,
		ExpiresAt:              issued.Token.ExpiresAt,
		AllowedDomains:         issued.Token.AllowedDomains,
		EmbedURL:               issued.EmbedURL,
		ConsentRenewalRequired: issued.ConsentRenewalRequired,
	})
}

func (h *APIHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	contentID := r.URL.Query().Get("contentId")
	if contentID == "" {
		http.Error(w, "contentId is required", http.StatusBadRequest)
		return
	}
	actorID, ok := actorFromContext(w, r)
	if !ok {
		return
	}

	tokens, err := h.tokens.ListActive(r.Context(), contentID, actorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if tokens == nil {
		tokens = []domain.EmbedToken{}
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (h *APIHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	tokenID := r.PathValue("id")
	reason := r.URL.Query().Get("reason")
	actorID, ok := actorFromContext(w, r)
	if !ok {
		return
	}

	newlyRevoked, err := h.tokens.Revoke(r.Context(), tokenID, actorID, reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revoked": true, "newlyRevoked": newlyRevoked})
}

// ValidateEmbed is called by the content-serving path on every embed render.
// All validation failures collapse into a generic "not accessible" response;
// the distinct causes are logged and counted internally.
func (h *APIHandler) ValidateEmbed(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	requestDomain := r.URL.Query().Get("domain")

	contentID, err := h.tokens.Validate(r.Context(), token, requestDomain)
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) || errors.Is(err, domain.ErrTokenExpired) ||
			errors.Is(err, domain.ErrTokenRevoked) || errors.Is(err, domain.ErrDomainMismatch) {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "not_accessible"})
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"contentId": contentID})
}

func (h *APIHandler) PreviewRevocation(w http.ResponseWriter, r *http.Request) {
	contentID := r.URL.Query().Get("contentId")
	if contentID == "" {
		http.Error(w, "contentId is required", http.StatusBadRequest)
		return
	}
	scope := domain.RevocationScope(r.URL.Query().Get("scope"))
	if scope == "" {
		scope = domain.ScopeAll
	}

	preview, err := h.revocations.Preview(r.Context(), contentID, scope)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

type revocationRequest struct {
	ContentID      string `json:"contentId"`
	Scope          string `json:"scope"`
	Reason         string `json:"reason,omitempty"`
	ArchiveStory   bool   `json:"archiveStory,omitempty"`
	DisableSharing bool   `json:"disableSharing,omitempty"`
	NotifyWebhooks *bool  `json:"notifyWebhooks,omitempty"` // default true
}

func (h *APIHandler) ExecuteRevocation(w http.ResponseWriter, r *http.Request) {
	var req revocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ContentID == "" {
		http.Error(w, "contentId is required", http.StatusBadRequest)
		return
	}
	actorID, ok := actorFromContext(w, r)
	if !ok {
		return
	}

	scope := domain.RevocationScope(req.Scope)
	if scope == "" {
		scope = domain.ScopeAll
	}
	notify := true
	if req.NotifyWebhooks != nil {
		notify = *req.NotifyWebhooks
	}

	result, err := h.revocations.Execute(r.Context(), req.ContentID, actorID, domain.RevocationOptions{
		Scope:          scope,
		Reason:         req.Reason,
		ArchiveStory:   req.ArchiveStory,
		DisableSharing: req.DisableSharing,
		NotifyWebhooks: notify,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type withdrawRequest struct {
	ContentID string `json:"contentId"`
	Reason    string `json:"reason,omitempty"`
}

func (h *APIHandler) WithdrawConsent(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ContentID == "" {
		http.Error(w, "contentId is required", http.StatusBadRequest)
		return
	}
	actorID, ok := actorFromContext(w, r)
	if !ok {
		return
	}

	result, err := h.revocations.WithdrawConsent(r.Context(), req.ContentID, actorID, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type createWebhookRequest struct {
	URL         string   `json:"url"`
	Events      []string `json:"events"`
	Description string   `json:"description,omitempty"`
}

func (h *APIHandler) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req createWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	appID, ok := appFromContext(w, r)
	if !ok {
		return
	}

	sub, err := h.webhooks.Subscribe(r.Context(), appID, req.URL, req.Events, req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// The signing secret is returned exactly once, at creation.
	writeJSON(w, http.StatusCreated, map[string]any{
		"subscription": sub,
		"secret":       sub.Secret,
	})
}

func (h *APIHandler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	appID, ok := appFromContext(w, r)
	if !ok {
		return
	}
	subs, err := h.webhooks.List(r.Context(), appID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if subs == nil {
		subs = []domain.WebhookSubscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

type updateWebhookRequest struct {
	Events      []string `json:"events,omitempty"`
	IsActive    *bool    `json:"isActive,omitempty"`
	Description *string  `json:"description,omitempty"`
}

func (h *APIHandler) UpdateWebhook(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req updateWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	appID, ok := appFromContext(w, r)
	if !ok {
		return
	}

	sub, err := h.webhooks.Update(r.Context(), id, appID, ports.SubscriptionUpdate{
		Events:      req.Events,
		IsActive:    req.IsActive,
		Description: req.Description,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *APIHandler) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	appID, ok := appFromContext(w, r)
	if !ok {
		return
	}
	if err := h.webhooks.Delete(r.Context(), id, appID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) TestWebhook(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	appID, ok := appFromContext(w, r)
	if !ok {
		return
	}

	if err := h.webhooks.TestFire(r.Context(), id, appID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"enqueued": 1})
}

func (h *APIHandler) ListWebhookDeliveries(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	appID, ok := appFromContext(w, r)
	if !ok {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	logs, err := h.webhooks.ListDeliveries(r.Context(), id, appID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if logs == nil {
		logs = []domain.WebhookDeliveryLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// ListAuditLogs retrieves the consent audit trail for a content record. Only
// the content owner and admin keys may read it.
func (h *APIHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	contentID := r.URL.Query().Get("contentId")
	if contentID == "" {
		http.Error(w, "contentId is required", http.StatusBadRequest)
		return
	}
	actorID, ok := actorFromContext(w, r)
	if !ok {
		return
	}

	role, _ := r.Context().Value(CtxRole).(domain.Role)
	if role != domain.RoleAdmin {
		content, err := h.repo.GetContent(r.Context(), contentID)
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if content == nil {
			writeDomainError(w, domain.ErrContentNotFound)
			return
		}
		if content.OwnerID != actorID {
			writeDomainError(w, domain.ErrOwnership)
			return
		}
	}

	logs, err := h.audit.List(r.Context(), contentID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if logs == nil {
		logs = []domain.ConsentAuditLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func actorFromContext(w http.ResponseWriter, r *http.Request) (string, bool) {
	actorID, ok := r.Context().Value(CtxActorID).(string)
	if !ok || actorID == "" {
		http.Error(w, "Unauthorized: no actor identity on API key", http.StatusUnauthorized)
		return "", false
	}
	return actorID, true
}

func appFromContext(w http.ResponseWriter, r *http.Request) (string, bool) {
	appID, ok := r.Context().Value(CtxAppID).(string)
	if !ok || appID == "" {
		http.Error(w, "Unauthorized: no app identity on API key", http.StatusUnauthorized)
		return "", false
	}
	return appID, true
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrOwnership), errors.Is(err, domain.ErrTierViolation), errors.Is(err, domain.ErrEmbedNotAllowed):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrContentNotFound), errors.Is(err, domain.ErrTokenNotFound), errors.Is(err, domain.ErrSubscriptionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrIrrevocableTier):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeBody(w, body)
}

func writeBody(w http.ResponseWriter, body any) {
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
