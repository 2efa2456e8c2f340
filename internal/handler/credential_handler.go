package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/smsh73/SNSMONAI-sub000/internal/domain"
	"github.com/smsh73/SNSMONAI-sub000/internal/store"
)

// CredentialHandler serves credential administration. Secrets are never
// returned unmasked.
type CredentialHandler struct {
	store  store.CredentialStore
	logger *slog.Logger
}

// NewCredentialHandler creates a new CredentialHandler.
func NewCredentialHandler(s store.CredentialStore, logger *slog.Logger) *CredentialHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialHandler{store: s, logger: logger}
}

// CreateCredentialRequest is the body of POST /v1/credentials.
type CreateCredentialRequest struct {
	Name     string `json:"name"`
	Provider string `json:"provider" binding:"required"`
	Secret   string `json:"secret" binding:"required"`

	// IsActive defaults to true when omitted.
	IsActive *bool `json:"is_active"`
}

// ValidateCredentialRequest is the body of POST /v1/credentials/validate.
type ValidateCredentialRequest struct {
	Provider string `json:"provider" binding:"required"`
	Secret   string `json:"secret" binding:"required"`
}

// HandleList handles GET /v1/credentials?provider=&active=.
func (h *CredentialHandler) HandleList(c *gin.Context) {
	var filter store.Filter

	if p := c.Query("provider"); p != "" {
		provider, err := domain.ParseProviderType(p)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody("invalid_provider", err.Error()))
			return
		}
		filter.Provider = provider
	}
	if a := c.Query("active"); a != "" {
		active, err := strconv.ParseBool(a)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody("invalid_query", "active must be true or false"))
			return
		}
		filter.ActiveOnly = active
	}

	creds, err := h.store.List(c.Request.Context(), filter)
	if err != nil {
		h.storeError(c, "list", err)
		return
	}

	masked := make([]domain.Credential, len(creds))
	for i, cred := range creds {
		masked[i] = cred.Masked()
	}
	c.JSON(http.StatusOK, gin.H{"credentials": masked, "count": len(masked)})
}

// HandleGet handles GET /v1/credentials/:id.
func (h *CredentialHandler) HandleGet(c *gin.Context) {
	cred, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.storeError(c, "get", err)
		return
	}
	c.JSON(http.StatusOK, cred.Masked())
}

// HandleCreate handles POST /v1/credentials. Malformed secrets are rejected here.
func (h *CredentialHandler) HandleCreate(c *gin.Context) {
	var body CreateCredentialRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid_request", "Invalid request body: "+err.Error()))
		return
	}

	provider, err := domain.ParseProviderType(body.Provider)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid_provider", err.Error()))
		return
	}

	cred := domain.Credential{
		Name:     body.Name,
		Provider: provider,
		Secret:   body.Secret,
		IsActive: body.IsActive == nil || *body.IsActive,
	}
	if err := domain.ValidateCredential(cred); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid_credential", err.Error()))
		return
	}

	if err := h.store.Create(c.Request.Context(), &cred); err != nil {
		h.storeError(c, "create", err)
		return
	}

	h.logger.Info("credential created",
		slog.String("credential_id", cred.ID),
		slog.String("provider", string(cred.Provider)),
	)
	c.JSON(http.StatusCreated, cred.Masked())
}

// HandleUpdate handles PATCH /v1/credentials/:id.
func (h *CredentialHandler) HandleUpdate(c *gin.Context) {
	var patch domain.CredentialPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid_request", "Invalid request body: "+err.Error()))
		return
	}
	if patch.IsEmpty() {
		c.JSON(http.StatusBadRequest, errorBody("invalid_request", "nothing to update"))
		return
	}

	id := c.Param("id")
	ctx := c.Request.Context()

	if patch.Secret != nil {
		current, err := h.store.Get(ctx, id)
		if err != nil {
			h.storeError(c, "get", err)
			return
		}
		if err := domain.ValidateCredential(patch.Apply(current)); err != nil {
			c.JSON(http.StatusBadRequest, errorBody("invalid_credential", err.Error()))
			return
		}
	}

	updated, err := h.store.Update(ctx, id, patch)
	if err != nil {
		h.storeError(c, "update", err)
		return
	}

	h.logger.Info("credential updated",
		slog.String("credential_id", id),
		slog.Bool("active", updated.IsActive),
	)
	c.JSON(http.StatusOK, updated.Masked())
}

// HandleDelete handles DELETE /v1/credentials/:id.
func (h *CredentialHandler) HandleDelete(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		h.storeError(c, "delete", err)
		return
	}

	h.logger.Info("credential deleted", slog.String("credential_id", id))
	c.Status(http.StatusNoContent)
}

// HandleValidate handles POST /v1/credentials/validate. It never contacts the provider.
func (h *CredentialHandler) HandleValidate(c *gin.Context) {
	var body ValidateCredentialRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid_request", "Invalid request body: "+err.Error()))
		return
	}

	provider, err := domain.ParseProviderType(body.Provider)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false, "reason": err.Error()})
		return
	}

	if err := domain.ValidateCredential(domain.Credential{Provider: provider, Secret: body.Secret}); err != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false, "reason": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

func (h *CredentialHandler) storeError(c *gin.Context, op string, err error) {
	if errors.Is(err, domain.ErrCredentialNotFound) {
		c.JSON(http.StatusNotFound, errorBody("not_found", "credential not found"))
		return
	}

	h.logger.Error("credential store failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	c.JSON(http.StatusInternalServerError, errorBody("store_error", "credential store unavailable"))
}
