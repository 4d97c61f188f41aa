package permissions

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warden-authz/warden/internal/platform/httpx"
	"github.com/warden-authz/warden/internal/shared"
)

// Handler exposes the decision engine and grant administration over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/check", h.check)
	r.Post("/access", h.access)
	r.Get("/users/{userID}/snapshot", h.getSnapshot)
	r.Delete("/users/{userID}/snapshot", h.invalidateUser)
	r.Delete("/groups/{groupID}/snapshots", h.invalidateGroup)
	r.Delete("/snapshots", h.invalidateAll)
	r.Get("/groups/{groupID}/grants", h.listGrants)
	r.Post("/groups/{groupID}/grants", h.addGrant)
	r.Patch("/grants/{grantID}", h.updateGrant)
	r.Delete("/grants/{grantID}", h.removeGrant)
}

type checkRequest struct {
	UserID             int64  `json:"user_id" validate:"required"`
	PermissionType     string `json:"permission_type" validate:"required"`
	ResourceType       string `json:"resource_type" validate:"required"`
	ResourceIdentifier string `json:"resource_identifier" validate:"required"`
	Action             string `json:"action" validate:"required"`
}

type decisionResponse struct {
	Granted bool `json:"granted"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	permType, err := ParsePermissionType(req.PermissionType)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	action, err := ParseAction(req.Action)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	granted, err := h.service.HasPermission(r.Context(), req.UserID, permType, req.ResourceType, req.ResourceIdentifier, action)
	if err != nil {
		h.logger.Error("permission check", slog.Int64("user_id", req.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, decisionResponse{Granted: granted})
}

type accessRequest struct {
	UserID    int64  `json:"user_id" validate:"required"`
	Module    string `json:"module" validate:"required"`
	Page      string `json:"page"`
	Component string `json:"component"`
}

func (h *Handler) access(w http.ResponseWriter, r *http.Request) {
	var req accessRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if req.Component != "" && req.Page == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "component access requires a page")
		return
	}

	var (
		granted bool
		err     error
	)
	switch {
	case req.Component != "":
		granted, err = h.service.HasComponentAccess(r.Context(), req.UserID, req.Module, req.Page, req.Component)
	case req.Page != "":
		granted, err = h.service.HasPageAccess(r.Context(), req.UserID, req.Module, req.Page)
	default:
		granted, err = h.service.HasModuleAccess(r.Context(), req.UserID, req.Module)
	}
	if err != nil {
		h.logger.Error("access check", slog.Int64("user_id", req.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, decisionResponse{Granted: granted})
}

func (h *Handler) getSnapshot(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	snap, err := h.service.GetUserPermissions(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) invalidateUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.service.InvalidateUserPermissions(r.Context(), userID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) invalidateGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	if err := h.service.InvalidateGroupPermissions(r.Context(), groupID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) invalidateAll(w http.ResponseWriter, r *http.Request) {
	if err := h.service.InvalidateAll(r.Context()); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listGrants(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	grants, err := h.service.ListGroupGrants(r.Context(), groupID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"grants": toGrantViews(grants)})
}

type grantRequest struct {
	PermissionType     string `json:"permission_type" validate:"required"`
	ResourceType       string `json:"resource_type" validate:"required"`
	ResourceIdentifier string `json:"resource_identifier" validate:"required"`
	Action             string `json:"action" validate:"required"`
	Granted            *bool  `json:"granted" validate:"required"`
}

func (h *Handler) addGrant(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	permType, err := ParsePermissionType(req.PermissionType)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	action, err := ParseAction(req.Action)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	grant, err := h.service.AddGrant(r.Context(), actorID(r), GrantInput{
		GroupID:            groupID,
		Type:               permType,
		ResourceType:       req.ResourceType,
		ResourceIdentifier: req.ResourceIdentifier,
		Action:             action,
		Granted:            *req.Granted,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toGrantView(grant))
}

type grantUpdateRequest struct {
	Action  string `json:"action" validate:"required"`
	Granted *bool  `json:"granted" validate:"required"`
}

func (h *Handler) updateGrant(w http.ResponseWriter, r *http.Request) {
	grantID, ok := pathID(w, r, "grantID")
	if !ok {
		return
	}
	var req grantUpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	action, err := ParseAction(req.Action)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	grant, err := h.service.UpdateGrant(r.Context(), actorID(r), grantID, action, *req.Granted)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toGrantView(grant))
}

func (h *Handler) removeGrant(w http.ResponseWriter, r *http.Request) {
	grantID, ok := pathID(w, r, "grantID")
	if !ok {
		return
	}
	if err := h.service.RemoveGrant(r.Context(), actorID(r), grantID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type grantView struct {
	ID                 int64  `json:"id"`
	GroupID            int64  `json:"group_id"`
	PermissionType     string `json:"permission_type"`
	ResourceType       string `json:"resource_type"`
	ResourceIdentifier string `json:"resource_identifier"`
	Action             string `json:"action"`
	Granted            bool   `json:"granted"`
}

func toGrantView(g Grant) grantView {
	return grantView{
		ID:                 g.ID,
		GroupID:            g.GroupID,
		PermissionType:     string(g.Type),
		ResourceType:       g.ResourceType,
		ResourceIdentifier: g.ResourceIdentifier,
		Action:             string(g.Action),
		Granted:            g.Granted,
	}
}

func toGrantViews(grants []Grant) []grantView {
	views := make([]grantView, len(grants))
	for i, g := range grants {
		views[i] = toGrantView(g)
	}
	return views
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.NewValidation(param, "must be a positive integer"))
		return 0, false
	}
	return id, true
}

// actorID reads the authenticated actor from the X-Actor-ID header set by
// the fronting gateway. Zero means unattributed.
func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return id
}
