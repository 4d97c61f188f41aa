package registry

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warden-authz/warden/internal/platform/httpx"
)

// Handler exposes the catalog over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/modules", h.listModules)
	r.Post("/modules", h.createModule)
	r.Get("/modules/{moduleKey}", h.getModule)
	r.Put("/modules/{moduleKey}", h.updateModule)
	r.Delete("/modules/{moduleKey}", h.deleteModule)
	r.Post("/modules/reorder", h.reorderModules)
	r.Get("/modules/{moduleKey}/pages", h.listPages)
	r.Post("/modules/{moduleKey}/pages", h.createPage)
	r.Delete("/pages/{pageKey}", h.deletePage)
	r.Get("/pages/{pageKey}/components", h.listComponents)
	r.Post("/pages/{pageKey}/components", h.createComponent)
	r.Delete("/components/{componentKey}", h.deleteComponent)
}

type moduleView struct {
	Key              string    `json:"key"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	AvailableToRoles []string  `json:"available_to_roles"`
	SortOrder        int       `json:"sort_order"`
	Active           bool      `json:"active"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toModuleView(m Module) moduleView {
	return moduleView{
		Key:              m.Key,
		Name:             m.Name,
		Description:      m.Description,
		AvailableToRoles: m.AvailableToRoles,
		SortOrder:        m.SortOrder,
		Active:           m.Active,
		UpdatedAt:        m.UpdatedAt,
	}
}

func (h *Handler) listModules(w http.ResponseWriter, r *http.Request) {
	var (
		modules []Module
		err     error
	)
	if role := r.URL.Query().Get("role"); role != "" {
		modules, err = h.service.ListModulesForRole(r.Context(), role)
	} else {
		modules, err = h.service.ListModules(r.Context())
	}
	if err != nil {
		h.logger.Error("list modules", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]moduleView, len(modules))
	for i, m := range modules {
		views[i] = toModuleView(m)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"modules": views})
}

func (h *Handler) getModule(w http.ResponseWriter, r *http.Request) {
	module, err := h.service.GetModule(r.Context(), chi.URLParam(r, "moduleKey"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toModuleView(module))
}

type moduleRequest struct {
	Key              string   `json:"key" validate:"required,max=80"`
	Name             string   `json:"name" validate:"required,max=120"`
	Description      string   `json:"description" validate:"max=500"`
	AvailableToRoles []string `json:"available_to_roles"`
	SortOrder        int      `json:"sort_order"`
	Active           *bool    `json:"active"`
}

func (h *Handler) createModule(w http.ResponseWriter, r *http.Request) {
	var req moduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	module, err := h.service.CreateModule(r.Context(), actorID(r), Module{
		Key:              req.Key,
		Name:             req.Name,
		Description:      req.Description,
		AvailableToRoles: req.AvailableToRoles,
		SortOrder:        req.SortOrder,
		Active:           active,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toModuleView(module))
}

func (h *Handler) updateModule(w http.ResponseWriter, r *http.Request) {
	var req moduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	module, err := h.service.UpdateModule(r.Context(), actorID(r), Module{
		Key:              chi.URLParam(r, "moduleKey"),
		Name:             req.Name,
		Description:      req.Description,
		AvailableToRoles: req.AvailableToRoles,
		SortOrder:        req.SortOrder,
		Active:           active,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toModuleView(module))
}

func (h *Handler) deleteModule(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteModule(r.Context(), actorID(r), chi.URLParam(r, "moduleKey")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reorderRequest struct {
	Orders []Reorder `json:"orders" validate:"required,min=1,dive"`
}

func (h *Handler) reorderModules(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.ReorderModules(r.Context(), actorID(r), req.Orders); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pageView struct {
	Key       string `json:"key"`
	ModuleKey string `json:"module_key"`
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order"`
	Active    bool   `json:"active"`
}

func (h *Handler) listPages(w http.ResponseWriter, r *http.Request) {
	pages, err := h.service.ListPages(r.Context(), chi.URLParam(r, "moduleKey"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]pageView, len(pages))
	for i, p := range pages {
		views[i] = pageView{Key: p.Key, ModuleKey: p.ModuleKey, Name: p.Name, SortOrder: p.SortOrder, Active: p.Active}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"pages": views})
}

type pageRequest struct {
	Key       string `json:"key" validate:"required,max=160"`
	Name      string `json:"name" validate:"required,max=120"`
	SortOrder int    `json:"sort_order"`
	Active    *bool  `json:"active"`
}

func (h *Handler) createPage(w http.ResponseWriter, r *http.Request) {
	var req pageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	page, err := h.service.CreatePage(r.Context(), actorID(r), Page{
		ModuleKey: chi.URLParam(r, "moduleKey"),
		Key:       req.Key,
		Name:      req.Name,
		SortOrder: req.SortOrder,
		Active:    active,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, pageView{Key: page.Key, ModuleKey: page.ModuleKey, Name: page.Name, SortOrder: page.SortOrder, Active: page.Active})
}

func (h *Handler) deletePage(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePage(r.Context(), actorID(r), chi.URLParam(r, "pageKey")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type componentView struct {
	Key       string `json:"key"`
	PageKey   string `json:"page_key"`
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order"`
	Active    bool   `json:"active"`
}

func (h *Handler) listComponents(w http.ResponseWriter, r *http.Request) {
	components, err := h.service.ListComponents(r.Context(), chi.URLParam(r, "pageKey"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]componentView, len(components))
	for i, c := range components {
		views[i] = componentView{Key: c.Key, PageKey: c.PageKey, Name: c.Name, SortOrder: c.SortOrder, Active: c.Active}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"components": views})
}

type componentRequest struct {
	Key       string `json:"key" validate:"required,max=240"`
	Name      string `json:"name" validate:"required,max=120"`
	SortOrder int    `json:"sort_order"`
	Active    *bool  `json:"active"`
}

func (h *Handler) createComponent(w http.ResponseWriter, r *http.Request) {
	var req componentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	component, err := h.service.CreateComponent(r.Context(), actorID(r), Component{
		PageKey:   chi.URLParam(r, "pageKey"),
		Key:       req.Key,
		Name:      req.Name,
		SortOrder: req.SortOrder,
		Active:    active,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, componentView{Key: component.Key, PageKey: component.PageKey, Name: component.Name, SortOrder: component.SortOrder, Active: component.Active})
}

func (h *Handler) deleteComponent(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteComponent(r.Context(), actorID(r), chi.URLParam(r, "componentKey")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return id
}
