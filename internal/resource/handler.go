package resource

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/atelier-ai/atelier/internal/permission"
	"github.com/atelier-ai/atelier/internal/platform/httpx"
	"github.com/atelier-ai/atelier/internal/shared"
	"github.com/atelier-ai/atelier/internal/team"
)

// Handler exposes one resource domain over HTTP. Both the app and dataset
// routers are instances of it; only the Domain differs.
type Handler struct {
	domain   Domain
	lister   *Lister
	perm     *permission.Service
	teams    *team.Service
	validate *validator.Validate
}

// NewHandler constructs a handler for the domain.
func NewHandler(domain Domain, lister *Lister, perm *permission.Service, teams *team.Service) *Handler {
	return &Handler{
		domain:   domain,
		lister:   lister,
		perm:     perm,
		teams:    teams,
		validate: validator.New(),
	}
}

// Routes mounts the domain's endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}/permission", h.effectivePermission)
	r.Get("/{id}/collaborators", h.collaborators)
	r.Put("/{id}/collaborators", h.syncCollaborators)
	r.Post("/{id}/grants", h.grant)
	r.Delete("/{id}/grants", h.revoke)
	r.Put("/{id}/inherit", h.setInherit)
}

type summaryResponse struct {
	ID         int64  `json:"id"`
	ParentID   *int64 `json:"parentId"`
	Kind       string `json:"kind"`
	Name       string `json:"name"`
	Intro      string `json:"intro,omitempty"`
	Permission string `json:"permission"`
	IsOwner    bool   `json:"isOwner"`
	Private    bool   `json:"private"`
	UpdatedAt  string `json:"updatedAt"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}

	filter := ListFilter{
		TeamID:   actor.TeamID,
		MemberID: actor.MemberID,
		Kind:     r.URL.Query().Get("kind"),
		Search:   r.URL.Query().Get("searchKey"),
	}
	if raw := r.URL.Query().Get("parentId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "parentId must be an integer")
			return
		}
		filter.ParentID = &id
	}
	if filter.Kind != "" && !h.domain.ValidKind(filter.Kind) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown kind")
		return
	}

	summaries, err := h.lister.List(r.Context(), h.domain.Type, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	out := make([]summaryResponse, len(summaries))
	for i, s := range summaries {
		out[i] = summaryResponse{
			ID:         s.ID,
			ParentID:   s.ParentID,
			Kind:       s.Kind,
			Name:       s.Name,
			Intro:      s.Intro,
			Permission: s.Permission.MaxRole().String(),
			IsOwner:    s.Permission.IsOwner,
			Private:    s.Private,
			UpdatedAt:  s.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) effectivePermission(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	eff, private, err := h.perm.Evaluate(r.Context(), h.domain.Type, id, actor.TeamID, actor.MemberID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !eff.HasRead() {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"permission": eff.MaxRole().String(),
		"isOwner":    eff.IsOwner,
		"private":    private,
	})
}

type collaboratorResponse struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

func (h *Handler) collaborators(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	if !h.requireRole(w, r, id, actor, roleRead) {
		return
	}

	rows, err := h.perm.Collaborators(r.Context(), h.domain.Type, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	var memberIDs, groupIDs, orgIDs []int64
	for _, row := range rows {
		p, err := row.Principal()
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		switch p.Kind {
		case permission.PrincipalMember:
			memberIDs = append(memberIDs, p.ID)
		case permission.PrincipalGroup:
			groupIDs = append(groupIDs, p.ID)
		case permission.PrincipalOrg:
			orgIDs = append(orgIDs, p.ID)
		}
	}
	names, err := h.teams.Names(r.Context(), actor.TeamID, memberIDs, groupIDs, orgIDs)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	out := make([]collaboratorResponse, 0, len(rows))
	for _, row := range rows {
		p, _ := row.Principal()
		item := collaboratorResponse{
			Kind: string(p.Kind),
			ID:   p.ID,
			Role: row.Role.String(),
		}
		switch p.Kind {
		case permission.PrincipalMember:
			item.Name = names.Members[p.ID]
		case permission.PrincipalGroup:
			item.Name = names.Groups[p.ID]
		case permission.PrincipalOrg:
			item.Name = names.Orgs[p.ID]
		}
		out = append(out, item)
	}
	sortCollaborators(out)
	httpx.JSON(w, http.StatusOK, out)
}

// sortCollaborators orders members before groups before orgs, each block
// collated by display name.
func sortCollaborators(items []collaboratorResponse) {
	rank := map[string]int{
		string(permission.PrincipalMember): 0,
		string(permission.PrincipalGroup):  1,
		string(permission.PrincipalOrg):    2,
	}
	coll := collate.New(language.Und, collate.IgnoreCase)
	sort.SliceStable(items, func(i, j int) bool {
		if rank[items[i].Kind] != rank[items[j].Kind] {
			return rank[items[i].Kind] < rank[items[j].Kind]
		}
		return coll.CompareString(items[i].Name, items[j].Name) < 0
	})
}

type grantPayload struct {
	Kind string `json:"kind" validate:"required,oneof=member group org"`
	ID   int64  `json:"id" validate:"required,gt=0"`
	Role string `json:"role" validate:"required,oneof=read write manage"`
}

type syncPayload struct {
	Collaborators []grantPayload `json:"collaborators" validate:"required,dive"`
}

func (h *Handler) syncCollaborators(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	if !h.requireRole(w, r, id, actor, roleManage) {
		return
	}

	var payload syncPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	desired := make([]permission.Grant, len(payload.Collaborators))
	for i, c := range payload.Collaborators {
		role, _ := permission.ParseRole(c.Role)
		desired[i] = permission.Grant{
			Principal: permission.Principal{Kind: permission.PrincipalKind(c.Kind), ID: c.ID},
			Role:      role,
		}
	}

	if err := h.perm.Sync(r.Context(), h.domain.Type, id, desired, actor.MemberID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"synced": len(desired)})
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	if !h.requireRole(w, r, id, actor, roleManage) {
		return
	}

	var payload grantPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	role, _ := permission.ParseRole(payload.Role)
	p := permission.Principal{Kind: permission.PrincipalKind(payload.Kind), ID: payload.ID}
	if err := h.perm.Grant(r.Context(), h.domain.Type, id, actor.TeamID, p, role, actor.MemberID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"granted": p.String()})
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	if !h.requireRole(w, r, id, actor, roleManage) {
		return
	}

	kind := r.URL.Query().Get("kind")
	principalID, err := strconv.ParseInt(r.URL.Query().Get("principalId"), 10, 64)
	if err != nil || (kind != "member" && kind != "group" && kind != "org") {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "kind and principalId are required")
		return
	}

	p := permission.Principal{Kind: permission.PrincipalKind(kind), ID: principalID}
	if err := h.perm.Revoke(r.Context(), h.domain.Type, id, actor.TeamID, p, actor.MemberID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"revoked": p.String()})
}

type inheritPayload struct {
	Inherit *bool `json:"inherit" validate:"required"`
}

func (h *Handler) setInherit(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	if !h.requireRole(w, r, id, actor, roleManage) {
		return
	}

	var payload inheritPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	if err := h.perm.SetInherit(r.Context(), h.domain.Type, id, *payload.Inherit, actor.MemberID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"inherit": *payload.Inherit})
}

func (h *Handler) requestScope(w http.ResponseWriter, r *http.Request) (shared.Actor, int64, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return shared.Actor{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return shared.Actor{}, 0, false
	}
	return actor, id, true
}

type requiredRole int

const (
	roleRead requiredRole = iota
	roleManage
)

// requireRole evaluates the actor on the resource and enforces the needed
// ability. Lacking read reads as not-found, never as forbidden.
func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, id int64, actor shared.Actor, need requiredRole) bool {
	eff, _, err := h.perm.Evaluate(r.Context(), h.domain.Type, id, actor.TeamID, actor.MemberID)
	if err != nil {
		httpx.RespondError(w, err)
		return false
	}
	switch need {
	case roleManage:
		if !eff.HasManage() {
			httpx.RespondError(w, shared.ErrNotFound)
			return false
		}
	default:
		if !eff.HasRead() {
			httpx.RespondError(w, shared.ErrNotFound)
			return false
		}
	}
	return true
}
