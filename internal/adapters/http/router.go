package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/scorpionhol/pointage/internal/application"
	"github.com/scorpionhol/pointage/internal/domain"
)

const sessionCookieName = "pt_session"

type contextKey string

const identityKey contextKey = "identity"

type Handler struct {
	service *application.AttendanceService
}

func NewRouter(service *application.AttendanceService) http.Handler {
	h := &Handler{service: service}
	r := chi.NewRouter()

	r.Get("/login", h.handleLoginPage)
	r.Post("/login", h.handleLogin)
	r.Get("/logout", h.handleLogout)

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/login", h.handleAPILogin)
		api.With(h.requireAuthAPI).Get("/auth/whoami", h.handleAPIWhoAmI)
		api.With(h.requireAuthAPI).Post("/pointage", h.handleAPIPunch)
		api.With(h.requireAuthAPI).Get("/agents", h.handleAPIListAgents)
		api.With(h.requireAuthAPI).Post("/agents", h.handleAPICreateAgent)
		api.With(h.requireAuthAPI).Delete("/agents/{id}", h.handleAPIDeleteAgent)
		api.With(h.requireAuthAPI).Get("/agents/{id}/pointages", h.handleAPIAgentPunches)
		api.With(h.requireAuthAPI).Get("/historique", h.handleAPIHistory)
		api.With(h.requireAuthAPI).Get("/audit/logs", h.handleAPIListAuditLogs)
	})

	r.With(h.requireAuthGUI).Get("/", h.handleHomeRedirect)
	r.With(h.requireAuthGUI).Get("/dashboard", h.handleDashboard)
	r.With(h.requireAuthGUI).Get("/agents", h.handleListAgents)
	r.With(h.requireAuthGUI).Post("/agents", h.handleCreateAgent)
	r.With(h.requireAuthGUI).Post("/agents/{id}/delete", h.handleDeleteAgent)
	r.With(h.requireAuthGUI).Get("/pointage/{id}", h.handleDashboardPunch)
	r.With(h.requireAuthGUI).Get("/badgeuse", h.handleBadgeusePage)
	r.With(h.requireAuthGUI).Post("/badgeuse", h.handleBadgeuseSubmit)
	r.With(h.requireAuthGUI).Get("/historique", h.handleHistory)

	return r
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	msg := r.URL.Query().Get("error")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<form method="post" action="/login"><p>%s</p><input name="username"><input name="password" type="password"><button>Connexion</button></form>`, html.EscapeString(msg))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	username := strings.TrimSpace(r.Form.Get("username"))
	password := r.Form.Get("password")

	_, token, err := h.service.LoginWithSession(r.Context(), username, password, 2*time.Hour)
	if err != nil {
		http.Redirect(w, r, "/login?error="+url.QueryEscape("Identifiants invalides."), http.StatusSeeOther)
		return
	}

	h.setSessionCookie(w, token)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(sessionCookieName)
	if err == nil && c.Value != "" {
		_ = h.service.LogoutSession(r.Context(), c.Value)
	}
	h.clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) handleHomeRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	agents, err := h.service.ListAgents(r.Context(), "", 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

func (h *Handler) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.service.ListAgents(r.Context(), r.URL.Query().Get("q"), 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

func (h *Handler) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	nom := r.Form.Get("nom")
	poste := r.Form.Get("poste")
	var matricule *string
	if v := r.Form.Get("matricule"); v != "" {
		matricule = &v
	}

	agent, err := h.service.CreateAgent(r.Context(), nom, poste, matricule)
	switch {
	case errors.Is(err, domain.ErrAgentFieldsRequired):
		http.Error(w, "Nom et poste requis.", http.StatusBadRequest)
		return
	case err != nil:
		// Constraint violations (duplicate matricule) are storage errors.
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	h.writeAudit(r.Context(), "agent.create", "agent", &agent.ID)
	http.Redirect(w, r, "/agents", http.StatusSeeOther)
}

func (h *Handler) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.service.DeleteAgent(r.Context(), id); err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	h.writeAudit(r.Context(), "agent.delete", "agent", &id)
	http.Redirect(w, r, "/agents", http.StatusSeeOther)
}

func (h *Handler) handleDashboardPunch(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	agent, err := h.service.RecordDashboardPunch(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	h.writeAudit(r.Context(), "punch.dashboard", "agent", &agent.ID)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *Handler) handleBadgeusePage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w,
		`<p>%s</p><p>%s</p><form method="post" action="/badgeuse"><input name="badge"><input name="type"><button>Pointer</button></form>`,
		html.EscapeString(q.Get("message")), html.EscapeString(q.Get("error")))
}

// handleBadgeuseSubmit keeps the virtual badge contract: every outcome is a
// redirect back to the form with a message or error query parameter.
func (h *Handler) handleBadgeuseSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/badgeuse?error="+url.QueryEscape("Formulaire invalide"), http.StatusSeeOther)
		return
	}
	badge := r.Form.Get("badge")
	punchType := r.Form.Get("type")

	agent, err := h.service.RecordPunch(r.Context(), badge, punchType, application.SourceVirtualBadge)
	switch {
	case errors.Is(err, domain.ErrBadgeRequired):
		http.Redirect(w, r, "/badgeuse?error="+url.QueryEscape("Code badge obligatoire"), http.StatusSeeOther)
		return
	case errors.Is(err, domain.ErrAgentNotFound):
		http.Redirect(w, r, "/badgeuse?error="+url.QueryEscape("Aucun agent trouve pour ce badge"), http.StatusSeeOther)
		return
	case err != nil:
		http.Redirect(w, r, "/badgeuse?error="+url.QueryEscape("Erreur serveur : "+err.Error()), http.StatusSeeOther)
		return
	}

	h.writeAudit(r.Context(), "punch.badgeuse", "agent", &agent.ID)
	http.Redirect(w, r, "/badgeuse?message="+url.QueryEscape("Pointage enregistre pour "+agent.Name), http.StatusSeeOther)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.BuildHistory(r.Context(), r.URL.Query().Get("nom"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"historique": records})
}

func (h *Handler) handleAPILogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username  string `json:"username"`
		Password  string `json:"password"`
		TokenName string `json:"token_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
		return
	}
	u, token, err := h.service.IssueDeviceToken(r.Context(), in.Username, in.Password, in.TokenName, nil)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "username": u.Username})
}

func (h *Handler) handleAPIWhoAmI(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"id": identity.User.ID, "username": identity.User.Username})
}

// handleAPIPunch is the physical badge endpoint: {badge, type?} in,
// {ok: true} or {error} out.
func (h *Handler) handleAPIPunch(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Badge string `json:"badge"`
		Type  string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
		return
	}

	agent, err := h.service.RecordPunch(r.Context(), in.Badge, in.Type, application.SourceBadgeAPI)
	switch {
	case errors.Is(err, domain.ErrBadgeRequired):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Code badge manquant"})
		return
	case errors.Is(err, domain.ErrAgentNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Agent inconnu pour ce badge"})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	h.writeAudit(r.Context(), "punch.api", "agent", &agent.ID)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleAPIListAgents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	agents, err := h.service.ListAgents(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (h *Handler) handleAPICreateAgent(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Nom       string  `json:"nom"`
		Poste     string  `json:"poste"`
		Matricule *string `json:"matricule"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
		return
	}
	agent, err := h.service.CreateAgent(r.Context(), in.Nom, in.Poste, in.Matricule)
	if err != nil {
		writeJSON(w, statusForError(err), map[string]any{"error": err.Error()})
		return
	}
	h.writeAudit(r.Context(), "agent.create", "agent", &agent.ID)
	writeJSON(w, http.StatusOK, agent)
}

func (h *Handler) handleAPIDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if err := h.service.DeleteAgent(r.Context(), id); err != nil {
		writeJSON(w, statusForError(err), map[string]any{"error": err.Error()})
		return
	}
	h.writeAudit(r.Context(), "agent.delete", "agent", &id)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleAPIAgentPunches(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if _, err := h.service.GetAgent(r.Context(), id); err != nil {
		writeJSON(w, statusForError(err), map[string]any{"error": err.Error()})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.service.ListAgentPunches(r.Context(), id, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.BuildHistory(r.Context(), r.URL.Query().Get("nom"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) handleAPIListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.service.ListAuditLogs(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *Handler) requireAuthGUI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := h.authenticateRequest(r)
		if !ok {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	})
}

func (h *Handler) requireAuthAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := h.authenticateRequest(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	})
}

func (h *Handler) authenticateRequest(r *http.Request) (domain.Identity, bool) {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[7:])
		identity, err := h.service.AuthenticateBearerToken(r.Context(), token)
		if err == nil {
			return identity, true
		}
	}

	c, err := r.Cookie(sessionCookieName)
	if err == nil && strings.TrimSpace(c.Value) != "" {
		identity, authErr := h.service.AuthenticateSession(r.Context(), c.Value)
		if authErr == nil {
			return identity, true
		}
	}

	return domain.Identity{}, false
}

func (h *Handler) writeAudit(ctx context.Context, action, targetType string, targetID *uint) {
	var actorUserID *uint
	if identity, ok := identityFromContext(ctx); ok {
		actorUserID = &identity.User.ID
	}
	h.service.WriteAudit(ctx, actorUserID, action, targetType, targetID, "http")
}

func identityFromContext(ctx context.Context) (domain.Identity, bool) {
	value := ctx.Value(identityKey)
	if value == nil {
		return domain.Identity{}, false
	}
	identity, ok := value.(domain.Identity)
	return identity, ok
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   false,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

func parseIDParam(r *http.Request) (uint, error) {
	raw := chi.URLParam(r, "id")
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || parsed == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return uint(parsed), nil
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrBadgeRequired), errors.Is(err, domain.ErrAgentFieldsRequired):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAgentNotFound), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrSessionExpired),
		errors.Is(err, domain.ErrTokenExpired):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
