package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/scorpionhol/pointage/internal/adapters/db/sqlite"
	"github.com/scorpionhol/pointage/internal/application"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "pointage_test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := sqlite.RunMigrations(ctx, db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	service := application.NewAttendanceService(sqlite.NewAttendanceRepository(db))
	if err := service.BootstrapAdmin(ctx, "admin", "1234"); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	badge := "A123"
	if _, err := service.CreateAgent(ctx, "Alice", "Comptable", &badge); err != nil {
		t.Fatalf("create agent: %v", err)
	}
	return NewRouter(service)
}

func postForm(t *testing.T, router http.Handler, path string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func loginSession(t *testing.T, router http.Handler) *http.Cookie {
	t.Helper()
	rec := postForm(t, router, "/login", url.Values{"username": {"admin"}, "password": {"1234"}}, nil)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/dashboard" {
		t.Fatalf("login failed: %d -> %s", rec.Code, rec.Header().Get("Location"))
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == "pt_session" && c.Value != "" {
			return c
		}
	}
	t.Fatalf("no session cookie set")
	return nil
}

func TestLoginFlow(t *testing.T) {
	router := newTestRouter(t)

	rec := postForm(t, router, "/login", url.Values{"username": {"admin"}, "password": {"wrong"}}, nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); !strings.HasPrefix(loc, "/login?error=") {
		t.Fatalf("bad credentials must bounce back to login, got %s", loc)
	}

	cookie := loginSession(t, router)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(cookie)
	dash := httptest.NewRecorder()
	router.ServeHTTP(dash, req)
	if dash.Code != http.StatusOK {
		t.Fatalf("dashboard with session: expected 200, got %d", dash.Code)
	}

	anon := httptest.NewRecorder()
	router.ServeHTTP(anon, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if anon.Code != http.StatusSeeOther || anon.Header().Get("Location") != "/login" {
		t.Fatalf("anonymous dashboard must redirect to login, got %d -> %s", anon.Code, anon.Header().Get("Location"))
	}
}

func TestBadgeuseRedirects(t *testing.T) {
	router := newTestRouter(t)
	cookie := loginSession(t, router)

	rec := postForm(t, router, "/badgeuse", url.Values{"badge": {"  "}}, cookie)
	if loc := rec.Header().Get("Location"); loc != "/badgeuse?error="+url.QueryEscape("Code badge obligatoire") {
		t.Fatalf("blank badge: unexpected redirect %s", loc)
	}

	rec = postForm(t, router, "/badgeuse", url.Values{"badge": {"NOPE"}}, cookie)
	if loc := rec.Header().Get("Location"); loc != "/badgeuse?error="+url.QueryEscape("Aucun agent trouve pour ce badge") {
		t.Fatalf("unknown badge: unexpected redirect %s", loc)
	}

	rec = postForm(t, router, "/badgeuse", url.Values{"badge": {"A123"}, "type": {"arrivee"}}, cookie)
	if loc := rec.Header().Get("Location"); loc != "/badgeuse?message="+url.QueryEscape("Pointage enregistre pour Alice") {
		t.Fatalf("valid badge: unexpected redirect %s", loc)
	}
}

func TestCreateAgentFormErrors(t *testing.T) {
	router := newTestRouter(t)
	cookie := loginSession(t, router)

	rec := postForm(t, router, "/agents", url.Values{"nom": {""}, "poste": {""}}, cookie)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank fields: expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Nom et poste requis.") {
		t.Fatalf("blank fields: unexpected body %q", rec.Body.String())
	}

	// Alice already owns matricule A123; the unique index must surface as a
	// storage failure, not as the field-validation message.
	rec = postForm(t, router, "/agents", url.Values{"nom": {"Alix"}, "poste": {"RH"}, "matricule": {"A123"}}, cookie)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("duplicate matricule: expected 500, got %d (%s)", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "Nom et poste requis.") {
		t.Fatalf("duplicate matricule must not answer the validation message")
	}
}

func apiLogin(t *testing.T, router http.Handler) string {
	t.Helper()
	body := strings.NewReader(`{"username":"admin","password":"1234","token_name":"badgeuse-test"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("api login: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil || out.Token == "" {
		t.Fatalf("api login: bad body %s", rec.Body.String())
	}
	return out.Token
}

func TestAPIPunch(t *testing.T) {
	router := newTestRouter(t)

	// No bearer token.
	req := httptest.NewRequest(http.MethodPost, "/api/pointage", strings.NewReader(`{"badge":"A123"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	token := apiLogin(t, router)
	punch := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/pointage", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	if rec := punch(`{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing badge: expected 400, got %d", rec.Code)
	}
	if rec := punch(`{"badge":"NOPE"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown badge: expected 404, got %d", rec.Code)
	}

	rec = punch(`{"badge":"A123","type":"arrivee"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid punch: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var out struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil || !out.OK {
		t.Fatalf("valid punch: bad body %s", rec.Body.String())
	}

	histReq := httptest.NewRequest(http.MethodGet, "/api/historique?nom=Ali", nil)
	histReq.Header.Set("Authorization", "Bearer "+token)
	hist := httptest.NewRecorder()
	router.ServeHTTP(hist, histReq)
	if hist.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", hist.Code)
	}
	var records []struct {
		Nom     *string `json:"nom"`
		Arrivee *string `json:"arrivee"`
	}
	if err := json.Unmarshal(hist.Body.Bytes(), &records); err != nil {
		t.Fatalf("history: bad body %s", hist.Body.String())
	}
	if len(records) != 1 || records[0].Nom == nil || *records[0].Nom != "Alice" || records[0].Arrivee == nil {
		t.Fatalf("history: unexpected records %s", hist.Body.String())
	}
}

func TestAPIAgentsCRUD(t *testing.T) {
	router := newTestRouter(t)
	token := apiLogin(t, router)

	call := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := call(http.MethodPost, "/api/agents", `{"nom":"Bob","poste":"Technicien","matricule":"B9"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create agent: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var created struct {
		ID  uint   `json:"id"`
		Nom string `json:"nom"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil || created.Nom != "Bob" {
		t.Fatalf("create agent: bad body %s", rec.Body.String())
	}

	if rec := call(http.MethodPost, "/api/agents", `{"nom":"","poste":""}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank agent: expected 400, got %d", rec.Code)
	}
	if rec := call(http.MethodPost, "/api/agents", `{"nom":"Bobby","poste":"Tech","matricule":"B9"}`); rec.Code != http.StatusInternalServerError {
		t.Fatalf("duplicate matricule: expected 500, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = call(http.MethodGet, "/api/agents?q=Bob", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"nom":"Bob"`) {
		t.Fatalf("list agents: %d (%s)", rec.Code, rec.Body.String())
	}

	rec = call(http.MethodDelete, "/api/agents/"+strconv.FormatUint(uint64(created.ID), 10), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete agent: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if rec := call(http.MethodDelete, "/api/agents/9999", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("delete missing agent: expected 404, got %d", rec.Code)
	}
}
