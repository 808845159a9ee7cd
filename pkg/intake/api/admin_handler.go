package api

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"golang.org/x/crypto/bcrypt"

	"github.com/tendant/simple-intake/pkg/intake"
)

const (
	// SessionCookie holds the admin JWT
	SessionCookie = "access_token"

	// LoginPath is where unauthenticated admin requests are sent
	LoginPath = "/login"

	adminListLimit = 100
)

// AdminConfig configures the admin panel
type AdminConfig struct {
	Store        intake.Store
	Forms        intake.Forms
	Pages        *Pages
	Username     string
	PasswordHash []byte
	SecretKey    string
	SessionTTL   time.Duration
	// SecureCookie marks the session cookie as HTTPS only
	SecureCookie bool
	Logger       *slog.Logger
}

// AdminHandler serves the login flow and the record browser
type AdminHandler struct {
	store        intake.Store
	forms        intake.Forms
	pages        *Pages
	auth         *jwtauth.JWTAuth
	username     string
	passwordHash []byte
	sessionTTL   time.Duration
	secureCookie bool
	now          func() time.Time
	logger       *slog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(config AdminConfig) (*AdminHandler, error) {
	if config.Store == nil {
		return nil, errors.New("admin panel requires a readable content backend")
	}
	if config.Pages == nil {
		return nil, errors.New("admin panel requires pages")
	}
	if config.SecretKey == "" {
		return nil, errors.New("admin panel requires a secret key")
	}
	if len(config.PasswordHash) == 0 {
		return nil, errors.New("admin panel requires a password hash")
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = 30 * time.Minute
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &AdminHandler{
		store:        config.Store,
		forms:        config.Forms,
		pages:        config.Pages,
		auth:         jwtauth.New("HS256", []byte(config.SecretKey), nil),
		username:     config.Username,
		passwordHash: config.PasswordHash,
		sessionTTL:   config.SessionTTL,
		secureCookie: config.SecureCookie,
		now:          time.Now,
		logger:       config.Logger,
	}, nil
}

// RegisterRoutes adds the login, logout and admin routes
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Get(LoginPath, h.LoginPage)
	r.Post(LoginPath, h.Login)
	r.Get("/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(jwtauth.Verify(h.auth, tokenFromSessionCookie))
		r.Use(h.requireSession)
		r.Get("/admin", h.List)
		r.Get("/admin/{collection}/{id}", h.Detail)
	})
}

func tokenFromSessionCookie(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// requireSession redirects to the login page unless a valid session token is present
func (h *AdminHandler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil || token == nil {
			http.Redirect(w, r, LoginPath, http.StatusSeeOther)
			return
		}
		if exp := token.Expiration(); !exp.IsZero() && !h.now().Before(exp) {
			http.Redirect(w, r, LoginPath, http.StatusSeeOther)
			return
		}
		if sub, _ := claims["sub"].(string); sub == "" {
			http.Redirect(w, r, LoginPath, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type loginPage struct {
	pageData
	Error string
}

// LoginPage renders the login form
func (h *AdminHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, http.StatusOK, "login.html", loginPage{pageData: pageData{Title: "Login"}})
}

// Login checks the credentials and sets the session cookie
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")

	if !h.checkCredentials(username, password) {
		h.logger.Warn("Admin login failed", "username", username, "remote", r.RemoteAddr)
		h.pages.Render(w, http.StatusUnauthorized, "login.html", loginPage{
			pageData: pageData{Title: "Login"},
			Error:    "Credenciais inválidas",
		})
		return
	}

	now := h.now()
	claims := map[string]interface{}{"sub": username}
	jwtauth.SetIssuedAt(claims, now)
	jwtauth.SetExpiry(claims, now.Add(h.sessionTTL))

	_, tokenString, err := h.auth.Encode(claims)
	if err != nil {
		h.logger.Error("Failed to sign session token", "err", err)
		h.pages.RenderError(w, http.StatusInternalServerError, "Erro ao iniciar sessão")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    tokenString,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	h.logger.Info("Admin logged in", "username", username)
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (h *AdminHandler) checkCredentials(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(h.username)) == 1
	// bcrypt runs even when the username is wrong
	passOK := bcrypt.CompareHashAndPassword(h.passwordHash, []byte(password)) == nil
	return userOK && passOK
}

// Logout clears the session cookie
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, LoginPath, http.StatusSeeOther)
}

type adminListPage struct {
	pageData
	Collections []string
	Collection  string
	Columns     []string
	Records     []intake.Record
	Error       string
}

// List shows the newest records of a collection
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	collections := h.forms.Collections()
	collection := r.URL.Query().Get("collection")
	if collection == "" && len(collections) > 0 {
		collection = defaultCollection(collections)
	}

	form, ok := h.formFor(collection)
	if !ok {
		h.pages.RenderError(w, http.StatusNotFound, "Coleção não encontrada")
		return
	}

	page := adminListPage{
		pageData:    pageData{Title: "Painel"},
		Collections: collections,
		Collection:  collection,
		Columns:     listColumns(form),
	}

	records, err := h.store.List(r.Context(), collection, intake.ListQuery{Newest: true, Limit: adminListLimit})
	if err != nil {
		h.logger.Error("Failed to list records", "collection", collection, "err", err)
		page.Error = "Não foi possível carregar os registros"
	}
	page.Records = records

	h.pages.Render(w, http.StatusOK, "admin.html", page)
}

type adminDetailPage struct {
	pageData
	Collection string
	Record     intake.Record
	Fields     []string
}

// Detail shows one record with every field
func (h *AdminHandler) Detail(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")

	form, ok := h.formFor(collection)
	if !ok {
		h.pages.RenderError(w, http.StatusNotFound, "Coleção não encontrada")
		return
	}

	record, err := h.store.Get(r.Context(), collection, id)
	if err != nil {
		if errors.Is(err, intake.ErrRecordNotFound) {
			h.pages.RenderError(w, http.StatusNotFound, "Registro não encontrado")
			return
		}
		h.logger.Error("Failed to get record", "collection", collection, "id", id, "err", err)
		h.pages.RenderError(w, http.StatusBadGateway, "Não foi possível carregar o registro")
		return
	}

	h.pages.Render(w, http.StatusOK, "detail.html", adminDetailPage{
		pageData:   pageData{Title: label(collection)},
		Collection: collection,
		Record:     record,
		Fields:     detailFields(form, record),
	})
}

func (h *AdminHandler) formFor(collection string) (intake.FormSpec, bool) {
	for _, form := range h.forms {
		if form.Collection == collection {
			return form, true
		}
	}
	return intake.FormSpec{}, false
}

// defaultCollection prefers videos, the collection the panel was built for
func defaultCollection(collections []string) string {
	for _, c := range collections {
		if c == intake.VideosForm.Collection {
			return c
		}
	}
	return collections[0]
}

func listColumns(form intake.FormSpec) []string {
	var columns []string
	for _, f := range form.Fields {
		if len(columns) == 4 {
			break
		}
		if !f.Long {
			columns = append(columns, f.Name)
		}
	}
	return columns
}

// detailFields lists the form fields first, then any extra backend fields
func detailFields(form intake.FormSpec, record intake.Record) []string {
	fields := form.FieldNames()
	known := map[string]bool{intake.FieldID: true, intake.FieldDatetime: true}
	for _, f := range fields {
		known[f] = true
	}
	fields = append(fields, intake.FieldIP)
	known[intake.FieldIP] = true

	var extra []string
	for k := range record {
		if !known[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(fields, extra...)
}
