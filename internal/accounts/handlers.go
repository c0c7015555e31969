package accounts

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/carelink/portal/internal/csrf"
	"github.com/carelink/portal/internal/logging"
	"github.com/carelink/portal/internal/middleware"
	"github.com/carelink/portal/internal/session"
	"github.com/carelink/portal/internal/utils"
)

const (
	LoginURL     = "/accounts/login/"
	SignupURL    = "/accounts/signup/"
	LogoutURL    = "/accounts/logout/"
	DashboardURL = "/accounts/dashboard/"
)

// maxMemory is how much of a multipart body is held in memory; the rest
// spills to temporary files.
const maxMemory = 1 << 20

// Renderer writes a named page.
type Renderer interface {
	Render(w io.Writer, name string, data map[string]any) error
}

type Handler struct {
	svc           *Service
	render        Renderer
	log           logging.Logger
	secureCookies bool
}

func NewHandler(svc *Service, render Renderer, log logging.Logger, secureCookies bool) *Handler {
	if log == nil {
		log = logging.Discard()
	}
	return &Handler{svc: svc, render: render, log: log, secureCookies: secureCookies}
}

func (h *Handler) page(w http.ResponseWriter, r *http.Request, status int, name string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["csrf_token"] = csrf.Token(r)
	if _, ok := data["errors"]; !ok {
		data["errors"] = FieldErrors{}
	}
	if _, ok := data["form"]; !ok {
		data["form"] = map[string]string{}
	}
	if _, ok := data["user"]; !ok {
		data["user"] = nil
	}

	var buf bytes.Buffer
	if err := h.render.Render(&buf, name, data); err != nil {
		h.log.Error(r.Context(), "render failed", "template", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	h.page(w, r, http.StatusInternalServerError, "error", nil)
}

func parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(maxMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		return r.ParseForm()
	}
	return err
}

func formError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	http.Error(w, "Invalid form submission", http.StatusBadRequest)
}

func checkbox(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

func readUpload(r *http.Request, field string) (*Upload, error) {
	// url-encoded posts carry no files
	if r.MultipartForm == nil {
		return nil, nil
	}
	f, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &Upload{Filename: hdr.Filename, Data: data}, nil
}

func (h *Handler) signupPage(w http.ResponseWriter, r *http.Request, form map[string]string, errs FieldErrors) {
	h.page(w, r, http.StatusOK, "signup", map[string]any{
		"form":   form,
		"errors": errs,
		"help":   h.svc.PasswordHelp(),
	})
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.signupPage(w, r, nil, FieldErrors{})
		return
	}

	if err := parseForm(r); err != nil {
		formError(w, err)
		return
	}

	form := SignupForm{
		Username:     r.PostFormValue("username"),
		Password1:    r.PostFormValue("password1"),
		Password2:    r.PostFormValue("password2"),
		Email:        r.PostFormValue("email"),
		FirstName:    r.PostFormValue("first_name"),
		LastName:     r.PostFormValue("last_name"),
		IsDoctor:     checkbox(r.PostFormValue("is_doctor")),
		AddressLine1: r.PostFormValue("address_line1"),
		City:         r.PostFormValue("city"),
		State:        r.PostFormValue("state"),
		Pincode:      r.PostFormValue("pincode"),
	}
	upload, err := readUpload(r, "profile_picture")
	if err != nil {
		formError(w, err)
		return
	}
	form.ProfilePicture = upload

	_, err = h.svc.Register(r.Context(), form)
	var verr *ValidationError
	if errors.As(err, &verr) {
		// passwords are never echoed back
		h.signupPage(w, r, map[string]string{
			"username":      form.Username,
			"email":         form.Email,
			"first_name":    form.FirstName,
			"last_name":     form.LastName,
			"is_doctor":     boolValue(form.IsDoctor),
			"address_line1": form.AddressLine1,
			"city":          form.City,
			"state":         form.State,
			"pincode":       form.Pincode,
		}, verr.Fields)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	http.Redirect(w, r, LoginURL, http.StatusFound)
}

func boolValue(b bool) string {
	if b {
		return "on"
	}
	return ""
}

func (h *Handler) loginPage(w http.ResponseWriter, r *http.Request, username, next string, errs FieldErrors) {
	h.page(w, r, http.StatusOK, "login", map[string]any{
		"form":   map[string]string{"username": username},
		"errors": errs,
		"next":   next,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.loginPage(w, r, "", safeNext(r.URL.Query().Get("next")), FieldErrors{})
		return
	}

	if err := parseForm(r); err != nil {
		formError(w, err)
		return
	}

	form := LoginForm{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
	}
	next := safeNext(r.PostFormValue("next"))

	var previous string
	if c, err := r.Cookie(session.CookieName); err == nil {
		previous = c.Value
	}

	sess, _, err := h.svc.Login(r.Context(), form, previous)
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		h.loginPage(w, r, form.Username, next, verr.Fields)
		return
	case errors.Is(err, ErrInvalidCredentials):
		errs := FieldErrors{}
		errs.Add(NonFieldErrors, msgInvalidLogin)
		h.loginPage(w, r, form.Username, next, errs)
		return
	case err != nil:
		h.serverError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    sess.SessionID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	if next == "" {
		next = DashboardURL
	}
	http.Redirect(w, r, next, http.StatusFound)
}

// safeNext accepts only same-site absolute paths. Browsers drop tabs and
// newlines from Location, so any control character is refused.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return ""
	}
	if strings.ContainsFunc(next, unicode.IsControl) {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return next
}

func (h *Handler) clearSession(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(session.CookieName); err == nil {
		if err := h.svc.Logout(r.Context(), c.Value); err != nil {
			h.log.Warn(r.Context(), "failed to delete session", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearSession(w, r)
	http.Redirect(w, r, LoginURL, http.StatusFound)
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		middleware.LoginRedirect(w, r, LoginURL)
		return
	}

	d, err := h.svc.Dashboard(r.Context(), userID)
	if errors.Is(err, ErrAccountNotFound) {
		h.clearSession(w, r)
		middleware.LoginRedirect(w, r, LoginURL)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	h.page(w, r, http.StatusOK, "dashboard", map[string]any{
		"user":      d.Account,
		"dashboard": d,
	})
}

// Home lists the entry points and who is logged in, if anyone.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{}
	if userID, ok := utils.GetUserIDFromContext(r.Context()); ok {
		account, err := h.svc.CurrentAccount(r.Context(), userID)
		switch {
		case err == nil:
			data["user"] = account
		case !errors.Is(err, ErrAccountNotFound):
			h.log.Warn(r.Context(), "home: account lookup failed", "error", err)
		}
	}
	h.page(w, r, http.StatusOK, "home", data)
}

// ProfileRow is one line of the staff listing.
type ProfileRow struct {
	Profile    Profile
	Role       Role
	PictureURL string
}

func (h *Handler) AdminProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.svc.ListProfiles(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	rows := make([]ProfileRow, 0, len(profiles))
	for _, p := range profiles {
		rows = append(rows, ProfileRow{
			Profile:    p,
			Role:       RoleOf(p),
			PictureURL: h.svc.MediaURL(p.ProfilePicture),
		})
	}
	h.page(w, r, http.StatusOK, "admin_profiles", map[string]any{"profiles": rows})
}
