package web

import (
	"context"
	"net"
	"net/http"

	"github.com/google/uuid"

	"github.com/kuitang/loginform/internal/errs"
	"github.com/kuitang/loginform/internal/loginform"
	"github.com/kuitang/loginform/internal/logutil"
	"github.com/kuitang/loginform/internal/obs"
	"github.com/kuitang/loginform/internal/ratelimit"
)

// FormCookieName identifies the visitor's form controller across requests.
const FormCookieName = "login_form_id"

// FormHandler provides HTTP handlers for the login form pages.
type FormHandler struct {
	renderer      *Renderer
	forms         *loginform.Registry
	limiter       *ratelimit.AttemptLimiter
	secureCookies bool
}

// NewFormHandler creates a new form handler.
func NewFormHandler(renderer *Renderer, forms *loginform.Registry, limiter *ratelimit.AttemptLimiter, secureCookies bool) *FormHandler {
	return &FormHandler{
		renderer:      renderer,
		forms:         forms,
		limiter:       limiter,
		secureCookies: secureCookies,
	}
}

// RegisterRoutes registers all form routes on the given mux.
func (h *FormHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.HandleIndex)
	mux.HandleFunc("GET /login", h.HandleLoginPage)
	mux.HandleFunc("POST /login", h.HandleSubmit)
	mux.HandleFunc("POST /login/fields", h.HandleFieldEdit)
}

// LoginPageData contains data for the login page.
type LoginPageData struct {
	Username     string
	Password     string
	Status       loginform.Status
	FetchedName  string
	ErrorMessage string
	CanSubmit    bool
	Submitting   bool
	ShowError    bool
}

func loginPageData(snap loginform.Snapshot) LoginPageData {
	return LoginPageData{
		Username:     snap.Username,
		Password:     snap.Password,
		Status:       snap.Status,
		FetchedName:  snap.FetchedName,
		ErrorMessage: snap.ErrorMessage,
		CanSubmit:    snap.CanSubmit,
		Submitting:   snap.Status == loginform.StatusSubmitting,
		ShowError:    snap.Status == loginform.StatusError,
	}
}

// HandleIndex redirects the landing page to the login form.
func (h *FormHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/login", http.StatusFound)
}

// HandleLoginPage handles GET /login - renders the visitor's form state.
func (h *FormHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	ctrl, _, ctx := h.formController(w, r)

	data := loginPageData(ctrl.Snapshot())
	if err := h.renderer.Render(w, "auth/login.html", data); err != nil {
		obs.From(ctx).Error("render_login_page_failed", "error", err.Error())
		h.renderer.RenderError(w, http.StatusInternalServerError, "Failed to render page")
	}
}

// HandleSubmit handles POST /login - applies the posted fields and starts a
// submission, then redirects back to the form (POST/redirect/GET). An
// over-limit client is rejected before the controller is touched; invalid
// fields make the submission a silent no-op.
func (h *FormHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctrl, _, ctx := h.formController(w, r)

	if err := r.ParseForm(); err != nil {
		h.renderer.RenderError(w, http.StatusBadRequest, "Invalid form submission")
		return
	}

	if !h.limiter.Allow(clientKey(r)) {
		obs.From(ctx).Warn("login_attempt_throttled", "client", clientKey(r))
		h.renderer.RenderError(w, errs.HTTPStatus(errs.ResourceExhausted), "Too many attempts. Please wait a moment.")
		return
	}

	obs.From(ctx).Debug("login_submit", "form", logutil.FormatFormForLog(r.PostForm))

	ctrl.SetUsername(r.PostForm.Get("username"))
	ctrl.SetPassword(r.PostForm.Get("password"))

	// The fetch outlives this request; detach cancellation but keep
	// correlation values for the resolution logs.
	ctrl.Submit(context.WithoutCancel(ctx))

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// HandleFieldEdit handles POST /login/fields - applies field edits without
// submitting. This is the per-keystroke edit path: it clears a displayed
// error and discards a stale fetched name.
func (h *FormHandler) HandleFieldEdit(w http.ResponseWriter, r *http.Request) {
	ctrl, _, ctx := h.formController(w, r)

	if err := r.ParseForm(); err != nil {
		h.renderer.RenderError(w, http.StatusBadRequest, "Invalid form submission")
		return
	}

	obs.From(ctx).Debug("login_field_edit", "form", logutil.FormatFormForLog(r.PostForm))

	if values, ok := r.PostForm["username"]; ok && len(values) > 0 {
		ctrl.SetUsername(values[0])
	}
	if values, ok := r.PostForm["password"]; ok && len(values) > 0 {
		ctrl.SetPassword(values[0])
	}

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// formController resolves the visitor's controller from the form cookie,
// minting a new form id (a fresh "mount") when none is present.
func (h *FormHandler) formController(w http.ResponseWriter, r *http.Request) (*loginform.Controller, string, context.Context) {
	formID := ""
	if cookie, err := r.Cookie(FormCookieName); err == nil {
		if _, parseErr := uuid.Parse(cookie.Value); parseErr == nil {
			formID = cookie.Value
		}
	}

	if formID == "" {
		formID = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     FormCookieName,
			Value:    formID,
			Path:     "/",
			HttpOnly: true,
			Secure:   h.secureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}

	ctx := obs.WithFormID(r.Context(), formID)
	return h.forms.GetOrCreate(formID), formID, ctx
}

// clientKey derives the throttling key from the remote address.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
