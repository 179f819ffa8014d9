package web

import (
	"database/sql"
	"encoding/json"
	"io"
	"io/fs"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/billing"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/config"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/conversation"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/db"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/errors"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/extract"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/ops"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/plan"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/session"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/viewer"
)

// maxWebhookBytes bounds a Stripe webhook body.
const maxWebhookBytes = 1 << 20

// maxTranscriptBytes bounds an analyze request body.
const maxTranscriptBytes = 4 << 20

const extractFailedMessage = "Failed to extract topics. Please try again."

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	db        *sql.DB
	cfg       *config.Config
	renderer  *Renderer
	static    fs.FS
	extractor ops.TopicExtractor
	sessions  session.Store
	billing   *billing.Service

	// secure marks session cookies Secure when served over https.
	secure bool
}

func (h *Handlers) page(r *http.Request, title, nav string) PageData {
	pd := PageData{Title: title, Version: h.renderer.version, Nav: nav}
	if sess := session.FromContext(r.Context()); sess != nil {
		pd.User = &sess.User
	}
	return pd
}

// requireSession redirects anonymous page requests to sign-in and rejects
// anonymous API calls with 401.
func (h *Handlers) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if session.FromContext(r.Context()) != nil {
			next(w, r)
			return
		}
		if wantsJSON(r) || r.Header.Get("HX-Request") == "true" {
			h.renderer.renderError(w, r, errors.NewUnauthorized("Sign in required"))
			return
		}
		http.Redirect(w, r, "/signin?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
	}
}

// HandleHome handles GET /: dashboard for signed-in users, demo otherwise.
func (h *Handlers) HandleHome(w http.ResponseWriter, r *http.Request) {
	if session.FromContext(r.Context()) != nil {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/demo", http.StatusFound)
}

// HandleDemo handles GET /demo: the analyze form without persistence.
func (h *Handlers) HandleDemo(w http.ResponseWriter, r *http.Request) {
	h.renderer.renderPage(w, r, "demo", AnalyzePageData{
		PageData: h.page(r, "Try TopicFlow", "demo"),
		MinChars: h.minChars(),
	})
}

// HandleDemoAnalyze handles POST /demo: analyze and display, nothing stored.
func (h *Handlers) HandleDemoAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTranscriptBytes)
	form := analyzeForm{Title: r.FormValue("title"), Conversation: r.FormValue("conversation")}
	data := AnalyzePageData{
		PageData: h.page(r, "Try TopicFlow", "demo"),
		Form:     form,
		MinChars: h.minChars(),
	}

	out, err := ops.Analyze(r.Context(), h.extractor, ops.AnalyzeInput{
		Conversation: form.Conversation,
		Title:        form.Title,
		MinChars:     h.cfg.MinTranscriptChars,
	})
	if err != nil {
		tErr := asTopicFlowError(err)
		data.Error = tErr.Message
		h.renderer.renderPageStatus(w, r, tErr.Status, "demo", data)
		return
	}

	view := viewer.Build(out.Title, out.ConversationContent, out.Topics)
	data.Result = out
	data.View = &view
	h.renderer.renderPage(w, r, "demo", data)
}

// extractRequest is the body of POST /api/extract-topics. Fields are
// decoded loosely so that a non-string conversation is a 400, not a decode error.
type extractRequest struct {
	Conversation any `json:"conversation"`
	Title        any `json:"title"`
}

type extractData struct {
	Topics              []extract.Topic `json:"topics"`
	ConversationSummary string          `json:"conversation_summary"`
	Title               string          `json:"title"`
	ConversationContent string          `json:"conversation_content"`
	Source              extract.Source  `json:"source"`
}

// HandleExtractTopics handles POST /api/extract-topics.
func (h *Handlers) HandleExtractTopics(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTranscriptBytes)

	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderJSONError(w, errors.ErrInvalidRequest, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	conv, ok := req.Conversation.(string)
	if !ok || conv == "" {
		renderJSONError(w, errors.ErrInvalidRequest, http.StatusBadRequest, "Conversation content is required")
		return
	}
	title, _ := req.Title.(string)

	out, err := ops.Analyze(r.Context(), h.extractor, ops.AnalyzeInput{
		Conversation: conv,
		Title:        title,
		MinChars:     h.cfg.MinTranscriptChars,
	})
	if err != nil {
		tErr := asTopicFlowError(err)
		if tErr.Status >= 500 {
			log.Printf("topic extraction error: %v", err)
			renderJSONError(w, tErr.Code, tErr.Status, extractFailedMessage)
			return
		}
		renderJSONError(w, tErr.Code, tErr.Status, tErr.Message)
		return
	}

	renderJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": extractData{
			Topics:              out.Topics,
			ConversationSummary: out.ConversationSummary,
			Title:               out.Title,
			ConversationContent: out.ConversationContent,
			Source:              out.Source,
		},
	})
}

// HandleSignInPage handles GET /signin.
func (h *Handlers) HandleSignInPage(w http.ResponseWriter, r *http.Request) {
	h.renderer.renderPage(w, r, "signin", AuthPageData{
		PageData: h.page(r, "Sign in", ""),
		Next:     safeNext(r.URL.Query().Get("next")),
	})
}

// HandleSignIn handles POST /signin.
func (h *Handlers) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	next := safeNext(r.FormValue("next"))

	sess, err := ops.SignIn(r.Context(), h.db, h.sessions, h.sessionTTL(), ops.SignInInput{
		Email:    email,
		Password: r.FormValue("password"),
	})
	if err != nil {
		tErr := asTopicFlowError(err)
		h.renderer.renderPageStatus(w, r, tErr.Status, "signin", AuthPageData{
			PageData: h.page(r, "Sign in", ""),
			Email:    email,
			Next:     next,
			Error:    tErr.Message,
		})
		return
	}

	session.SetCookie(w, sess, h.secure)
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// HandleSignUpPage handles GET /signup.
func (h *Handlers) HandleSignUpPage(w http.ResponseWriter, r *http.Request) {
	h.renderer.renderPage(w, r, "signup", AuthPageData{
		PageData: h.page(r, "Create account", ""),
	})
}

// HandleSignUp handles POST /signup.
func (h *Handlers) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	input := ops.SignUpInput{
		Email:    r.FormValue("email"),
		Name:     r.FormValue("name"),
		Password: r.FormValue("password"),
	}

	sess, err := ops.SignUp(r.Context(), h.db, h.sessions, h.sessionTTL(), input)
	if err != nil {
		tErr := asTopicFlowError(err)
		h.renderer.renderPageStatus(w, r, tErr.Status, "signup", AuthPageData{
			PageData: h.page(r, "Create account", ""),
			Email:    input.Email,
			Name:     input.Name,
			Error:    tErr.Message,
		})
		return
	}

	session.SetCookie(w, sess, h.secure)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// HandleSignOut handles POST /signout.
func (h *Handlers) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := ops.SignOut(r.Context(), h.sessions, session.FromContext(r.Context())); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	session.ClearCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleDashboard handles GET /dashboard: saved conversations and plan usage.
func (h *Handlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	list, err := ops.ListConversations(r.Context(), h.db, ops.ListInput{
		OwnerID: sess.User.ID,
		Limit:   parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset:  parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	usage, err := ops.GetUsage(r.Context(), h.db, sess.User.ID, time.Now())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	sub, err := h.subscription(r, sess.User.ID)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "dashboard", DashboardPageData{
		PageData:     h.page(r, "Dashboard", "dashboard"),
		Items:        list.Items,
		Pagination:   list.Pagination,
		Usage:        usage,
		Subscription: sub,
	})
}

// HandleAnalyzePage handles GET /analyze.
func (h *Handlers) HandleAnalyzePage(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	usage, err := ops.GetUsage(r.Context(), h.db, sess.User.ID, time.Now())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.renderer.renderPage(w, r, "analyze", AnalyzePageData{
		PageData:  h.page(r, "New analysis", "analyze"),
		Usage:     &usage,
		MinChars:  h.minChars(),
		Persisted: true,
	})
}

// HandleAnalyzeSave handles POST /analyze: analyze, save, then show the viewer.
func (h *Handlers) HandleAnalyzeSave(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTranscriptBytes)
	sess := session.FromContext(r.Context())
	form := analyzeForm{Title: r.FormValue("title"), Conversation: r.FormValue("conversation")}

	fail := func(err error) {
		tErr := asTopicFlowError(err)
		data := AnalyzePageData{
			PageData:  h.page(r, "New analysis", "analyze"),
			Form:      form,
			Error:     tErr.Message,
			MinChars:  h.minChars(),
			Persisted: true,
		}
		if tErr.Status >= 500 {
			log.Printf("analyze and save failed: %v", err)
			data.Error = extractFailedMessage
		}
		if usage, err := ops.GetUsage(r.Context(), h.db, sess.User.ID, time.Now()); err == nil {
			data.Usage = &usage
		}
		h.renderer.renderPageStatus(w, r, tErr.Status, "analyze", data)
	}

	// Reject over-quota users before calling the model.
	usage, err := ops.GetUsage(r.Context(), h.db, sess.User.ID, time.Now())
	if err != nil {
		fail(err)
		return
	}
	if usage.AtLimit() {
		fail(errors.NewQuotaExceeded(string(usage.Plan), usage.Limit))
		return
	}

	out, err := ops.Analyze(r.Context(), h.extractor, ops.AnalyzeInput{
		Conversation: form.Conversation,
		Title:        form.Title,
		MinChars:     h.cfg.MinTranscriptChars,
	})
	if err != nil {
		fail(err)
		return
	}

	saved, err := ops.Save(r.Context(), h.db, sess, ops.SaveInput{
		Title:   out.Title,
		Content: out.ConversationContent,
		Result:  out.Result(),
	})
	if err != nil {
		fail(err)
		return
	}

	http.Redirect(w, r, "/conversations/"+saved.Conversation.ID, http.StatusSeeOther)
}

// HandleConversation handles GET /conversations/{id}: the transcript viewer.
func (h *Handlers) HandleConversation(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("conversation ID is required"))
		return
	}

	out, err := ops.GetConversation(r.Context(), h.db, ops.GetConversationInput{ID: id, OwnerID: sess.User.ID})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		renderJSON(w, http.StatusOK, out)
		return
	}

	h.renderer.renderPage(w, r, "conversation", ConversationPageData{
		PageData:     h.page(r, out.Conversation.Title, "dashboard"),
		Conversation: out.Conversation,
		View:         viewer.Build(out.Conversation.Title, out.Conversation.Content, viewer.FromStored(out.Topics)),
	})
}

// HandleDeleteConversation handles DELETE /conversations/{id}.
func (h *Handlers) HandleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	result, err := ops.DeleteConversation(r.Context(), h.db, ops.DeleteInput{ID: r.PathValue("id"), OwnerID: sess.User.ID})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	// HTMX request: redirect via HX-Redirect header
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/dashboard")
		w.WriteHeader(http.StatusOK)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		renderJSON(w, http.StatusOK, result)
		return
	}

	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// HandlePricing handles GET /pricing.
func (h *Handlers) HandlePricing(w http.ResponseWriter, r *http.Request) {
	current := plan.Free
	if sess := session.FromContext(r.Context()); sess != nil {
		p, err := ops.CurrentPlan(r.Context(), h.db, sess.User.ID)
		if err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		current = p
	}

	h.renderer.renderPage(w, r, "pricing", PricingPageData{
		PageData:    h.page(r, "Pricing", "pricing"),
		Plans:       h.billing.Plans(),
		CurrentPlan: current,
		Enabled:     h.billing.Enabled(),
	})
}

// HandlePaymentSuccess handles GET /payment/success: the checkout return page.
func (h *Handlers) HandlePaymentSuccess(w http.ResponseWriter, r *http.Request) {
	h.renderer.renderPage(w, r, "payment_success", PaymentPageData{
		PageData:  h.page(r, "Payment received", "pricing"),
		SessionID: r.URL.Query().Get("session_id"),
	})
}

// HandleCreateCheckout handles POST /api/create-checkout-session. The user
// comes from the session, never from the body.
func (h *Handlers) HandleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	var body struct {
		PriceID string `json:"priceId"`
	}
	if err := decodeOptionalJSON(r, &body); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if body.PriceID == "" {
		body.PriceID = r.FormValue("priceId")
	}

	out, err := h.billing.CreateCheckoutSession(r.Context(), billing.CheckoutInput{
		PriceID: body.PriceID,
		UserID:  sess.User.ID,
		Email:   sess.User.Email,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleBillingPortal handles POST /api/billing-portal for the signed-in
// user's own Stripe customer.
func (h *Handlers) HandleBillingPortal(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	var body struct {
		ReturnURL string `json:"returnUrl"`
	}
	if err := decodeOptionalJSON(r, &body); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	sub, err := h.subscription(r, sess.User.ID)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	customerID := ""
	if sub != nil {
		customerID = sub.CustomerID
	}

	portalURL, err := h.billing.CreatePortalSession(r.Context(), customerID, h.sameOrigin(body.ReturnURL))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]string{"url": portalURL})
}

// HandleStripeWebhook handles POST /api/stripe-webhook.
func (h *Handlers) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("failed to read body"))
		return
	}

	result, err := h.billing.HandleWebhook(r.Context(), payload, r.Header.Get(billing.SignatureHeader))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// subscription returns the mirrored subscription for userID, or nil.
func (h *Handlers) subscription(r *http.Request, userID string) (*conversation.Subscription, error) {
	sub, err := db.GetSubscription(r.Context(), h.db, userID)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	return sub, err
}

func (h *Handlers) minChars() int {
	if h.cfg.MinTranscriptChars > 0 {
		return h.cfg.MinTranscriptChars
	}
	return ops.DefaultMinTranscriptChars
}

func (h *Handlers) sessionTTL() time.Duration {
	return time.Duration(h.cfg.SessionTTLHours) * time.Hour
}

// sameOrigin keeps a client-supplied return URL only if it points back at
// this app.
func (h *Handlers) sameOrigin(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, h.cfg.AppURL+"/") {
		return ""
	}
	return raw
}

// decodeOptionalJSON decodes a JSON body into v when the request has one.
func decodeOptionalJSON(r *http.Request, v any) error {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(v); err != nil && err != io.EOF {
		return errors.NewInvalidRequest("Invalid JSON body")
	}
	return nil
}

// safeNext restricts post-sign-in redirects to local paths.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/dashboard"
	}
	return next
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
