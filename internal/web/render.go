package web

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/billing"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/conversation"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/errors"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/ops"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/plan"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/viewer"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
	Nav     string // active nav item: "dashboard", "analyze", "demo", "pricing"
	User    *conversation.User
}

// AnalyzePageData is the template data for the demo and analyze pages.
type AnalyzePageData struct {
	PageData
	Form      analyzeForm
	Error     string
	Result    *ops.AnalyzeOutput
	View      *viewer.View
	Usage     *plan.Usage
	MinChars  int
	Persisted bool
}

type analyzeForm struct {
	Title        string
	Conversation string
}

// AuthPageData is the template data for the sign-in and sign-up pages.
type AuthPageData struct {
	PageData
	Email string
	Name  string
	Next  string
	Error string
}

// DashboardPageData is the template data for the dashboard.
type DashboardPageData struct {
	PageData
	Items        []conversation.Summary
	Pagination   ops.Pagination
	Usage        plan.Usage
	Subscription *conversation.Subscription
}

// ConversationPageData is the template data for the transcript viewer.
type ConversationPageData struct {
	PageData
	Conversation *conversation.Conversation
	View         viewer.View
}

// PricingPageData is the template data for the pricing page.
type PricingPageData struct {
	PageData
	Plans       []billing.PlanPrice
	CurrentPlan plan.Plan
	Enabled     bool
}

// PaymentPageData is the template data for the payment confirmation page.
type PaymentPageData struct {
	PageData
	SessionID string
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version string) *Renderer {
	funcMap := template.FuncMap{
		"add":         func(a, b int) int { return a + b },
		"prevOffset":  func(offset, limit int) int { return max(0, offset-limit) },
		"formatTime":  formatTime,
		"formatChars": formatChars,
		"formatLimit": formatLimit,
		"fraction":    func(f float64) string { return fmt.Sprintf("%.4f", f) },
	}

	// Parse layout as the base template
	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html"))

	pages := map[string]string{
		"demo":            "demo.html",
		"analyze":         "analyze.html",
		"signin":          "signin.html",
		"signup":          "signup.html",
		"dashboard":       "dashboard.html",
		"conversation":    "conversation.html",
		"pricing":         "pricing.html",
		"payment_success": "payment_success.html",
		"error":           "error.html",
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.ParseFS(templateFS, file, "topics.html"))
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		version:   version,
	}
}

// renderPage renders a named page template with the given data and HTTP 200 status.
func (r *Renderer) renderPage(w http.ResponseWriter, req *http.Request, name string, data any) {
	r.renderPageStatus(w, req, http.StatusOK, name, data)
}

// renderPageStatus renders a named page template with the given data and HTTP status code.
// For HTMX requests, only the "content" block is rendered to avoid duplicating the layout.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, req *http.Request, status int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		log.Printf("template %q not found", name)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	block := "layout"
	if req != nil && req.Header.Get("HX-Request") == "true" {
		block = "content"
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, block, data); err != nil {
		log.Printf("template execution error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// asTopicFlowError unwraps err, treating anything unrecognized as internal.
func asTopicFlowError(err error) *errors.TopicFlowError {
	var tErr *errors.TopicFlowError
	if !stderrors.As(err, &tErr) {
		tErr = errors.NewInternal(err)
	}
	return tErr
}

// wantsJSON reports whether the client should get a JSON error body.
func wantsJSON(req *http.Request) bool {
	return strings.HasPrefix(req.URL.Path, "/api/") ||
		strings.Contains(req.Header.Get("Accept"), "application/json")
}

// renderError renders an error response with content negotiation.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	tErr := asTopicFlowError(err)
	status := tErr.Status
	message := tErr.Message
	if status >= 500 {
		log.Printf("%s %s: %v", req.Method, req.URL.Path, err)
		message = "Something went wrong. Please try again."
	}

	// HTMX request: return HTML fragment
	if req.Header.Get("HX-Request") == "true" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		fmt.Fprintf(w, `<div class="error-message">%s</div>`, template.HTMLEscapeString(message))
		return
	}

	if wantsJSON(req) {
		renderJSONError(w, tErr.Code, status, message)
		return
	}

	// Full error page
	r.renderPageStatus(w, req, status, "error", ErrorPageData{
		PageData: PageData{
			Title:   fmt.Sprintf("Error %d", status),
			Version: r.version,
		},
		StatusCode: status,
		Message:    message,
	})
}

// renderJSONError writes the {"error":{code,message,status}} envelope.
func renderJSONError(w http.ResponseWriter, code errors.ErrorCode, status int, message string) {
	renderJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    string(code),
			"message": message,
			"status":  status,
		},
	})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// formatTime formats a Unix timestamp as "2006-01-02 15:04" UTC.
func formatTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04")
}

// formatLimit renders a plan quota, spelling out the unlimited sentinel.
func formatLimit(n int) string {
	if n == plan.Unlimited {
		return "Unlimited"
	}
	return formatChars(n)
}

// formatChars formats an integer with comma thousands separators.
func formatChars(n int) string {
	if n < 0 {
		return "-" + formatChars(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}
