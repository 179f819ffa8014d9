package web

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/billing"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/config"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/ops"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Options carries the collaborators the web UI needs beyond the database.
type Options struct {
	Version   string
	Extractor ops.TopicExtractor
	Sessions  session.Store
	Billing   *billing.Service
}

// NewServer creates and configures the HTTP server for the TopicFlow web UI.
func NewServer(db *sql.DB, cfg *config.Config, opts Options, bind string, port int) *http.Server {
	h := newHandlers(db, cfg, opts)

	mux := http.NewServeMux()

	// Routes using Go 1.22+ pattern syntax
	mux.HandleFunc("GET /{$}", h.HandleHome)
	mux.HandleFunc("GET /demo", h.HandleDemo)
	mux.HandleFunc("POST /demo", h.HandleDemoAnalyze)
	mux.HandleFunc("GET /signin", h.HandleSignInPage)
	mux.HandleFunc("POST /signin", h.HandleSignIn)
	mux.HandleFunc("GET /signup", h.HandleSignUpPage)
	mux.HandleFunc("POST /signup", h.HandleSignUp)
	mux.HandleFunc("POST /signout", h.HandleSignOut)
	mux.HandleFunc("GET /dashboard", h.requireSession(h.HandleDashboard))
	mux.HandleFunc("GET /analyze", h.requireSession(h.HandleAnalyzePage))
	mux.HandleFunc("POST /analyze", h.requireSession(h.HandleAnalyzeSave))
	mux.HandleFunc("GET /conversations/{id}", h.requireSession(h.HandleConversation))
	mux.HandleFunc("DELETE /conversations/{id}", h.requireSession(h.HandleDeleteConversation))
	mux.HandleFunc("GET /pricing", h.HandlePricing)
	mux.HandleFunc("GET /payment/success", h.HandlePaymentSuccess)

	mux.HandleFunc("POST /api/extract-topics", h.HandleExtractTopics)
	mux.HandleFunc("POST /api/create-checkout-session", h.requireSession(h.HandleCreateCheckout))
	mux.HandleFunc("POST /api/billing-portal", h.requireSession(h.HandleBillingPortal))
	mux.HandleFunc("POST /api/stripe-webhook", h.HandleStripeWebhook)

	// Static file server
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(h.static)))

	handler := securityHeaders(h.withSession(mux))

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func newHandlers(db *sql.DB, cfg *config.Config, opts Options) *Handlers {
	// Create sub-FS for templates (strip "templates/" prefix)
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		log.Fatalf("failed to create template sub-FS: %v", err)
	}

	// Create sub-FS for static files (strip "static/" prefix)
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Fatalf("failed to create static sub-FS: %v", err)
	}

	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewSQLStore(db)
	}
	bill := opts.Billing
	if bill == nil {
		bill = billing.New(db, cfg)
	}

	return &Handlers{
		db:        db,
		cfg:       cfg,
		renderer:  NewRenderer(templateSub, opts.Version),
		static:    staticSub,
		extractor: opts.Extractor,
		sessions:  sessions,
		billing:   bill,
		secure:    strings.HasPrefix(cfg.AppURL, "https://"),
	}
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

// withSession attaches the caller's session, if any, to the request context.
func (h *Handlers) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := session.FromRequest(r.Context(), h.sessions, r)
		if err != nil {
			log.Printf("session lookup failed: %v", err)
		}
		if sess != nil {
			r = r.WithContext(session.WithContext(r.Context(), sess))
		}
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Printf("TopicFlow running at http://%s", srv.Addr)

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Printf("WARNING: Server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
