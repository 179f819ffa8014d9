package web

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/config"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/db"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/errors"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/extract"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/session"
)

// businessTranscript yields a "Business Discussion" topic from the heuristic.
var businessTranscript = "User: " + strings.Repeat("x", 150) + "\nAI: " + "business strategy " + strings.Repeat("y", 150)

type heuristicExtractor struct{}

func (heuristicExtractor) Extract(_ context.Context, transcript string) extract.Outcome {
	return extract.Outcome{Result: extract.Fallback(transcript), Source: extract.SourceHeuristic, Reason: extract.ErrNoCredentials}
}

type testApp struct {
	handler http.Handler
	db      *sql.DB
}

func setupTest(t *testing.T) *testApp {
	t.Helper()
	tmpDir := t.TempDir()
	database, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.Billing.WebhookSecret = "whsec_test"

	srv := NewServer(database, cfg, Options{Version: "test", Extractor: heuristicExtractor{}}, "127.0.0.1", 0)
	return &testApp{handler: srv.Handler, db: database}
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func postForm(path string, values url.Values, cookie *http.Cookie) *http.Request {
	req := httptest.NewRequest("POST", path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func get(path string, cookie *http.Cookie) *http.Request {
	req := httptest.NewRequest("GET", path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

// signUp registers a user through the web form and returns their session cookie.
func signUp(t *testing.T, a *testApp, email string) *http.Cookie {
	t.Helper()
	rec := a.do(postForm("/signup", url.Values{
		"email": {email}, "name": {"Tester"}, "password": {"secret123"},
	}, nil))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("signup status = %d, want 303; body: %s", rec.Code, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	t.Fatal("signup did not set a session cookie")
	return nil
}

func extractRequestBody(t *testing.T, body any) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("POST", "/api/extract-topics", strings.NewReader(string(b)))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("invalid JSON response: %v\n%s", err, rec.Body.String())
	}
	return m
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	m := decodeJSON(t, rec)
	e, ok := m["error"].(map[string]any)
	if !ok {
		t.Fatalf("missing error envelope: %v", m)
	}
	code, _ := e["code"].(string)
	return code
}

// --- POST /api/extract-topics ---

func TestExtractTopics_Success(t *testing.T) {
	a := setupTest(t)

	rec := a.do(extractRequestBody(t, map[string]any{"conversation": businessTranscript, "title": "Strategy"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Topics              []extract.Topic `json:"topics"`
			ConversationSummary string          `json:"conversation_summary"`
			Title               string          `json:"title"`
			ConversationContent string          `json:"conversation_content"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Error("success = false")
	}
	if resp.Data.Title != "Strategy" {
		t.Errorf("title = %q, want Strategy", resp.Data.Title)
	}
	if resp.Data.ConversationContent != businessTranscript {
		t.Error("conversation_content does not echo the transcript")
	}
	if resp.Data.ConversationSummary == "" {
		t.Error("conversation_summary is empty")
	}
	found := false
	for _, topic := range resp.Data.Topics {
		if topic.Title == "Business Discussion" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a Business Discussion topic, got %+v", resp.Data.Topics)
	}
}

func TestExtractTopics_LengthBoundary(t *testing.T) {
	a := setupTest(t)

	rec := a.do(extractRequestBody(t, map[string]any{"conversation": strings.Repeat("a", 49)}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("49 chars: status = %d, want 400", rec.Code)
	}
	if code := errorCode(t, rec); code != string(errors.ErrTranscriptTooShort) {
		t.Errorf("code = %q, want TRANSCRIPT_TOO_SHORT", code)
	}

	rec = a.do(extractRequestBody(t, map[string]any{"conversation": strings.Repeat("a", 50)}))
	if rec.Code != http.StatusOK {
		t.Fatalf("50 chars: status = %d, want 200", rec.Code)
	}
	if title := decodeJSON(t, rec)["data"].(map[string]any)["title"]; title != "Untitled Conversation" {
		t.Errorf("default title = %v", title)
	}
}

func TestExtractTopics_InvalidBodies(t *testing.T) {
	a := setupTest(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing conversation", `{"title": "x"}`},
		{"non-string conversation", `{"conversation": 42}`},
		{"empty conversation", `{"conversation": ""}`},
		{"malformed JSON", `{"conversation":`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/extract-topics", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rec := a.do(req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if code := errorCode(t, rec); code != string(errors.ErrInvalidRequest) {
				t.Errorf("code = %q, want INVALID_REQUEST", code)
			}
		})
	}
}

// --- Demo ---

func TestDemo_FormAndAnalyze(t *testing.T) {
	a := setupTest(t)

	rec := a.do(get("/demo", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /demo status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `name="conversation"`) {
		t.Error("expected the analyze form")
	}

	rec = a.do(postForm("/demo", url.Values{"conversation": {businessTranscript}, "title": {"Demo run"}}, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /demo status = %d; body: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	for _, want := range []string{"Business Discussion", "Demo run", `id="transcript"`, "data-scroll="} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in demo result", want)
		}
	}

	var n int
	if err := a.db.QueryRow("SELECT COUNT(*) FROM conversations").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("demo persisted %d conversations", n)
	}
}

func TestDemo_TooShort(t *testing.T) {
	a := setupTest(t)
	rec := a.do(postForm("/demo", url.Values{"conversation": {"too short"}}, nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "too short") {
		t.Error("expected the validation message")
	}
}

// --- Auth and access control ---

func TestHome_Redirects(t *testing.T) {
	a := setupTest(t)

	rec := a.do(get("/", nil))
	if loc := rec.Header().Get("Location"); loc != "/demo" {
		t.Errorf("anonymous Location = %q, want /demo", loc)
	}

	cookie := signUp(t, a, "home@example.com")
	rec = a.do(get("/", cookie))
	if loc := rec.Header().Get("Location"); loc != "/dashboard" {
		t.Errorf("signed-in Location = %q, want /dashboard", loc)
	}
}

func TestDashboard_RequiresSession(t *testing.T) {
	a := setupTest(t)

	rec := a.do(get("/dashboard", nil))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/signin?next=%2Fdashboard" {
		t.Errorf("Location = %q", loc)
	}
}

func TestSignIn_WrongPassword(t *testing.T) {
	a := setupTest(t)
	signUp(t, a, "who@example.com")

	rec := a.do(postForm("/signin", url.Values{"email": {"who@example.com"}, "password": {"nope-nope"}}, nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid email or password") {
		t.Error("expected credentials error")
	}
}

func TestSignIn_RedirectsToNext(t *testing.T) {
	a := setupTest(t)
	signUp(t, a, "next@example.com")

	rec := a.do(postForm("/signin", url.Values{
		"email": {"next@example.com"}, "password": {"secret123"}, "next": {"/pricing"},
	}, nil))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/pricing" {
		t.Errorf("Location = %q, want /pricing", loc)
	}
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	a := setupTest(t)
	signUp(t, a, "dup@example.com")

	rec := a.do(postForm("/signup", url.Values{
		"email": {"dup@example.com"}, "name": {"Again"}, "password": {"secret123"},
	}, nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestSignOut_EndsSession(t *testing.T) {
	a := setupTest(t)
	cookie := signUp(t, a, "bye@example.com")

	rec := a.do(postForm("/signout", url.Values{}, cookie))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}

	rec = a.do(get("/dashboard", cookie))
	if rec.Code != http.StatusSeeOther {
		t.Errorf("dashboard after sign-out: status = %d, want redirect", rec.Code)
	}
}

// --- Analyze, save and view ---

func TestAnalyzeSave_ViewAndOwnership(t *testing.T) {
	a := setupTest(t)
	cookie := signUp(t, a, "owner@example.com")

	rec := a.do(postForm("/analyze", url.Values{"conversation": {businessTranscript}, "title": {"Saved one"}}, cookie))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303; body: %s", rec.Code, rec.Body.String())
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/conversations/") {
		t.Fatalf("Location = %q", loc)
	}

	rec = a.do(get(loc, cookie))
	if rec.Code != http.StatusOK {
		t.Fatalf("viewer status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Saved one", "Business Discussion", "topic-marker"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in viewer", want)
		}
	}

	rec = a.do(get("/dashboard", cookie))
	if !strings.Contains(rec.Body.String(), "Saved one") {
		t.Error("dashboard should list the saved conversation")
	}
	if !strings.Contains(rec.Body.String(), "1 / 3") {
		t.Error("dashboard should show free plan usage")
	}

	other := signUp(t, a, "intruder@example.com")
	rec = a.do(get(loc, other))
	if rec.Code != http.StatusNotFound {
		t.Errorf("other user status = %d, want 404", rec.Code)
	}
}

func TestAnalyzeSave_FreeQuota(t *testing.T) {
	a := setupTest(t)
	cookie := signUp(t, a, "quota@example.com")

	for i := range 3 {
		rec := a.do(postForm("/analyze", url.Values{"conversation": {businessTranscript}}, cookie))
		if rec.Code != http.StatusSeeOther {
			t.Fatalf("save %d: status = %d", i+1, rec.Code)
		}
	}

	rec := a.do(postForm("/analyze", url.Values{"conversation": {businessTranscript}}, cookie))
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "plan limit") {
		t.Error("expected quota message")
	}
}

func TestDeleteConversation_JSON(t *testing.T) {
	a := setupTest(t)
	cookie := signUp(t, a, "del@example.com")

	rec := a.do(postForm("/analyze", url.Values{"conversation": {businessTranscript}}, cookie))
	loc := rec.Header().Get("Location")

	req := httptest.NewRequest("DELETE", loc, nil)
	req.Header.Set("Accept", "application/json")
	req.AddCookie(cookie)
	rec = a.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if deleted, _ := decodeJSON(t, rec)["deleted"].(bool); !deleted {
		t.Error("deleted = false")
	}

	rec = a.do(get(loc, cookie))
	if rec.Code != http.StatusNotFound {
		t.Errorf("after delete status = %d, want 404", rec.Code)
	}
}

// --- Billing routes ---

func TestPricing(t *testing.T) {
	a := setupTest(t)
	rec := a.do(get("/pricing", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Unlimited conversations") {
		t.Error("expected business plan quota")
	}
	if !strings.Contains(body, "not available") {
		t.Error("expected notice when Stripe is not configured")
	}
}

func TestCreateCheckout_RequiresSession(t *testing.T) {
	a := setupTest(t)

	req := httptest.NewRequest("POST", "/api/create-checkout-session", strings.NewReader(`{"priceId":"price_pro_monthly"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := a.do(req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if code := errorCode(t, rec); code != string(errors.ErrUnauthorized) {
		t.Errorf("code = %q", code)
	}
}

func TestCreateCheckout_InvalidPrice(t *testing.T) {
	a := setupTest(t)
	cookie := signUp(t, a, "buyer@example.com")

	req := httptest.NewRequest("POST", "/api/create-checkout-session", strings.NewReader(`{"priceId":"price_fake"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	rec := a.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestBillingPortal_NoCustomer(t *testing.T) {
	a := setupTest(t)
	cookie := signUp(t, a, "portal@example.com")

	req := httptest.NewRequest("POST", "/api/billing-portal", nil)
	req.AddCookie(cookie)
	rec := a.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStripeWebhook_InvalidSignature(t *testing.T) {
	a := setupTest(t)

	req := httptest.NewRequest("POST", "/api/stripe-webhook", strings.NewReader(`{"type":"checkout.session.completed"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := a.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	e := decodeJSON(t, rec)["error"].(map[string]any)
	if e["message"] != "Invalid signature" {
		t.Errorf("message = %v", e["message"])
	}
}

func TestPaymentSuccess(t *testing.T) {
	a := setupTest(t)
	rec := a.do(get("/payment/success?session_id=cs_test_42", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "cs_test_42") {
		t.Error("expected checkout session reference")
	}
}

// --- Error rendering and middleware ---

func TestSecurityHeaders(t *testing.T) {
	a := setupTest(t)
	rec := a.do(get("/demo", nil))
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
	if got := rec.Header().Get("Content-Security-Policy"); !strings.Contains(got, "script-src 'self'") {
		t.Errorf("Content-Security-Policy = %q", got)
	}
}

func TestStaticAssets(t *testing.T) {
	a := setupTest(t)
	for _, path := range []string{"/static/app.css", "/static/app.js"} {
		rec := a.do(get(path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
}

func TestErrorRendering_HtmxFragment(t *testing.T) {
	a := setupTest(t)
	cookie := signUp(t, a, "hx@example.com")

	req := get("/conversations/01HNOTREAL", cookie)
	req.Header.Set("HX-Request", "true")
	rec := a.do(req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `class="error-message"`) || strings.Contains(body, "<!DOCTYPE html>") {
		t.Errorf("expected an error fragment, got %s", body)
	}
}

func TestErrorRendering_FullErrorPage(t *testing.T) {
	a := setupTest(t)
	cookie := signUp(t, a, "page@example.com")

	rec := a.do(get("/conversations/01HNOTREAL", cookie))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<!DOCTYPE html>") {
		t.Error("expected full error page")
	}
}

func TestSafeNext(t *testing.T) {
	tests := map[string]string{
		"":                     "/dashboard",
		"/analyze":             "/analyze",
		"//evil.example":       "/dashboard",
		"/\\evil.example":      "/dashboard",
		"https://evil.example": "/dashboard",
	}
	for in, want := range tests {
		if got := safeNext(in); got != want {
			t.Errorf("safeNext(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"limit=5", 5},
		{"limit=abc", 20},
	}
	for _, tc := range tests {
		req := httptest.NewRequest("GET", "/dashboard?"+tc.query, nil)
		if got := parseIntParam(req, "limit", 20); got != tc.want {
			t.Errorf("parseIntParam(%q) = %d, want %d", tc.query, got, tc.want)
		}
	}
}

func TestFormatChars(t *testing.T) {
	tests := map[int]string{0: "0", 999: "999", 1000: "1,000", 1234567: "1,234,567", -1500: "-1,500"}
	for n, want := range tests {
		if got := formatChars(n); got != want {
			t.Errorf("formatChars(%d) = %q, want %q", n, got, want)
		}
	}
	if got := formatLimit(-1); got != "Unlimited" {
		t.Errorf("formatLimit(-1) = %q", got)
	}
}
