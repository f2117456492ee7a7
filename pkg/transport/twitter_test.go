package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/davidBerries/twitter-timeline/pkg/retry"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := DefaultConfig("test-bearer")
	cfg.BaseURL = baseURL
	cfg.Cookie = "auth_token=abc; ct0=csrf-value"
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() without bearer token should fail")
	}

	client, err := New(Config{BearerToken: "token"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if client.config.BaseURL != "https://twitter.com/i/api" {
		t.Errorf("BaseURL default = %s", client.config.BaseURL)
	}
	if client.config.PageSize != 20 {
		t.Errorf("PageSize default = %d, want 20", client.config.PageSize)
	}
	if client.config.Timeout != 15*time.Second {
		t.Errorf("Timeout default = %v, want 15s", client.config.Timeout)
	}
}

func TestFetchPage_RequestShape(t *testing.T) {
	var captured *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(context.Background())
		w.Write([]byte(`{"data":{"user":{"result":{"timeline_v2":{"timeline":{"instructions":[]}}}}}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	raw, err := client.FetchPage(context.Background(), "44196397", "cursor-abc")
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(raw.Body) == 0 {
		t.Error("FetchPage() returned empty body")
	}

	if got := captured.Header.Get("Authorization"); got != "Bearer test-bearer" {
		t.Errorf("Authorization = %q", got)
	}
	if got := captured.Header.Get("X-Csrf-Token"); got != "csrf-value" {
		t.Errorf("X-Csrf-Token = %q, want ct0 value from cookie", got)
	}
	if got := captured.Header.Get("Cookie"); got == "" {
		t.Error("Cookie header missing")
	}

	variables := captured.URL.Query().Get("variables")
	if gjson.Get(variables, "userId").String() != "44196397" {
		t.Errorf("variables.userId = %s", gjson.Get(variables, "userId").String())
	}
	if gjson.Get(variables, "cursor").String() != "cursor-abc" {
		t.Errorf("variables.cursor = %s", gjson.Get(variables, "cursor").String())
	}
	if captured.URL.Query().Get("features") == "" {
		t.Error("features query param missing")
	}
}

func TestFetchPage_FirstPageOmitsCursor(t *testing.T) {
	var variables string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		variables = r.URL.Query().Get("variables")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if _, err := client.FetchPage(context.Background(), "42", ""); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if gjson.Get(variables, "cursor").Exists() {
		t.Error("first page request should not carry a cursor variable")
	}
}

func TestFetchPage_StatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   retry.Kind
	}{
		{"rate limited", http.StatusTooManyRequests, retry.KindRateLimited},
		{"server error", http.StatusInternalServerError, retry.KindUpstreamError},
		{"bad gateway", http.StatusBadGateway, retry.KindUpstreamError},
		{"unauthorized", http.StatusUnauthorized, retry.KindClientError},
		{"not found", http.StatusNotFound, retry.KindClientError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := newTestClient(t, server.URL)
			_, err := client.FetchPage(context.Background(), "42", "")
			if err == nil {
				t.Fatalf("FetchPage() with status %d should fail", tt.status)
			}

			var ferr *retry.FailureError
			if !errors.As(err, &ferr) {
				t.Fatalf("error %v is not a FailureError", err)
			}
			if ferr.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", ferr.Kind, tt.want)
			}
			if ferr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", ferr.StatusCode, tt.status)
			}
		})
	}
}

func TestFetchPage_RateLimitHint(t *testing.T) {
	reset := time.Now().Add(90 * time.Second).Unix()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-rate-limit-remaining", "0")
		w.Header().Set("x-rate-limit-reset", strconv.FormatInt(reset, 10))
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.FetchPage(context.Background(), "42", "")

	var ferr *retry.FailureError
	if !errors.As(err, &ferr) {
		t.Fatalf("error %v is not a FailureError", err)
	}
	if ferr.Hint < 80*time.Second || ferr.Hint > 90*time.Second {
		t.Errorf("Hint = %v, want ~90s from reset header", ferr.Hint)
	}
}

func TestFetchPage_SuccessCarriesSpacingHint(t *testing.T) {
	reset := time.Now().Add(60 * time.Second).Unix()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-rate-limit-reset", strconv.FormatInt(reset, 10))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	raw, err := client.FetchPage(context.Background(), "42", "")
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if raw.RateLimitHint <= 0 {
		t.Error("RateLimitHint should be positive when reset header is present")
	}
}

func TestFetchPage_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := newTestClient(t, server.URL)

	done := make(chan error, 1)
	go func() {
		_, err := client.FetchPage(ctx, "42", "")
		done <- err
	}()
	cancel()

	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled fetch error = %v, want context.Canceled passthrough", err)
	}
}

func TestResolveUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		screenName := gjson.Get(r.URL.Query().Get("variables"), "screen_name").String()
		if screenName != "jack" {
			t.Errorf("screen_name = %q, want jack", screenName)
		}
		w.Write([]byte(`{"data":{"user":{"result":{"rest_id":"12"}}}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	restID, err := client.ResolveUser(context.Background(), "jack")
	if err != nil {
		t.Fatalf("ResolveUser() error = %v", err)
	}
	if restID != "12" {
		t.Errorf("ResolveUser() = %s, want 12", restID)
	}
}

func TestResolveUser_MissingUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.ResolveUser(context.Background(), "ghost")
	if err == nil {
		t.Fatal("ResolveUser() for missing user should fail")
	}

	var ferr *retry.FailureError
	if !errors.As(err, &ferr) || ferr.Kind != retry.KindMalformedResponse {
		t.Errorf("error = %v, want malformed-response FailureError", err)
	}
}

func TestCsrfFromCookie(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		want   string
	}{
		{"present", "auth_token=a; ct0=token123; lang=en", "token123"},
		{"first position", "ct0=tok", "tok"},
		{"absent", "auth_token=a; lang=en", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := csrfFromCookie(tt.cookie); got != tt.want {
				t.Errorf("csrfFromCookie(%q) = %q, want %q", tt.cookie, got, tt.want)
			}
		})
	}
}

func TestSpacingHint(t *testing.T) {
	h := http.Header{}
	if got := spacingHint(h); got != 0 {
		t.Errorf("no header hint = %v, want 0", got)
	}

	h.Set("x-rate-limit-reset", "not-a-number")
	if got := spacingHint(h); got != 0 {
		t.Errorf("garbage header hint = %v, want 0", got)
	}

	h.Set("x-rate-limit-reset", strconv.FormatInt(time.Now().Add(-time.Minute).Unix(), 10))
	if got := spacingHint(h); got != 0 {
		t.Errorf("past reset hint = %v, want 0", got)
	}

	h.Set("x-rate-limit-reset", strconv.FormatInt(time.Now().Add(30*time.Second).Unix(), 10))
	got := spacingHint(h)
	if got < 25*time.Second || got > 30*time.Second {
		t.Errorf("future reset hint = %v, want ~30s", got)
	}
}
