package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/opentelco/tokenbroker/broker"
	"github.com/opentelco/tokenbroker/cache"
	"github.com/opentelco/tokenbroker/cache/memcache"
	"github.com/opentelco/tokenbroker/oauth"
	"github.com/opentelco/tokenbroker/secrets"
	"github.com/opentelco/tokenbroker/telcoissuer"
)

type staticSecrets struct {
	enc    secrets.JWTEncryption
	encErr error
}

func (s staticSecrets) Load(context.Context) error { return nil }
func (s staticSecrets) JWTEncryptionKey() (secrets.JWTEncryption, error) {
	return s.enc, s.encErr
}
func (s staticSecrets) TelcoAuth() (secrets.ClientCredentials, error) {
	return secrets.ClientCredentials{}, nil
}

func testSecrets() secrets.Provider {
	return staticSecrets{enc: secrets.JWTEncryption{
		Key:      "httpapi-test-secret",
		Algo:     "HS256",
		Lifetime: 5 * time.Minute,
	}}
}

// stubIssuer returns a canned outcome regardless of input.
type stubIssuer struct {
	tok *oauth.Token
	err error
}

func (s stubIssuer) IssueToken(context.Context, oauth.TelecomIdentifier, string) (*oauth.Token, error) {
	return s.tok, s.err
}

func postToken(t *testing.T, h http.Handler, path, mcc, sn, authCode string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{}
	if authCode != "" {
		form.Set("auth_code", authCode)
	}
	req := httptest.NewRequest(http.MethodPost, path+"?mcc="+url.QueryEscape(mcc)+"&sn="+url.QueryEscape(sn),
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, body []byte) (int, string) {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decoding error body %q: %v", body, err)
	}
	return envelope.Error.Code, envelope.Error.Message
}

func TestTokenEndpointSuccess(t *testing.T) {
	svc := telcoissuer.New(testSecrets())
	h := NewTelcoHandler(svc, testSecrets())

	rec := postToken(t, h, "/api/demo/token", "310", "123456", "best_auth")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type = %q", ct)
	}

	tok, err := oauth.DecodeToken(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("decoding token response: %v", err)
	}
	if tok.TokenType != "Bearer" {
		t.Errorf("token_type = %q, want Bearer", tok.TokenType)
	}
	if tok.AccessToken == "" {
		t.Error("empty access_token")
	}
	if got := tok.Lifetime(); got != 5*time.Minute {
		t.Errorf("lifetime = %v, want 5m", got)
	}
}

func TestTokenEndpointRejectsBadIdentifier(t *testing.T) {
	h := NewBrokerHandler(stubIssuer{})

	rec := postToken(t, h, "/api/demo/token", "9999", "050123", "best_auth")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if _, msg := decodeError(t, rec.Body.Bytes()); !strings.Contains(msg, "mcc") {
		t.Errorf("message %q does not name the offending field", msg)
	}
}

func TestTokenEndpointRequiresAuthCode(t *testing.T) {
	h := NewBrokerHandler(stubIssuer{})

	rec := postToken(t, h, "/api/demo/token", "310", "123456", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if _, msg := decodeError(t, rec.Body.Bytes()); !strings.Contains(msg, "auth_code") {
		t.Errorf("message %q does not mention auth_code", msg)
	}
}

func TestTokenEndpointUnacceptableAccept(t *testing.T) {
	h := NewBrokerHandler(stubIssuer{})

	req := httptest.NewRequest(http.MethodPost, "/api/demo/token?mcc=310&sn=123456", strings.NewReader("auth_code=best_auth"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/xml")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotAcceptable {
		t.Fatalf("status = %d, want 406", rec.Code)
	}
}

func TestTokenEndpointErrorMapping(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "route not found",
			err:         broker.ErrRouteNotFound,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Destination Telco data not found",
		},
		{
			name:        "upstream rejection passes through",
			err:         &broker.UpstreamError{StatusCode: http.StatusUnauthorized, Body: "bad credentials"},
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "Telco service error: bad credentials",
		},
		{
			name:        "backend unreachable",
			err:         broker.ErrBackendUnavailable,
			wantStatus:  http.StatusServiceUnavailable,
			wantMessage: "failed to contact telco service",
		},
		{
			name:        "invalid auth code",
			err:         telcoissuer.ErrInvalidAuthCode,
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "invalid auth code",
		},
		{
			name:        "unexpected failure stays generic",
			err:         errors.New("pipeline exploded"),
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "internal server error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewBrokerHandler(stubIssuer{err: tc.err})
			rec := postToken(t, h, "/api/demo/token", "310", "123456", "best_auth")
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			code, msg := decodeError(t, rec.Body.Bytes())
			if code != tc.wantStatus {
				t.Errorf("body code = %d, want %d", code, tc.wantStatus)
			}
			if msg != tc.wantMessage {
				t.Errorf("message = %q, want %q", msg, tc.wantMessage)
			}
			if tc.wantStatus == http.StatusInternalServerError && strings.Contains(msg, "exploded") {
				t.Error("internal detail leaked into the response body")
			}
		})
	}
}

func TestTokenEndpointMethodNotAllowed(t *testing.T) {
	h := NewBrokerHandler(stubIssuer{})

	req := httptest.NewRequest(http.MethodGet, "/api/demo/token?mcc=310&sn=123456", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestTokenEndpointCustomVersion(t *testing.T) {
	svc := telcoissuer.New(testSecrets())
	h := NewTelcoHandler(svc, testSecrets(), WithAPIVersion("v2"))

	if rec := postToken(t, h, "/api/v2/token", "310", "123456", "best_auth"); rec.Code != http.StatusOK {
		t.Fatalf("versioned route status = %d, body %s", rec.Code, rec.Body)
	}
	if rec := postToken(t, h, "/api/demo/token", "310", "123456", "best_auth"); rec.Code != http.StatusNotFound {
		t.Fatalf("default route status = %d, want 404", rec.Code)
	}
}

func TestJWKSEndpoint(t *testing.T) {
	store, err := memcache.New(16)
	if err != nil {
		t.Fatal(err)
	}
	svc := telcoissuer.New(testSecrets())
	h := NewTelcoHandler(svc, testSecrets(), WithCache(store))

	req := httptest.NewRequest(http.MethodGet, JWKSPath, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var doc struct {
		Keys []map[string]any `json:"keys"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decoding JWKS: %v", err)
	}
	if len(doc.Keys) == 0 {
		t.Fatal("JWKS has no keys")
	}

	// The cache write is asynchronous; wait for it to land.
	deadline := time.Now().Add(2 * time.Second)
	for {
		cached, err := store.Get(context.Background(), cache.JWKSKey)
		if err != nil {
			t.Fatal(err)
		}
		if cached != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("JWKS never cached")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// brokenCache fails every operation.
type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("cache down")
}
func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("cache down")
}
func (brokenCache) Close() error { return nil }

func TestJWKSEndpointCacheFailureFailsOpen(t *testing.T) {
	svc := telcoissuer.New(testSecrets())
	h := NewTelcoHandler(svc, testSecrets(), WithCache(brokenCache{}))

	req := httptest.NewRequest(http.MethodGet, JWKSPath, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 despite cache failure", rec.Code)
	}
}

func TestJWKSEndpointGenerationFailure(t *testing.T) {
	svc := telcoissuer.New(testSecrets())
	h := NewTelcoHandler(svc, staticSecrets{encErr: secrets.ErrNotLoaded})

	req := httptest.NewRequest(http.MethodGet, JWKSPath, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
