package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/silvercoin/advisor/backend/internal/model/account"
	authService "github.com/silvercoin/advisor/backend/internal/service/auth"
)

func setupRouter(t *testing.T) (*chi.Mux, *authService.Verifier) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	accounts := account.NewMemoryStore(account.Account{Username: "johndoe", HashedPassword: string(hash)})

	keys := authService.KeyConfig{Secret: "token-handler-secret"}
	issuer, err := authService.NewIssuer(keys)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	verifier, err := authService.NewVerifier(keys, accounts)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	r := chi.NewRouter()
	New(authService.NewAuthenticator(accounts, issuer)).RegisterRoutes(r)
	return r, verifier
}

func TestTokenFormLogin(t *testing.T) {
	r, verifier := setupRouter(t)

	form := url.Values{"username": {"johndoe"}, "password": {"secret"}}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.TokenType != "bearer" {
		t.Fatalf("unexpected token type %q", body.TokenType)
	}
	caller, err := verifier.Verify(req.Context(), body.AccessToken)
	if err != nil || caller.Username != "johndoe" {
		t.Fatalf("issued token does not verify: %v", err)
	}
}

func TestTokenJSONLogin(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/token", bytes.NewBufferString(`{"username":"johndoe","password":"secret"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestTokenRejectsBadCredentials(t *testing.T) {
	r, _ := setupRouter(t)

	for _, body := range []string{
		`{"username":"johndoe","password":"wrong"}`,
		`{"username":"nobody","password":"secret"}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/token", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)

		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %s, got %d", body, resp.Code)
		}
		if resp.Header().Get("WWW-Authenticate") != "Bearer" {
			t.Fatalf("missing bearer challenge")
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/token", bytes.NewBufferString(`{"username":"johndoe"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing password, got %d", resp.Code)
	}
}
