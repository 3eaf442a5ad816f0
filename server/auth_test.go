package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aferreira/novemail/config"
	"github.com/aferreira/novemail/storage"
	"github.com/stretchr/testify/require"
)

func newTestAPI() *API {
	cfg := &config.Config{}
	cfg.JWT.Secret = "segredo-de-teste"
	cfg.JWT.ExpiresHours = 1
	return NewAPI(cfg, nil, nil)
}

func TestTokenRoundTrip(t *testing.T) {
	api := newTestAPI()

	token, err := api.generateToken(&storage.User{Email: "ana@example.com", Username: "ana"})
	require.NoError(t, err)

	email, err := api.parseToken(token)
	require.NoError(t, err)
	require.Equal(t, "ana@example.com", email)
}

func TestParseTokenInvalid(t *testing.T) {
	api := newTestAPI()

	_, err := api.parseToken("nada-a-ver")
	require.Error(t, err)

	// Token assinado com outro segredo não é aceito
	other := newTestAPI()
	other.cfg.JWT.Secret = "outro-segredo"
	token, err := other.generateToken(&storage.User{Email: "ana@example.com"})
	require.NoError(t, err)

	_, err = api.parseToken(token)
	require.Error(t, err)
}

func TestAuthMiddleware(t *testing.T) {
	api := newTestAPI()

	var gotEmail string
	handler := api.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		gotEmail = userFrom(r)
		w.WriteHeader(http.StatusOK)
	})

	// Sem token: 401
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/mailboxes", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Token inválido: 401
	rec = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/mailboxes", nil)
	req.Header.Set("Authorization", "Bearer lixo")
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Token válido: o email verificado chega ao handler
	token, err := api.generateToken(&storage.User{Email: "ana@example.com", Username: "ana"})
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/api/mailboxes", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ana@example.com", gotEmail)
}
