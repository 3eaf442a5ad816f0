package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aferreira/novemail/storage"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

type contextKey string

const userContextKey contextKey = "user"

// generateToken emite um token JWT assinado para o usuário autenticado
func (a *API) generateToken(user *storage.User) (string, error) {
	expires := time.Duration(a.cfg.JWT.ExpiresHours) * time.Hour
	claims := jwt.MapClaims{
		"email":    user.Email,
		"username": user.Username,
		"exp":      time.Now().Add(expires).Unix(),
		"iat":      time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.cfg.JWT.Secret))
	if err != nil {
		return "", fmt.Errorf("falha ao assinar token: %w", err)
	}
	return signed, nil
}

// parseToken valida um token JWT e retorna o email do usuário
func (a *API) parseToken(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("método de assinatura inesperado: %v", t.Header["alg"])
		}
		return []byte(a.cfg.JWT.Secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("token inválido: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("token inválido")
	}
	email, ok := claims["email"].(string)
	if !ok || email == "" {
		return "", fmt.Errorf("token sem identificação de usuário")
	}
	return email, nil
}

// authMiddleware exige um token Bearer válido e injeta o email do
// usuário no contexto da requisição. Todo o restante da aplicação
// confia nesse email como identidade verificada.
func (a *API) authMiddleware(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			logrus.WithField("url", r.URL.Path).Warn("requisição sem token")
			writeError(w, http.StatusUnauthorized, "autenticação necessária")
			return
		}

		email, err := a.parseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			logrus.WithFields(logrus.Fields{"url": r.URL.Path, "err": err.Error()}).Warn("token inválido")
			writeError(w, http.StatusUnauthorized, "token inválido ou expirado")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userFrom retorna o email do usuário autenticado da requisição
func userFrom(r *http.Request) string {
	email, _ := r.Context().Value(userContextKey).(string)
	return email
}

// handleLogin autentica o usuário e emite um token de sessão
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "corpo da requisição inválido")
		return
	}
	if body.Email == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "email e senha são obrigatórios")
		return
	}

	user, err := a.store.AuthenticateUser(body.Email, body.Password)
	if err != nil {
		logrus.WithField("email", body.Email).Warn("falha de autenticação")
		writeError(w, http.StatusUnauthorized, "credenciais inválidas")
		return
	}

	token, err := a.generateToken(user)
	if err != nil {
		logrus.WithError(err).Error("falha ao emitir token")
		writeError(w, http.StatusInternalServerError, "erro interno do servidor")
		return
	}

	logrus.WithField("email", user.Email).Info("login realizado")
	writeJSON(w, http.StatusOK, map[string]string{
		"token":    token,
		"email":    user.Email,
		"username": user.Username,
	})
}

// handleRegister provisiona um novo usuário com as caixas padrão
func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "corpo da requisição inválido")
		return
	}
	if body.Email == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "email e senha são obrigatórios")
		return
	}
	if body.Username == "" {
		body.Username = body.Email
	}

	user := &storage.User{Email: body.Email, Username: body.Username}
	if err := retryBusy(func() error {
		return a.store.CreateUser(user, body.Password)
	}); err != nil {
		writeStorageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"email":    user.Email,
		"username": user.Username,
	})
}
