package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aferreira/novemail/config"
	"github.com/aferreira/novemail/storage"
	"github.com/sirupsen/logrus"
)

// API agrupa as dependências dos handlers HTTP
type API struct {
	cfg     *config.Config
	store   storage.Storage
	maildir *storage.MailDir
}

// NewAPI cria a camada HTTP da aplicação
func NewAPI(cfg *config.Config, store storage.Storage, maildir *storage.MailDir) *API {
	return &API{
		cfg:     cfg,
		store:   store,
		maildir: maildir,
	}
}

// StartHTTPServer inicia o servidor HTTP da aplicação
func StartHTTPServer(cfg *config.Config, store storage.Storage, maildir *storage.MailDir) error {
	api := NewAPI(cfg, store, maildir)

	mux := http.NewServeMux()

	// Rotas públicas
	mux.HandleFunc("POST /api/auth/login", api.handleLogin)
	mux.HandleFunc("POST /api/auth/register", api.handleRegister)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Rotas protegidas
	mux.Handle("GET /api/mailboxes", api.authMiddleware(api.handleListMailboxes))
	mux.Handle("POST /api/mailboxes", api.authMiddleware(api.handleCreateMailbox))
	mux.Handle("DELETE /api/mailboxes/{mailbox_id}", api.authMiddleware(api.handleDeleteMailbox))
	mux.Handle("GET /api/mails", api.authMiddleware(api.handleListMails))
	mux.Handle("GET /api/mails/{message_id}", api.authMiddleware(api.handleViewMail))
	mux.Handle("DELETE /api/mails/{message_id}", api.authMiddleware(api.handleDeleteMail))
	mux.Handle("PUT /api/mails/{message_id}/move", api.authMiddleware(api.handleMoveMail))
	mux.Handle("GET /api/mails/{message_id}/attachment/{index}", api.authMiddleware(api.handleAttachment))
	mux.Handle("POST /api/send", api.authMiddleware(api.handleSend))

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      requestLogger(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	logrus.WithField("addr", addr).Info("iniciando servidor HTTP")
	return server.ListenAndServe()
}

// statusRecorder captura o código de status escrito na resposta
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLogger registra cada requisição e resposta
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		logrus.WithFields(logrus.Fields{
			"method":   r.Method,
			"url":      r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
			"ip":       r.RemoteAddr,
		}).Info("requisição atendida")
	})
}

// writeJSON serializa a resposta como JSON
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError responde um erro no formato {"error": "..."}
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStorageError mapeia os erros do armazenamento para códigos HTTP.
// O armazenamento nunca conhece HTTP; a tradução acontece só aqui.
func writeStorageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrUserNotFound),
		errors.Is(err, storage.ErrMailboxNotFound),
		errors.Is(err, storage.ErrMailNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrMailboxExists),
		errors.Is(err, storage.ErrUserExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrMailboxReserved):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, storage.ErrInvalidMailboxName):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrBusy):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logrus.WithError(err).Error("erro interno do armazenamento")
		writeError(w, http.StatusInternalServerError, "erro interno do servidor")
	}
}

// retryBusy executa a operação de novo algumas vezes quando o
// armazenamento está temporariamente bloqueado
func retryBusy(fn func() error) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = fn()
		if !errors.Is(err, storage.ErrBusy) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
	}
	return err
}
