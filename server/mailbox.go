package server

import (
	"encoding/json"
	"net/http"

	"github.com/aferreira/novemail/storage"
)

// handleListMailboxes lista as caixas do usuário, com as caixas padrão
// primeiro em ordem fixa e as demais em ordem de caminho
func (a *API) handleListMailboxes(w http.ResponseWriter, r *http.Request) {
	email := userFrom(r)

	mailboxes, err := a.store.ListMailboxes(email)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mailboxes)
}

// handleCreateMailbox cria uma caixa de correio, opcionalmente dentro
// de uma caixa pai identificada pelo caminho
func (a *API) handleCreateMailbox(w http.ResponseWriter, r *http.Request) {
	email := userFrom(r)

	var body struct {
		Name       string `json:"mailbox_name"`
		ParentPath string `json:"parent_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "corpo da requisição inválido")
		return
	}

	var mb *storage.Mailbox
	if err := retryBusy(func() error {
		var err error
		mb, err = a.store.CreateMailbox(email, body.Name, body.ParentPath)
		return err
	}); err != nil {
		writeStorageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mb)
}

// handleDeleteMailbox exclui uma caixa e todas as suas subcaixas.
// As caixas padrão da raiz não podem ser excluídas.
func (a *API) handleDeleteMailbox(w http.ResponseWriter, r *http.Request) {
	email := userFrom(r)
	mailboxID := r.PathValue("mailbox_id")

	if err := retryBusy(func() error {
		return a.store.DeleteMailbox(email, mailboxID)
	}); err != nil {
		writeStorageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
