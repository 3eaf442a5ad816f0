package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aferreira/novemail/storage"
	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"
)

// attachmentInfo descreve um anexo na resposta de leitura.
// Anexos não são persistidos: são extraídos do EML sob demanda e
// endereçados pela posição em que aparecem na mensagem.
type attachmentInfo struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// emlContent é o resultado da interpretação de um arquivo EML
type emlContent struct {
	Text        string
	HTML        string
	Attachments []attachmentInfo
}

// parseEML interpreta um EML em corpo texto, corpo HTML e lista de anexos
func parseEML(data []byte) (*emlContent, error) {
	mr, err := mail.CreateReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("falha ao interpretar EML: %w", err)
	}

	content := &emlContent{}
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("falha ao ler parte do EML: %w", err)
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			body, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, fmt.Errorf("falha ao ler corpo do EML: %w", err)
			}
			if ct == "text/html" {
				content.HTML = string(body)
			} else {
				content.Text = string(body)
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			ct, _, _ := h.ContentType()
			body, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, fmt.Errorf("falha ao ler anexo do EML: %w", err)
			}
			content.Attachments = append(content.Attachments, attachmentInfo{
				Filename:    filename,
				ContentType: ct,
				Size:        len(body),
			})
		}
	}

	return content, nil
}

// handleListMails lista as mensagens de uma caixa, paginadas
func (a *API) handleListMails(w http.ResponseWriter, r *http.Request) {
	email := userFrom(r)

	mailboxID := r.URL.Query().Get("mailbox_id")
	if mailboxID == "" {
		writeError(w, http.StatusBadRequest, "mailbox_id é obrigatório")
		return
	}

	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 {
		limit = 30
	}

	mails, total, err := a.store.ListMails(email, mailboxID, page, limit)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	if mails == nil {
		mails = []*storage.MailSummary{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total": total,
		"page":  page,
		"limit": limit,
		"mails": mails,
	})
}

// mailViewResponse é a resposta de leitura de uma mensagem
type mailViewResponse struct {
	MessageID   string           `json:"message_id"`
	Subject     string           `json:"subject"`
	Sender      string           `json:"sender"`
	Recipient   string           `json:"recipient"`
	SendDT      time.Time        `json:"send_dt"`
	HTML        string           `json:"html"`
	Text        string           `json:"text"`
	Attachments []attachmentInfo `json:"attachments"`
}

// handleViewMail retorna o conteúdo de uma mensagem, marcando-a como
// lida. Se o EML estiver ausente ou ilegível a resposta degrada para
// corpo vazio em vez de falhar: os metadados ainda têm valor sozinhos.
func (a *API) handleViewMail(w http.ResponseWriter, r *http.Request) {
	email := userFrom(r)
	messageID := r.PathValue("message_id")

	view, err := a.store.GetMail(email, messageID)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	resp := &mailViewResponse{
		MessageID:   view.MessageID,
		Subject:     view.Subject,
		Sender:      view.Sender,
		Recipient:   view.Recipient,
		SendDT:      view.SendDT,
		Attachments: []attachmentInfo{},
	}

	if view.Filename == "" {
		resp.Text = "conteúdo indisponível"
		writeJSON(w, http.StatusOK, resp)
		return
	}

	data, err := a.maildir.Get(view.Filename)
	if err != nil {
		if errors.Is(err, storage.ErrContentUnavailable) {
			logrus.WithFields(logrus.Fields{
				"message_id": messageID,
				"filename":   view.Filename,
			}).Warn("arquivo EML não encontrado")
			resp.Text = "conteúdo indisponível"
			writeJSON(w, http.StatusOK, resp)
			return
		}
		logrus.WithError(err).Error("falha ao ler arquivo EML")
		writeError(w, http.StatusInternalServerError, "erro interno do servidor")
		return
	}

	content, err := parseEML(data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"message_id": messageID,
			"err":        err.Error(),
		}).Warn("falha ao interpretar EML")
		resp.Text = "conteúdo indisponível"
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.Text = content.Text
	resp.HTML = content.HTML
	if content.Attachments != nil {
		resp.Attachments = content.Attachments
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDeleteMail remove a mensagem da caixa onde está. O catálogo e o
// arquivo EML são mantidos.
func (a *API) handleDeleteMail(w http.ResponseWriter, r *http.Request) {
	email := userFrom(r)
	messageID := r.PathValue("message_id")

	if err := retryBusy(func() error {
		return a.store.DeleteMail(email, messageID)
	}); err != nil {
		writeStorageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleMoveMail move a mensagem para outra caixa do usuário
func (a *API) handleMoveMail(w http.ResponseWriter, r *http.Request) {
	email := userFrom(r)
	messageID := r.PathValue("message_id")

	var body struct {
		TargetMailboxID string `json:"target_mailbox_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "corpo da requisição inválido")
		return
	}
	if body.TargetMailboxID == "" {
		writeError(w, http.StatusBadRequest, "target_mailbox_id é obrigatório")
		return
	}

	if err := retryBusy(func() error {
		return a.store.MoveMail(email, messageID, body.TargetMailboxID)
	}); err != nil {
		writeStorageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleAttachment baixa um anexo pelo índice posicional dentro do EML
func (a *API) handleAttachment(w http.ResponseWriter, r *http.Request) {
	email := userFrom(r)
	messageID := r.PathValue("message_id")

	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "índice de anexo inválido")
		return
	}

	filename, err := a.store.GetMailFilename(email, messageID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	if filename == "" {
		writeError(w, http.StatusNotFound, "conteúdo da mensagem indisponível")
		return
	}

	data, err := a.maildir.Get(filename)
	if err != nil {
		if errors.Is(err, storage.ErrContentUnavailable) {
			writeError(w, http.StatusNotFound, "conteúdo da mensagem indisponível")
			return
		}
		logrus.WithError(err).Error("falha ao ler arquivo EML")
		writeError(w, http.StatusInternalServerError, "erro interno do servidor")
		return
	}

	mr, err := mail.CreateReader(bytes.NewReader(data))
	if err != nil {
		writeError(w, http.StatusNotFound, "conteúdo da mensagem indisponível")
		return
	}

	current := 0
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		h, ok := p.Header.(*mail.AttachmentHeader)
		if !ok {
			continue
		}
		if current != index {
			current++
			continue
		}

		name, _ := h.Filename()
		ct, _, _ := h.ContentType()
		body, err := io.ReadAll(p.Body)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "erro interno do servidor")
			return
		}

		w.Header().Set("Content-Type", ct)
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="%s"`, url.PathEscape(name)))
		w.Write(body)
		return
	}

	writeError(w, http.StatusNotFound, "anexo não encontrado")
}
