package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aferreira/novemail/config"
	"github.com/aferreira/novemail/storage"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// splitAddresses separa uma lista de endereços por vírgula
func splitAddresses(list string) []string {
	var result []string
	for _, addr := range strings.Split(list, ",") {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			result = append(result, addr)
		}
	}
	return result
}

// buildEML monta um arquivo EML com os cabeçalhos e corpos informados.
// Quando há texto e HTML o corpo sai como multipart/alternative.
func buildEML(from, to, cc, subject, messageID string, date time.Time, text, html string) ([]byte, error) {
	var buf bytes.Buffer

	var h mail.Header
	h.SetDate(date)
	h.SetSubject(subject)
	h.Set("From", from)
	h.Set("To", to)
	if cc != "" {
		h.Set("Cc", cc)
	}
	h.Set("Message-Id", messageID)

	writePart := func(mw *mail.Writer, contentType, body string) error {
		var ph mail.InlineHeader
		ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
		pw, err := mw.CreateSingleInline(ph)
		if err != nil {
			return err
		}
		if _, err := pw.Write([]byte(body)); err != nil {
			pw.Close()
			return err
		}
		return pw.Close()
	}

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("falha ao montar EML: %w", err)
	}

	if text != "" && html != "" {
		iw, err := mw.CreateInline()
		if err != nil {
			return nil, fmt.Errorf("falha ao montar EML: %w", err)
		}

		var th mail.InlineHeader
		th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		pw, err := iw.CreatePart(th)
		if err != nil {
			return nil, fmt.Errorf("falha ao montar EML: %w", err)
		}
		pw.Write([]byte(text))
		pw.Close()

		var hh mail.InlineHeader
		hh.SetContentType("text/html", map[string]string{"charset": "utf-8"})
		pw, err = iw.CreatePart(hh)
		if err != nil {
			return nil, fmt.Errorf("falha ao montar EML: %w", err)
		}
		pw.Write([]byte(html))
		pw.Close()
		iw.Close()
	} else if html != "" {
		if err := writePart(mw, "text/html", html); err != nil {
			return nil, fmt.Errorf("falha ao montar EML: %w", err)
		}
	} else {
		if err := writePart(mw, "text/plain", text); err != nil {
			return nil, fmt.Errorf("falha ao montar EML: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("falha ao montar EML: %w", err)
	}

	return buf.Bytes(), nil
}

// relayMail entrega a mensagem ao relay SMTP configurado
func relayMail(cfg *config.SMTPConfig, from string, recipients []string, eml []byte) error {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	c, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("falha ao conectar ao relay SMTP: %w", err)
	}
	defer c.Close()

	if cfg.Username != "" {
		auth := sasl.NewPlainClient("", cfg.Username, cfg.Password)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("falha ao autenticar no relay SMTP: %w", err)
		}
	}

	if err := c.Mail(from, nil); err != nil {
		return fmt.Errorf("falha ao iniciar envio: %w", err)
	}
	for _, rcpt := range recipients {
		if err := c.Rcpt(rcpt, nil); err != nil {
			return fmt.Errorf("falha ao adicionar destinatário %s: %w", rcpt, err)
		}
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("falha ao enviar conteúdo: %w", err)
	}
	if _, err := wc.Write(eml); err != nil {
		wc.Close()
		return fmt.Errorf("falha ao enviar conteúdo: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("falha ao concluir envio: %w", err)
	}

	return c.Quit()
}

// saveSentMail guarda uma cópia da mensagem enviada na caixa Sent.
// Falhas aqui são registradas no log mas não invalidam o envio, que já
// aconteceu: a cópia é melhor esforço.
func (a *API) saveSentMail(email, messageID string, recipients []string, subject string, sendDT time.Time, eml []byte) {
	relPath, err := a.maildir.Put(eml)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"email": email,
			"err":   err.Error(),
		}).Error("falha ao gravar cópia da mensagem enviada")
		return
	}

	recipient := ""
	if len(recipients) > 0 {
		recipient = recipients[0]
	}
	msg := &storage.Message{
		ID:        messageID,
		Subject:   subject,
		Sender:    email,
		Recipient: recipient,
		SendDT:    sendDT,
		Filename:  relPath,
	}

	err = retryBusy(func() error {
		return a.store.SaveMail(email, "Sent", msg, recipients, int64(len(eml)), true)
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"email":      email,
			"message_id": messageID,
			"err":        err.Error(),
		}).Error("falha ao arquivar cópia da mensagem enviada")
	}
}

// handleSend envia uma mensagem pelo relay SMTP e guarda uma cópia na
// caixa Sent do remetente. Se a entrega falhar nada é salvo.
func (a *API) handleSend(w http.ResponseWriter, r *http.Request) {
	email := userFrom(r)

	var body struct {
		To      string `json:"to"`
		Cc      string `json:"cc"`
		Bcc     string `json:"bcc"`
		Subject string `json:"subject"`
		Text    string `json:"text"`
		HTML    string `json:"html"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "corpo da requisição inválido")
		return
	}
	if strings.TrimSpace(body.To) == "" {
		writeError(w, http.StatusBadRequest, "destinatário (to) é obrigatório")
		return
	}

	subject := body.Subject
	if subject == "" {
		subject = "(sem assunto)"
	}

	recipients := splitAddresses(body.To)
	recipients = append(recipients, splitAddresses(body.Cc)...)
	recipients = append(recipients, splitAddresses(body.Bcc)...)

	now := time.Now()
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), a.cfg.SMTP.Domain)

	eml, err := buildEML(email, body.To, body.Cc, subject, messageID, now, body.Text, body.HTML)
	if err != nil {
		logrus.WithError(err).Error("falha ao montar mensagem")
		writeError(w, http.StatusInternalServerError, "erro interno do servidor")
		return
	}

	if err := relayMail(&a.cfg.SMTP, email, recipients, eml); err != nil {
		logrus.WithFields(logrus.Fields{
			"email": email,
			"to":    body.To,
			"err":   err.Error(),
		}).Error("falha ao enviar mensagem")
		writeError(w, http.StatusInternalServerError, "falha ao enviar mensagem")
		return
	}

	logrus.WithFields(logrus.Fields{
		"email":      email,
		"message_id": messageID,
		"to":         body.To,
	}).Info("mensagem enviada")

	// Guardar cópia na caixa Sent (não bloqueia a resposta em caso de falha)
	a.saveSentMail(email, messageID, recipients, subject, now, eml)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"messageId": messageID,
	})
}
