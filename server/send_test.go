package server

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/aferreira/novemail/config"
	"github.com/aferreira/novemail/storage"
	"github.com/stretchr/testify/require"
)

// newStorageTestAPI cria uma API com armazenamento SQLite temporário e
// um usuário provisionado
func newStorageTestAPI(t *testing.T) *API {
	t.Helper()

	cfg := &config.Config{}
	cfg.JWT.Secret = "segredo-de-teste"
	cfg.JWT.ExpiresHours = 1

	store, err := storage.NewSQLiteStorage(&config.DatabaseConfig{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), "novemail_test.db"),
	})
	require.NoError(t, err)
	require.NoError(t, store.Open())
	t.Cleanup(func() { store.Close() })

	md, err := storage.NewMailDir(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.CreateUser(&storage.User{Email: "ana@example.com", Username: "ana"}, "segredo123"))
	return NewAPI(cfg, store, md)
}

func TestSplitAddresses(t *testing.T) {
	require.Equal(t,
		[]string{"a@x.com", "b@x.com"},
		splitAddresses(" a@x.com , b@x.com ,, "))
	require.Nil(t, splitAddresses(""))
	require.Nil(t, splitAddresses(" , ,"))
}

func TestSaveSentMailNoRecipients(t *testing.T) {
	api := newStorageTestAPI(t)

	// Uma lista de destinatários vazia não pode derrubar a gravação da cópia
	api.saveSentMail("ana@example.com", "<m1@example.com>", nil, "oi", time.Now(),
		[]byte("From: ana@example.com\r\nSubject: oi\r\n\r\ncorpo"))

	sent, err := api.store.GetMailboxByPath("ana@example.com", "Sent")
	require.NoError(t, err)
	require.Equal(t, 1, sent.MailCount)

	view, err := api.store.GetMail("ana@example.com", "<m1@example.com>")
	require.NoError(t, err)
	require.Empty(t, view.Recipient)
}

func TestBuildEMLRoundTrip(t *testing.T) {
	eml, err := buildEML(
		"ana@example.com", "bruno@example.com", "carla@example.com",
		"olá", "<abc@example.com>", time.Now(),
		"corpo em texto", "<p>corpo em html</p>",
	)
	require.NoError(t, err)

	// O EML montado precisa ser legível pelo mesmo interpretador da leitura
	content, err := parseEML(eml)
	require.NoError(t, err)
	require.Equal(t, "corpo em texto", content.Text)
	require.Equal(t, "<p>corpo em html</p>", content.HTML)
	require.Empty(t, content.Attachments)
}

func TestBuildEMLTextOnly(t *testing.T) {
	eml, err := buildEML(
		"ana@example.com", "bruno@example.com", "",
		"olá", "<abc@example.com>", time.Now(),
		"apenas texto", "",
	)
	require.NoError(t, err)

	content, err := parseEML(eml)
	require.NoError(t, err)
	require.Equal(t, "apenas texto", content.Text)
	require.Empty(t, content.HTML)
}

func TestBuildEMLHTMLOnly(t *testing.T) {
	eml, err := buildEML(
		"ana@example.com", "bruno@example.com", "",
		"olá", "<abc@example.com>", time.Now(),
		"", "<p>apenas html</p>",
	)
	require.NoError(t, err)

	content, err := parseEML(eml)
	require.NoError(t, err)
	require.Equal(t, "<p>apenas html</p>", content.HTML)
	require.Empty(t, content.Text)
}
