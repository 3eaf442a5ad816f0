package storage

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aferreira/novemail/config"
	"github.com/stretchr/testify/require"
)

const testUser = "ana@example.com"

// newTestStorage cria um armazenamento SQLite temporário com um usuário
// provisionado
func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), "novemail_test.db"),
	}
	store, err := NewSQLiteStorage(cfg)
	require.NoError(t, err)
	require.NoError(t, store.Open())
	t.Cleanup(func() { store.Close() })

	s := store.(*SQLiteStorage)
	require.NoError(t, s.CreateUser(&User{Email: testUser, Username: "ana"}, "segredo123"))
	return s
}

// testMessage monta uma mensagem de teste com o identificador informado
func testMessage(id string) *Message {
	return &Message{
		ID:        fmt.Sprintf("<%s@example.com>", id),
		Subject:   "assunto " + id,
		Sender:    testUser,
		Recipient: "bruno@example.com",
		SendDT:    time.Now(),
	}
}

// liveCount conta os vínculos vivos de uma caixa direto na tabela
func liveCount(t *testing.T, s *SQLiteStorage, mailboxID string) int {
	t.Helper()
	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM mails WHERE mailbox_id = ? AND is_deleted = 0", mailboxID,
	).Scan(&n)
	require.NoError(t, err)
	return n
}

// requireCounterInvariant verifica que mail_count de cada caixa do
// usuário bate com a contagem real de vínculos
func requireCounterInvariant(t *testing.T, s *SQLiteStorage) {
	t.Helper()
	mailboxes, err := s.ListMailboxes(testUser)
	require.NoError(t, err)
	for _, mb := range mailboxes {
		require.Equal(t, liveCount(t, s, mb.ID), mb.MailCount,
			"mail_count da caixa %s divergente", mb.Path)
	}
}

func TestCreateUserDefaultMailboxes(t *testing.T) {
	s := newTestStorage(t)

	mailboxes, err := s.ListMailboxes(testUser)
	require.NoError(t, err)
	require.Len(t, mailboxes, 5)

	var paths []string
	for _, mb := range mailboxes {
		paths = append(paths, mb.Path)
		require.Equal(t, 0, mb.MailCount)
		require.Equal(t, int64(1), mb.NextUID)
	}
	require.Equal(t, []string{"INBOX", "Sent", "Drafts", "Trash", "Junk"}, paths)

	err = s.CreateUser(&User{Email: testUser, Username: "ana"}, "outra")
	require.ErrorIs(t, err, ErrUserExists)
}

func TestAuthenticateUser(t *testing.T) {
	s := newTestStorage(t)

	user, err := s.AuthenticateUser(testUser, "segredo123")
	require.NoError(t, err)
	require.Equal(t, testUser, user.Email)

	_, err = s.AuthenticateUser(testUser, "senha-errada")
	require.ErrorIs(t, err, ErrUserNotFound)

	_, err = s.AuthenticateUser("ninguem@example.com", "segredo123")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestCreateMailbox(t *testing.T) {
	s := newTestStorage(t)

	mb, err := s.CreateMailbox(testUser, "2024", "INBOX")
	require.NoError(t, err)
	require.Equal(t, "INBOX.2024", mb.Path)
	require.Equal(t, "2024", mb.Name)

	stored, err := s.GetMailboxByPath(testUser, "INBOX.2024")
	require.NoError(t, err)
	require.Equal(t, 0, stored.MailCount)
	require.Equal(t, int64(1), stored.NextUID)

	_, err = s.CreateMailbox(testUser, "2024", "INBOX")
	require.ErrorIs(t, err, ErrMailboxExists)

	_, err = s.CreateMailbox(testUser, "   ", "")
	require.ErrorIs(t, err, ErrInvalidMailboxName)

	// O ponto é o separador de níveis: um nome com ponto criaria um
	// caminho cujo prefixo não existe como caixa
	_, err = s.CreateMailbox(testUser, "Ghost.Child", "")
	require.ErrorIs(t, err, ErrInvalidMailboxName)
	_, err = s.CreateMailbox(testUser, "a.b", "INBOX")
	require.ErrorIs(t, err, ErrInvalidMailboxName)

	_, err = s.CreateMailbox(testUser, "Novo", "Inexistente")
	require.ErrorIs(t, err, ErrMailboxNotFound)
}

func TestSaveMailIdempotentCatalog(t *testing.T) {
	s := newTestStorage(t)

	msg := testMessage("m1")
	recipients := []string{"Bruno@example.com", "bruno@example.com", "Bruno@example.com"}

	require.NoError(t, s.SaveMail(testUser, "INBOX", msg, recipients, 100, false))
	require.NoError(t, s.SaveMail(testUser, "INBOX", msg, recipients, 100, false))

	var catalogRows int
	require.NoError(t, s.db.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE message_id = ?", msg.ID,
	).Scan(&catalogRows))
	require.Equal(t, 1, catalogRows, "catálogo deve ter exatamente uma linha por message_id")

	// Dedução de destinatários é sensível a maiúsculas: dois endereços distintos
	var rcptRows int
	require.NoError(t, s.db.QueryRow(
		"SELECT COUNT(*) FROM recipients WHERE message_id = ?", msg.ID,
	).Scan(&rcptRows))
	require.Equal(t, 2, rcptRows)

	requireCounterInvariant(t, s)
}

func TestSaveMailUnknownMailboxIsNoop(t *testing.T) {
	s := newTestStorage(t)

	msg := testMessage("m1")
	require.NoError(t, s.SaveMail(testUser, "Inexistente", msg, nil, 100, false))

	var catalogRows int
	require.NoError(t, s.db.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE message_id = ?", msg.ID,
	).Scan(&catalogRows))
	require.Equal(t, 0, catalogRows)

	requireCounterInvariant(t, s)
}

func TestConcurrentSaveMailUIDs(t *testing.T) {
	s := newTestStorage(t)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := testMessage(fmt.Sprintf("m%d", i))
			errs <- s.SaveMail(testUser, "INBOX", msg, nil, 100, false)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	inbox, err := s.GetMailboxByPath(testUser, "INBOX")
	require.NoError(t, err)
	require.Equal(t, n, inbox.MailCount)
	require.Equal(t, int64(n+1), inbox.NextUID)

	// uids devem ser 1..n sem repetição
	rows, err := s.db.Query(
		"SELECT uid FROM mails WHERE mailbox_id = ? ORDER BY uid", inbox.ID,
	)
	require.NoError(t, err)
	defer rows.Close()

	var uids []int64
	for rows.Next() {
		var uid int64
		require.NoError(t, rows.Scan(&uid))
		uids = append(uids, uid)
	}
	require.NoError(t, rows.Err())
	require.Len(t, uids, n)
	for i, uid := range uids {
		require.Equal(t, int64(i+1), uid)
	}

	requireCounterInvariant(t, s)
}

func TestMoveMailScenario(t *testing.T) {
	s := newTestStorage(t)

	target, err := s.CreateMailbox(testUser, "2024", "INBOX")
	require.NoError(t, err)
	require.Equal(t, "INBOX.2024", target.Path)

	msg := testMessage("m1")
	require.NoError(t, s.SaveMail(testUser, "INBOX", msg, nil, 100, false))

	inbox, err := s.GetMailboxByPath(testUser, "INBOX")
	require.NoError(t, err)
	require.Equal(t, 1, inbox.MailCount)

	var uid int64
	require.NoError(t, s.db.QueryRow(
		"SELECT uid FROM mails WHERE message_id = ?", msg.ID,
	).Scan(&uid))
	require.Equal(t, int64(1), uid)

	// Mover para INBOX.2024: contadores ajustados, uid novo atribuído no destino
	require.NoError(t, s.MoveMail(testUser, msg.ID, target.ID))

	inbox, err = s.GetMailboxByPath(testUser, "INBOX")
	require.NoError(t, err)
	require.Equal(t, 0, inbox.MailCount)

	moved, err := s.GetMailbox(testUser, target.ID)
	require.NoError(t, err)
	require.Equal(t, 1, moved.MailCount)

	var newUID int64
	var newMailbox string
	require.NoError(t, s.db.QueryRow(
		"SELECT uid, mailbox_id FROM mails WHERE message_id = ?", msg.ID,
	).Scan(&newUID, &newMailbox))
	require.Equal(t, int64(1), newUID)
	require.Equal(t, target.ID, newMailbox)

	// Excluir: vínculo removido, catálogo preservado
	require.NoError(t, s.DeleteMail(testUser, msg.ID))

	moved, err = s.GetMailbox(testUser, target.ID)
	require.NoError(t, err)
	require.Equal(t, 0, moved.MailCount)

	var catalogRows int
	require.NoError(t, s.db.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE message_id = ?", msg.ID,
	).Scan(&catalogRows))
	require.Equal(t, 1, catalogRows)

	requireCounterInvariant(t, s)
}

func TestMoveMailSameMailboxIsNoop(t *testing.T) {
	s := newTestStorage(t)

	msg := testMessage("m1")
	require.NoError(t, s.SaveMail(testUser, "INBOX", msg, nil, 100, false))

	inbox, err := s.GetMailboxByPath(testUser, "INBOX")
	require.NoError(t, err)

	var uidBefore int64
	require.NoError(t, s.db.QueryRow(
		"SELECT uid FROM mails WHERE message_id = ?", msg.ID,
	).Scan(&uidBefore))

	require.NoError(t, s.MoveMail(testUser, msg.ID, inbox.ID))

	after, err := s.GetMailboxByPath(testUser, "INBOX")
	require.NoError(t, err)
	require.Equal(t, inbox.MailCount, after.MailCount)
	require.Equal(t, inbox.NextUID, after.NextUID)

	var uidAfter int64
	require.NoError(t, s.db.QueryRow(
		"SELECT uid FROM mails WHERE message_id = ?", msg.ID,
	).Scan(&uidAfter))
	require.Equal(t, uidBefore, uidAfter)
}

func TestMoveMailResetsReadState(t *testing.T) {
	s := newTestStorage(t)

	msg := testMessage("m1")
	require.NoError(t, s.SaveMail(testUser, "INBOX", msg, nil, 100, true))

	trash, err := s.GetMailboxByPath(testUser, "Trash")
	require.NoError(t, err)
	require.NoError(t, s.MoveMail(testUser, msg.ID, trash.ID))

	// Política: mover cria um vínculo novo, o estado de leitura recomeça
	var isRead bool
	require.NoError(t, s.db.QueryRow(
		"SELECT is_read FROM mails WHERE message_id = ?", msg.ID,
	).Scan(&isRead))
	require.False(t, isRead)
}

func TestMoveMailTargetNotFound(t *testing.T) {
	s := newTestStorage(t)

	msg := testMessage("m1")
	require.NoError(t, s.SaveMail(testUser, "INBOX", msg, nil, 100, false))

	err := s.MoveMail(testUser, msg.ID, "000000000")
	require.ErrorIs(t, err, ErrMailboxNotFound)

	err = s.MoveMail(testUser, "<inexistente@example.com>", "000000000")
	require.ErrorIs(t, err, ErrMailboxNotFound)

	requireCounterInvariant(t, s)
}

func TestDeleteMailboxCascade(t *testing.T) {
	s := newTestStorage(t)

	projetos, err := s.CreateMailbox(testUser, "Projetos", "")
	require.NoError(t, err)
	_, err = s.CreateMailbox(testUser, "2024", "Projetos")
	require.NoError(t, err)
	_, err = s.CreateMailbox(testUser, "Q1", "Projetos.2024")
	require.NoError(t, err)

	// "Projetos2" compartilha o prefixo de texto mas não é descendente
	_, err = s.CreateMailbox(testUser, "Projetos2", "")
	require.NoError(t, err)

	require.NoError(t, s.DeleteMailbox(testUser, projetos.ID))

	_, err = s.GetMailboxByPath(testUser, "Projetos")
	require.ErrorIs(t, err, ErrMailboxNotFound)
	_, err = s.GetMailboxByPath(testUser, "Projetos.2024")
	require.ErrorIs(t, err, ErrMailboxNotFound)
	_, err = s.GetMailboxByPath(testUser, "Projetos.2024.Q1")
	require.ErrorIs(t, err, ErrMailboxNotFound)

	_, err = s.GetMailboxByPath(testUser, "Projetos2")
	require.NoError(t, err)
}

func TestDeleteMailboxWildcardNamesAreLiteral(t *testing.T) {
	s := newTestStorage(t)

	underscore, err := s.CreateMailbox(testUser, "A_", "")
	require.NoError(t, err)
	_, err = s.CreateMailbox(testUser, "filha", "A_")
	require.NoError(t, err)

	// "A_" com curinga de LIKE casaria "AB" e toda a subárvore dele
	_, err = s.CreateMailbox(testUser, "AB", "")
	require.NoError(t, err)
	_, err = s.CreateMailbox(testUser, "x", "AB")
	require.NoError(t, err)

	// "100%.%" sem escape casaria "1000.sub"
	percent, err := s.CreateMailbox(testUser, "100%", "")
	require.NoError(t, err)
	_, err = s.CreateMailbox(testUser, "1000", "")
	require.NoError(t, err)
	_, err = s.CreateMailbox(testUser, "sub", "1000")
	require.NoError(t, err)

	require.NoError(t, s.DeleteMailbox(testUser, underscore.ID))
	require.NoError(t, s.DeleteMailbox(testUser, percent.ID))

	// As subárvores das caixas excluídas somem
	_, err = s.GetMailboxByPath(testUser, "A_.filha")
	require.ErrorIs(t, err, ErrMailboxNotFound)

	// Caixas que só casariam por curinga ficam intactas
	_, err = s.GetMailboxByPath(testUser, "AB")
	require.NoError(t, err)
	_, err = s.GetMailboxByPath(testUser, "AB.x")
	require.NoError(t, err)
	_, err = s.GetMailboxByPath(testUser, "1000")
	require.NoError(t, err)
	_, err = s.GetMailboxByPath(testUser, "1000.sub")
	require.NoError(t, err)
}

func TestDeleteMailboxPurgesMail(t *testing.T) {
	s := newTestStorage(t)

	arquivo, err := s.CreateMailbox(testUser, "Arquivo", "")
	require.NoError(t, err)

	msg := testMessage("m1")
	require.NoError(t, s.SaveMail(testUser, "Arquivo", msg, nil, 100, false))
	require.Equal(t, 1, liveCount(t, s, arquivo.ID))

	require.NoError(t, s.DeleteMailbox(testUser, arquivo.ID))

	// Excluir a caixa exclui o correio dela (decisão de produto)
	var mailRows int
	require.NoError(t, s.db.QueryRow(
		"SELECT COUNT(*) FROM mails WHERE mailbox_id = ?", arquivo.ID,
	).Scan(&mailRows))
	require.Equal(t, 0, mailRows)
}

func TestDeleteReservedMailbox(t *testing.T) {
	s := newTestStorage(t)

	inbox, err := s.GetMailboxByPath(testUser, "INBOX")
	require.NoError(t, err)
	require.ErrorIs(t, s.DeleteMailbox(testUser, inbox.ID), ErrMailboxReserved)

	// Subcaixa com nome reservado não é protegida: o caminho tem ponto
	sub, err := s.CreateMailbox(testUser, "INBOX", "Sent")
	require.NoError(t, err)
	require.Equal(t, "Sent.INBOX", sub.Path)
	require.NoError(t, s.DeleteMailbox(testUser, sub.ID))

	archive, err := s.CreateMailbox(testUser, "Archive", "INBOX")
	require.NoError(t, err)
	require.NoError(t, s.DeleteMailbox(testUser, archive.ID))
}

func TestListMailsPagination(t *testing.T) {
	s := newTestStorage(t)

	inbox, err := s.GetMailboxByPath(testUser, "INBOX")
	require.NoError(t, err)

	for i := 0; i < 45; i++ {
		msg := testMessage(fmt.Sprintf("m%d", i))
		require.NoError(t, s.SaveMail(testUser, "INBOX", msg, nil, 100, false))
	}

	mails, total, err := s.ListMails(testUser, inbox.ID, 1, 30)
	require.NoError(t, err)
	require.Equal(t, 45, total)
	require.Len(t, mails, 30)

	mails, total, err = s.ListMails(testUser, inbox.ID, 2, 30)
	require.NoError(t, err)
	require.Equal(t, 45, total)
	require.Len(t, mails, 15)

	// Sem escritas concorrentes, as duas páginas não podem se sobrepor
	seen := make(map[string]bool)
	page1, _, err := s.ListMails(testUser, inbox.ID, 1, 30)
	require.NoError(t, err)
	for _, m := range page1 {
		seen[m.MessageID] = true
	}
	for _, m := range mails {
		require.False(t, seen[m.MessageID], "mensagem repetida entre páginas: %s", m.MessageID)
	}
}

func TestListMailsOtherUsersMailbox(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.CreateUser(&User{Email: "carla@example.com", Username: "carla"}, "outrasenha"))

	inbox, err := s.GetMailboxByPath(testUser, "INBOX")
	require.NoError(t, err)

	// A caixa existe mas pertence a outro usuário: mesmo erro de não encontrada
	_, _, err = s.ListMails("carla@example.com", inbox.ID, 1, 30)
	require.ErrorIs(t, err, ErrMailboxNotFound)
}

func TestGetMailMarksRead(t *testing.T) {
	s := newTestStorage(t)

	msg := testMessage("m1")
	require.NoError(t, s.SaveMail(testUser, "INBOX", msg, nil, 100, false))

	view, err := s.GetMail(testUser, msg.ID)
	require.NoError(t, err)
	require.True(t, view.IsRead)

	var isRead bool
	require.NoError(t, s.db.QueryRow(
		"SELECT is_read FROM mails WHERE message_id = ?", msg.ID,
	).Scan(&isRead))
	require.True(t, isRead)

	// Abrir de novo é inofensivo
	view, err = s.GetMail(testUser, msg.ID)
	require.NoError(t, err)
	require.True(t, view.IsRead)

	// Outro usuário não enxerga a mensagem
	require.NoError(t, s.CreateUser(&User{Email: "carla@example.com", Username: "carla"}, "outrasenha"))
	_, err = s.GetMail("carla@example.com", msg.ID)
	require.ErrorIs(t, err, ErrMailNotFound)
}

func TestCounterInvariantUnderMixedMutations(t *testing.T) {
	s := newTestStorage(t)

	trash, err := s.GetMailboxByPath(testUser, "Trash")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		msg := testMessage(fmt.Sprintf("m%d", i))
		require.NoError(t, s.SaveMail(testUser, "INBOX", msg, nil, 100, false))
		requireCounterInvariant(t, s)

		if i%2 == 0 {
			require.NoError(t, s.MoveMail(testUser, msg.ID, trash.ID))
			requireCounterInvariant(t, s)
		}
		if i%3 == 0 {
			require.NoError(t, s.DeleteMail(testUser, msg.ID))
			requireCounterInvariant(t, s)
		}
	}
}
