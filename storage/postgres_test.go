package storage

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

// newMockPostgres cria um PostgresStorage sobre um banco simulado, para
// exercitar os caminhos que dependem do comportamento read committed do
// PostgreSQL sem precisar de um servidor
func newMockPostgres(t *testing.T) (*PostgresStorage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &PostgresStorage{db: db}, mock
}

// Duas transações concorrentes podem ler o mesmo vínculo; a que perder a
// corrida encontra o DELETE sem efeito e precisa abortar sem tocar nos
// contadores nem criar vínculo novo na caixa de destino.
func TestPostgresMoveMailLostRaceAborts(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT next_uid FROM mailboxes").
		WithArgs("t1", testUser).
		WillReturnRows(sqlmock.NewRows([]string{"next_uid"}).AddRow(7))
	mock.ExpectQuery("SELECT ml.id, ml.mailbox_id, ml.size").
		WithArgs("<m1@example.com>", testUser).
		WillReturnRows(sqlmock.NewRows([]string{"id", "mailbox_id", "size"}).AddRow(5, "b1", 100))
	mock.ExpectExec("DELETE FROM mails").
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.MoveMail(testUser, "<m1@example.com>", "t1")
	require.ErrorIs(t, err, ErrMailNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteMailLostRaceAborts(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT ml.id, ml.mailbox_id").
		WithArgs("<m1@example.com>", testUser).
		WillReturnRows(sqlmock.NewRows([]string{"id", "mailbox_id"}).AddRow(5, "b1"))
	mock.ExpectExec("DELETE FROM mails").
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.DeleteMail(testUser, "<m1@example.com>")
	require.ErrorIs(t, err, ErrMailNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

// Caminho normal: o DELETE afeta a linha lida e os contadores das duas
// caixas são ajustados na mesma transação
func TestPostgresMoveMailAdjustsCounters(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT next_uid FROM mailboxes").
		WithArgs("t1", testUser).
		WillReturnRows(sqlmock.NewRows([]string{"next_uid"}).AddRow(7))
	mock.ExpectQuery("SELECT ml.id, ml.mailbox_id, ml.size").
		WithArgs("<m1@example.com>", testUser).
		WillReturnRows(sqlmock.NewRows([]string{"id", "mailbox_id", "size"}).AddRow(5, "b1", 100))
	mock.ExpectExec("DELETE FROM mails").
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE mailboxes SET mail_count = GREATEST").
		WithArgs("b1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO mails").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE mailboxes SET next_uid = next_uid").
		WithArgs("t1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.MoveMail(testUser, "<m1@example.com>", "t1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
