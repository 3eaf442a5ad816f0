package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aferreira/novemail/config"
	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// SQLiteStorage implementa a interface Storage para SQLite
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage cria uma nova instância de armazenamento SQLite
func NewSQLiteStorage(cfg *config.DatabaseConfig) (Storage, error) {
	// Garantir que o diretório existe
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("falha ao criar diretório para SQLite: %w", err)
	}

	return &SQLiteStorage{
		path: cfg.Path,
	}, nil
}

// Open abre a conexão com o banco de dados.
// WAL melhora leituras concorrentes; busy_timeout faz escritores
// esperarem até 5 segundos por um bloqueio antes de falhar com SQLITE_BUSY.
func (s *SQLiteStorage) Open() error {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate", s.path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("falha ao abrir banco de dados SQLite: %w", err)
	}
	s.db = db

	if err := s.createSchema(); err != nil {
		s.db.Close()
		return fmt.Errorf("falha ao criar esquema SQLite: %w", err)
	}

	return nil
}

// Close fecha a conexão com o banco de dados
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// createSchema cria o esquema do banco de dados
func (s *SQLiteStorage) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		email TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		password TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS mailboxes (
		mailbox_id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		mailbox_name TEXT NOT NULL,
		mailbox_path TEXT NOT NULL,
		mail_count INTEGER NOT NULL DEFAULT 0,
		next_uid INTEGER NOT NULL DEFAULT 1,
		FOREIGN KEY (email) REFERENCES users(email) ON DELETE CASCADE,
		UNIQUE (email, mailbox_path)
	);

	CREATE TABLE IF NOT EXISTS messages (
		message_id TEXT PRIMARY KEY,
		subject TEXT,
		sender TEXT NOT NULL,
		recipient TEXT,
		send_dt DATETIME NOT NULL,
		filename TEXT
	);

	CREATE TABLE IF NOT EXISTS mails (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT NOT NULL,
		mailbox_id TEXT NOT NULL,
		uid INTEGER NOT NULL,
		is_read INTEGER NOT NULL DEFAULT 0,
		is_flagged INTEGER NOT NULL DEFAULT 0,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		size INTEGER NOT NULL DEFAULT 0,
		receive_dt TEXT NOT NULL,
		receive_time TEXT NOT NULL,
		FOREIGN KEY (message_id) REFERENCES messages(message_id),
		FOREIGN KEY (mailbox_id) REFERENCES mailboxes(mailbox_id) ON DELETE CASCADE,
		UNIQUE (mailbox_id, uid)
	);

	CREATE TABLE IF NOT EXISTS recipients (
		message_id TEXT NOT NULL,
		email TEXT NOT NULL,
		FOREIGN KEY (message_id) REFERENCES messages(message_id) ON DELETE CASCADE,
		UNIQUE (message_id, email)
	);

	CREATE INDEX IF NOT EXISTS idx_mailboxes_email_path ON mailboxes(email, mailbox_path);
	CREATE INDEX IF NOT EXISTS idx_mails_mailbox ON mails(mailbox_id, is_deleted);
	CREATE INDEX IF NOT EXISTS idx_mails_message ON mails(message_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// mapSQLiteErr converte erros de bloqueio do SQLite em ErrBusy,
// para que o chamador possa tentar novamente
func mapSQLiteErr(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return fmt.Errorf("%w: %v", ErrBusy, err)
		}
	}
	return err
}

// CreateUser cria um novo usuário com as caixas de correio padrão
func (s *SQLiteStorage) CreateUser(user *User, password string) error {
	user.Created = time.Now()
	user.Active = true

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("falha ao iniciar transação: %w", mapSQLiteErr(err))
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO users (email, username, password, active, created) VALUES (?, ?, ?, 1, ?)",
		user.Email, user.Username, hashPassword(password), user.Created,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return ErrUserExists
		}
		return fmt.Errorf("falha ao criar usuário: %w", mapSQLiteErr(err))
	}

	// Criar caixas padrão
	for _, name := range DefaultMailboxes {
		_, err = tx.Exec(
			"INSERT INTO mailboxes (mailbox_id, email, mailbox_name, mailbox_path) VALUES (?, ?, ?, ?)",
			generateMailboxID(), user.Email, name, name,
		)
		if err != nil {
			return fmt.Errorf("falha ao criar caixa de correio padrão: %w", mapSQLiteErr(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("falha ao confirmar transação: %w", mapSQLiteErr(err))
	}

	logrus.WithFields(logrus.Fields{"email": user.Email}).Info("usuário criado")
	return nil
}

// GetUser obtém um usuário ativo pelo email
func (s *SQLiteStorage) GetUser(email string) (*User, error) {
	user := &User{}
	var active int
	err := s.db.QueryRow(
		"SELECT email, username, active, created FROM users WHERE email = ? AND active = 1",
		email,
	).Scan(&user.Email, &user.Username, &active, &user.Created)

	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	} else if err != nil {
		return nil, fmt.Errorf("falha ao obter usuário: %w", mapSQLiteErr(err))
	}

	user.Active = active == 1
	return user, nil
}

// AuthenticateUser autentica um usuário comparando o hash SHA-256 da senha
func (s *SQLiteStorage) AuthenticateUser(email, password string) (*User, error) {
	user := &User{}
	var stored string
	err := s.db.QueryRow(
		"SELECT email, username, password FROM users WHERE email = ? AND active = 1",
		email,
	).Scan(&user.Email, &user.Username, &stored)

	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	} else if err != nil {
		return nil, fmt.Errorf("falha ao obter usuário: %w", mapSQLiteErr(err))
	}

	if hashPassword(password) != stored {
		return nil, ErrUserNotFound
	}

	user.Active = true
	return user, nil
}

// Métodos de implementação para Mailbox

// ListMailboxes lista as caixas do usuário com as caixas padrão primeiro,
// em ordem canônica, cada uma seguida das suas subcaixas em ordem de caminho
func (s *SQLiteStorage) ListMailboxes(email string) ([]*Mailbox, error) {
	rows, err := s.db.Query(
		`SELECT mailbox_id, email, mailbox_name, mailbox_path, mail_count, next_uid
		FROM mailboxes
		WHERE email = ?
		ORDER BY
			CASE
				WHEN mailbox_path = 'INBOX' OR mailbox_path LIKE 'INBOX.%' THEN 1
				WHEN mailbox_path = 'Sent' OR mailbox_path LIKE 'Sent.%' THEN 2
				WHEN mailbox_path = 'Drafts' OR mailbox_path LIKE 'Drafts.%' THEN 3
				WHEN mailbox_path = 'Trash' OR mailbox_path LIKE 'Trash.%' THEN 4
				WHEN mailbox_path = 'Junk' OR mailbox_path LIKE 'Junk.%' THEN 5
				ELSE 6
			END,
			mailbox_path`,
		email,
	)
	if err != nil {
		return nil, fmt.Errorf("falha ao listar caixas de correio: %w", mapSQLiteErr(err))
	}
	defer rows.Close()

	var mailboxes []*Mailbox
	for rows.Next() {
		mb := &Mailbox{}
		if err := rows.Scan(&mb.ID, &mb.Email, &mb.Name, &mb.Path, &mb.MailCount, &mb.NextUID); err != nil {
			return nil, fmt.Errorf("falha ao ler dados da caixa de correio: %w", err)
		}
		mailboxes = append(mailboxes, mb)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("erro ao iterar sobre caixas de correio: %w", err)
	}

	return mailboxes, nil
}

// GetMailbox obtém uma caixa pelo identificador, restrita ao usuário
func (s *SQLiteStorage) GetMailbox(email, mailboxID string) (*Mailbox, error) {
	mb := &Mailbox{}
	err := s.db.QueryRow(
		"SELECT mailbox_id, email, mailbox_name, mailbox_path, mail_count, next_uid FROM mailboxes WHERE mailbox_id = ? AND email = ?",
		mailboxID, email,
	).Scan(&mb.ID, &mb.Email, &mb.Name, &mb.Path, &mb.MailCount, &mb.NextUID)

	if err == sql.ErrNoRows {
		return nil, ErrMailboxNotFound
	} else if err != nil {
		return nil, fmt.Errorf("falha ao obter caixa de correio: %w", mapSQLiteErr(err))
	}

	return mb, nil
}

// GetMailboxByPath obtém uma caixa pelo caminho materializado
func (s *SQLiteStorage) GetMailboxByPath(email, path string) (*Mailbox, error) {
	mb := &Mailbox{}
	err := s.db.QueryRow(
		"SELECT mailbox_id, email, mailbox_name, mailbox_path, mail_count, next_uid FROM mailboxes WHERE email = ? AND mailbox_path = ?",
		email, path,
	).Scan(&mb.ID, &mb.Email, &mb.Name, &mb.Path, &mb.MailCount, &mb.NextUID)

	if err == sql.ErrNoRows {
		return nil, ErrMailboxNotFound
	} else if err != nil {
		return nil, fmt.Errorf("falha ao obter caixa de correio: %w", mapSQLiteErr(err))
	}

	return mb, nil
}

// CreateMailbox cria uma caixa de correio. O caminho materializado é
// parentPath + "." + name quando há caixa pai, ou apenas name na raiz.
// A caixa pai precisa existir para o usuário.
func (s *SQLiteStorage) CreateMailbox(email, name, parentPath string) (*Mailbox, error) {
	trimmed := trimName(name)
	if !validMailboxName(trimmed) {
		return nil, ErrInvalidMailboxName
	}

	path := trimmed
	if parentPath != "" {
		if _, err := s.GetMailboxByPath(email, parentPath); err != nil {
			return nil, err
		}
		path = parentPath + "." + trimmed
	}

	// Verificar caminho duplicado
	var existing string
	err := s.db.QueryRow(
		"SELECT mailbox_id FROM mailboxes WHERE email = ? AND mailbox_path = ?",
		email, path,
	).Scan(&existing)
	if err == nil {
		return nil, ErrMailboxExists
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("falha ao verificar caixa de correio: %w", mapSQLiteErr(err))
	}

	mb := &Mailbox{
		ID:      generateMailboxID(),
		Email:   email,
		Name:    trimmed,
		Path:    path,
		NextUID: 1,
	}
	_, err = s.db.Exec(
		"INSERT INTO mailboxes (mailbox_id, email, mailbox_name, mailbox_path) VALUES (?, ?, ?, ?)",
		mb.ID, mb.Email, mb.Name, mb.Path,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, ErrMailboxExists
		}
		return nil, fmt.Errorf("falha ao criar caixa de correio: %w", mapSQLiteErr(err))
	}

	logrus.WithFields(logrus.Fields{
		"email":        email,
		"mailbox_id":   mb.ID,
		"mailbox_path": mb.Path,
	}).Info("caixa de correio criada")
	return mb, nil
}

// DeleteMailbox exclui uma caixa e, em cascata, todas as subcaixas cujo
// caminho começa com o caminho dela seguido de ponto. As mensagens das
// caixas excluídas são removidas junto (decisão de produto: excluir a
// caixa exclui o correio dela). Caixas padrão na raiz não podem ser excluídas.
func (s *SQLiteStorage) DeleteMailbox(email, mailboxID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("falha ao iniciar transação: %w", mapSQLiteErr(err))
	}
	defer tx.Rollback()

	mb := &Mailbox{}
	err = tx.QueryRow(
		"SELECT mailbox_id, mailbox_name, mailbox_path FROM mailboxes WHERE mailbox_id = ? AND email = ?",
		mailboxID, email,
	).Scan(&mb.ID, &mb.Name, &mb.Path)
	if err == sql.ErrNoRows {
		return ErrMailboxNotFound
	} else if err != nil {
		return fmt.Errorf("falha ao obter caixa de correio: %w", mapSQLiteErr(err))
	}

	if isReservedMailbox(mb.Name, mb.Path) {
		return ErrMailboxReserved
	}

	// Excluir subcaixas pelo prefixo do caminho materializado. O prefixo é
	// escapado para que % e _ no caminho casem literalmente, e não como curingas.
	_, err = tx.Exec(
		`DELETE FROM mailboxes WHERE email = ? AND mailbox_path LIKE ? ESCAPE '\'`,
		email, escapeLike(mb.Path)+".%",
	)
	if err != nil {
		return fmt.Errorf("falha ao excluir subcaixas: %w", mapSQLiteErr(err))
	}

	_, err = tx.Exec(
		"DELETE FROM mailboxes WHERE mailbox_id = ? AND email = ?",
		mailboxID, email,
	)
	if err != nil {
		return fmt.Errorf("falha ao excluir caixa de correio: %w", mapSQLiteErr(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("falha ao confirmar transação: %w", mapSQLiteErr(err))
	}

	logrus.WithFields(logrus.Fields{
		"email":        email,
		"mailbox_id":   mailboxID,
		"mailbox_path": mb.Path,
	}).Info("caixa de correio excluída")
	return nil
}

// Implementações de Message

// SaveMail arquiva uma mensagem na caixa indicada pelo caminho, de forma
// atômica: insere no catálogo (ignorando message_id duplicado), registra
// os destinatários, cria o vínculo com o uid atual da caixa e avança
// next_uid e mail_count na mesma transação. Se a caixa não existir a
// operação é registrada no log e ignorada, sem erro — arquivar é melhor
// esforço, como no recebimento de cópias de mensagens enviadas.
func (s *SQLiteStorage) SaveMail(email, mailboxPath string, msg *Message, recipients []string, size int64, read bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("falha ao iniciar transação: %w", mapSQLiteErr(err))
	}
	defer tx.Rollback()

	var mailboxID string
	var nextUID int64
	err = tx.QueryRow(
		"SELECT mailbox_id, next_uid FROM mailboxes WHERE email = ? AND mailbox_path = ?",
		email, mailboxPath,
	).Scan(&mailboxID, &nextUID)
	if err == sql.ErrNoRows {
		logrus.WithFields(logrus.Fields{
			"email":        email,
			"mailbox_path": mailboxPath,
			"message_id":   msg.ID,
		}).Warn("caixa de correio inexistente, mensagem não arquivada")
		return nil
	} else if err != nil {
		return fmt.Errorf("falha ao obter caixa de correio: %w", mapSQLiteErr(err))
	}

	var filename interface{}
	if msg.Filename != "" {
		filename = msg.Filename
	}
	_, err = tx.Exec(
		`INSERT OR IGNORE INTO messages (message_id, subject, sender, recipient, send_dt, filename)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.Subject, msg.Sender, msg.Recipient, msg.SendDT, filename,
	)
	if err != nil {
		return fmt.Errorf("falha ao criar mensagem: %w", mapSQLiteErr(err))
	}

	for _, rcpt := range dedupeRecipients(recipients) {
		_, err = tx.Exec(
			"INSERT OR IGNORE INTO recipients (message_id, email) VALUES (?, ?)",
			msg.ID, rcpt,
		)
		if err != nil {
			return fmt.Errorf("falha ao registrar destinatário: %w", mapSQLiteErr(err))
		}
	}

	now := time.Now()
	_, err = tx.Exec(
		`INSERT INTO mails (message_id, mailbox_id, uid, is_read, size, receive_dt, receive_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, mailboxID, nextUID, read, size, now.Format("2006-01-02"), now.Format("15:04:05"),
	)
	if err != nil {
		return fmt.Errorf("falha ao arquivar mensagem: %w", mapSQLiteErr(err))
	}

	_, err = tx.Exec(
		"UPDATE mailboxes SET next_uid = next_uid + 1, mail_count = mail_count + 1 WHERE mailbox_id = ?",
		mailboxID,
	)
	if err != nil {
		return fmt.Errorf("falha ao atualizar contadores da caixa: %w", mapSQLiteErr(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("falha ao confirmar transação: %w", mapSQLiteErr(err))
	}

	logrus.WithFields(logrus.Fields{
		"email":      email,
		"message_id": msg.ID,
		"mailbox_id": mailboxID,
		"uid":        nextUID,
	}).Info("mensagem arquivada")
	return nil
}

// ListMails lista as mensagens de uma caixa, paginadas, da mais recente
// para a mais antiga. Retorna também o total de mensagens vivas da caixa.
// A página é indexada a partir de 1.
func (s *SQLiteStorage) ListMails(email, mailboxID string, page, limit int) ([]*MailSummary, int, error) {
	// Verificar que a caixa pertence ao usuário
	var owned string
	err := s.db.QueryRow(
		"SELECT mailbox_id FROM mailboxes WHERE mailbox_id = ? AND email = ?",
		mailboxID, email,
	).Scan(&owned)
	if err == sql.ErrNoRows {
		return nil, 0, ErrMailboxNotFound
	} else if err != nil {
		return nil, 0, fmt.Errorf("falha ao obter caixa de correio: %w", mapSQLiteErr(err))
	}

	var total int
	err = s.db.QueryRow(
		"SELECT COUNT(*) FROM mails WHERE mailbox_id = ? AND is_deleted = 0",
		mailboxID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("falha ao contar mensagens: %w", mapSQLiteErr(err))
	}

	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	// O desempate por ml.id mantém a paginação estável entre requisições
	rows, err := s.db.Query(
		`SELECT mm.message_id, mm.subject, mm.sender, mm.recipient, mm.send_dt,
			ml.is_read, ml.is_flagged, ml.uid, ml.size, ml.receive_dt, ml.receive_time
		FROM mails ml
		JOIN messages mm ON ml.message_id = mm.message_id
		WHERE ml.mailbox_id = ? AND ml.is_deleted = 0
		ORDER BY ml.receive_dt DESC, ml.receive_time DESC, ml.id DESC
		LIMIT ? OFFSET ?`,
		mailboxID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("falha ao listar mensagens: %w", mapSQLiteErr(err))
	}
	defer rows.Close()

	var mails []*MailSummary
	for rows.Next() {
		m := &MailSummary{}
		if err := rows.Scan(
			&m.MessageID, &m.Subject, &m.Sender, &m.Recipient, &m.SendDT,
			&m.IsRead, &m.IsFlagged, &m.UID, &m.Size, &m.ReceiveDT, &m.ReceiveTime,
		); err != nil {
			return nil, 0, fmt.Errorf("falha ao ler dados da mensagem: %w", err)
		}
		mails = append(mails, m)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("erro ao iterar sobre mensagens: %w", err)
	}

	return mails, total, nil
}

// GetMail obtém os metadados de uma mensagem do usuário e a marca como
// lida. Marcar como lida é idempotente: abrir de novo não muda nada.
func (s *SQLiteStorage) GetMail(email, messageID string) (*MailView, error) {
	mail := &MailView{}
	var filename sql.NullString
	err := s.db.QueryRow(
		`SELECT mm.message_id, mm.subject, mm.sender, mm.recipient, mm.send_dt,
			mm.filename, ml.is_read, ml.mailbox_id
		FROM mails ml
		JOIN messages mm ON ml.message_id = mm.message_id
		JOIN mailboxes mb ON ml.mailbox_id = mb.mailbox_id
		WHERE mm.message_id = ? AND mb.email = ?
		LIMIT 1`,
		messageID, email,
	).Scan(
		&mail.MessageID, &mail.Subject, &mail.Sender, &mail.Recipient, &mail.SendDT,
		&filename, &mail.IsRead, &mail.MailboxID,
	)

	if err == sql.ErrNoRows {
		return nil, ErrMailNotFound
	} else if err != nil {
		return nil, fmt.Errorf("falha ao obter mensagem: %w", mapSQLiteErr(err))
	}
	mail.Filename = filename.String

	_, err = s.db.Exec(
		"UPDATE mails SET is_read = 1 WHERE message_id = ? AND mailbox_id = ?",
		messageID, mail.MailboxID,
	)
	if err != nil {
		return nil, fmt.Errorf("falha ao marcar mensagem como lida: %w", mapSQLiteErr(err))
	}
	mail.IsRead = true

	return mail, nil
}

// GetMailFilename retorna o caminho do EML de uma mensagem do usuário,
// sem marcar como lida (usado para baixar anexos)
func (s *SQLiteStorage) GetMailFilename(email, messageID string) (string, error) {
	var filename sql.NullString
	err := s.db.QueryRow(
		`SELECT mm.filename
		FROM mails ml
		JOIN messages mm ON ml.message_id = mm.message_id
		JOIN mailboxes mb ON ml.mailbox_id = mb.mailbox_id
		WHERE mm.message_id = ? AND mb.email = ?
		LIMIT 1`,
		messageID, email,
	).Scan(&filename)

	if err == sql.ErrNoRows {
		return "", ErrMailNotFound
	} else if err != nil {
		return "", fmt.Errorf("falha ao obter mensagem: %w", mapSQLiteErr(err))
	}

	return filename.String, nil
}

// MoveMail move uma mensagem para outra caixa do mesmo usuário. O vínculo
// antigo é removido e um novo é criado com uid novo da caixa de destino;
// os estados de lida e sinalizada recomeçam zerados (política documentada:
// mover não preserva o estado do arquivamento anterior). Mover para a
// própria caixa é aceito e não altera nada.
func (s *SQLiteStorage) MoveMail(email, messageID, targetMailboxID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("falha ao iniciar transação: %w", mapSQLiteErr(err))
	}
	defer tx.Rollback()

	var targetUID int64
	err = tx.QueryRow(
		"SELECT next_uid FROM mailboxes WHERE mailbox_id = ? AND email = ?",
		targetMailboxID, email,
	).Scan(&targetUID)
	if err == sql.ErrNoRows {
		return ErrMailboxNotFound
	} else if err != nil {
		return fmt.Errorf("falha ao obter caixa de destino: %w", mapSQLiteErr(err))
	}

	var mailID, size int64
	var oldMailboxID string
	err = tx.QueryRow(
		`SELECT ml.id, ml.mailbox_id, ml.size
		FROM mails ml
		JOIN mailboxes mb ON ml.mailbox_id = mb.mailbox_id
		WHERE ml.message_id = ? AND mb.email = ?`,
		messageID, email,
	).Scan(&mailID, &oldMailboxID, &size)
	if err == sql.ErrNoRows {
		return ErrMailNotFound
	} else if err != nil {
		return fmt.Errorf("falha ao obter mensagem: %w", mapSQLiteErr(err))
	}

	if oldMailboxID == targetMailboxID {
		return nil // já está lá
	}

	_, err = tx.Exec("DELETE FROM mails WHERE id = ?", mailID)
	if err != nil {
		return fmt.Errorf("falha ao remover vínculo antigo: %w", mapSQLiteErr(err))
	}

	_, err = tx.Exec(
		"UPDATE mailboxes SET mail_count = MAX(0, mail_count - 1) WHERE mailbox_id = ?",
		oldMailboxID,
	)
	if err != nil {
		return fmt.Errorf("falha ao atualizar contadores da caixa de origem: %w", mapSQLiteErr(err))
	}

	now := time.Now()
	_, err = tx.Exec(
		`INSERT INTO mails (message_id, mailbox_id, uid, size, receive_dt, receive_time)
		VALUES (?, ?, ?, ?, ?, ?)`,
		messageID, targetMailboxID, targetUID, size, now.Format("2006-01-02"), now.Format("15:04:05"),
	)
	if err != nil {
		return fmt.Errorf("falha ao criar vínculo novo: %w", mapSQLiteErr(err))
	}

	_, err = tx.Exec(
		"UPDATE mailboxes SET next_uid = next_uid + 1, mail_count = mail_count + 1 WHERE mailbox_id = ?",
		targetMailboxID,
	)
	if err != nil {
		return fmt.Errorf("falha ao atualizar contadores da caixa de destino: %w", mapSQLiteErr(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("falha ao confirmar transação: %w", mapSQLiteErr(err))
	}

	logrus.WithFields(logrus.Fields{
		"email":      email,
		"message_id": messageID,
		"from":       oldMailboxID,
		"to":         targetMailboxID,
		"uid":        targetUID,
	}).Info("mensagem movida")
	return nil
}

// DeleteMail remove o vínculo de uma mensagem com a caixa onde está e
// decrementa o contador da caixa (nunca abaixo de zero). A linha do
// catálogo e o arquivo EML ficam no lugar; a coleta de mensagens órfãs
// do catálogo é feita fora deste fluxo.
func (s *SQLiteStorage) DeleteMail(email, messageID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("falha ao iniciar transação: %w", mapSQLiteErr(err))
	}
	defer tx.Rollback()

	var mailID int64
	var mailboxID string
	err = tx.QueryRow(
		`SELECT ml.id, ml.mailbox_id
		FROM mails ml
		JOIN mailboxes mb ON ml.mailbox_id = mb.mailbox_id
		WHERE ml.message_id = ? AND mb.email = ?`,
		messageID, email,
	).Scan(&mailID, &mailboxID)
	if err == sql.ErrNoRows {
		return ErrMailNotFound
	} else if err != nil {
		return fmt.Errorf("falha ao obter mensagem: %w", mapSQLiteErr(err))
	}

	_, err = tx.Exec("DELETE FROM mails WHERE id = ?", mailID)
	if err != nil {
		return fmt.Errorf("falha ao excluir mensagem: %w", mapSQLiteErr(err))
	}

	_, err = tx.Exec(
		"UPDATE mailboxes SET mail_count = MAX(0, mail_count - 1) WHERE mailbox_id = ?",
		mailboxID,
	)
	if err != nil {
		return fmt.Errorf("falha ao atualizar contadores da caixa: %w", mapSQLiteErr(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("falha ao confirmar transação: %w", mapSQLiteErr(err))
	}

	logrus.WithFields(logrus.Fields{
		"email":      email,
		"message_id": messageID,
		"mailbox_id": mailboxID,
	}).Info("mensagem excluída")
	return nil
}
