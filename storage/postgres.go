package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aferreira/novemail/config"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// PostgresStorage implementa a interface Storage para PostgreSQL
type PostgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage cria uma nova instância de armazenamento PostgreSQL
func NewPostgresStorage(cfg *config.DatabaseConfig) (Storage, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("falha ao abrir banco de dados PostgreSQL: %w", err)
	}

	return &PostgresStorage{
		db: db,
	}, nil
}

// Open verifica a conexão e cria o esquema
func (s *PostgresStorage) Open() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("falha ao conectar ao PostgreSQL: %w", err)
	}
	if err := s.createSchema(); err != nil {
		return fmt.Errorf("falha ao criar esquema PostgreSQL: %w", err)
	}
	return nil
}

// Close fecha a conexão com o banco de dados
func (s *PostgresStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// createSchema cria o esquema do banco de dados
func (s *PostgresStorage) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		email VARCHAR(254) PRIMARY KEY,
		username VARCHAR(255) NOT NULL,
		password VARCHAR(64) NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS mailboxes (
		mailbox_id VARCHAR(16) PRIMARY KEY,
		email VARCHAR(254) NOT NULL REFERENCES users(email) ON DELETE CASCADE,
		mailbox_name VARCHAR(255) NOT NULL,
		mailbox_path VARCHAR(1024) NOT NULL,
		mail_count INTEGER NOT NULL DEFAULT 0,
		next_uid BIGINT NOT NULL DEFAULT 1,
		UNIQUE (email, mailbox_path)
	);

	CREATE TABLE IF NOT EXISTS messages (
		message_id VARCHAR(998) PRIMARY KEY,
		subject TEXT,
		sender VARCHAR(254) NOT NULL,
		recipient VARCHAR(254),
		send_dt TIMESTAMP NOT NULL,
		filename VARCHAR(1024)
	);

	CREATE TABLE IF NOT EXISTS mails (
		id BIGSERIAL PRIMARY KEY,
		message_id VARCHAR(998) NOT NULL REFERENCES messages(message_id),
		mailbox_id VARCHAR(16) NOT NULL REFERENCES mailboxes(mailbox_id) ON DELETE CASCADE,
		uid BIGINT NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		is_flagged BOOLEAN NOT NULL DEFAULT FALSE,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		size BIGINT NOT NULL DEFAULT 0,
		receive_dt VARCHAR(10) NOT NULL,
		receive_time VARCHAR(8) NOT NULL,
		UNIQUE (mailbox_id, uid)
	);

	CREATE TABLE IF NOT EXISTS recipients (
		message_id VARCHAR(998) NOT NULL REFERENCES messages(message_id) ON DELETE CASCADE,
		email VARCHAR(254) NOT NULL,
		UNIQUE (message_id, email)
	);

	CREATE INDEX IF NOT EXISTS idx_mailboxes_email_path ON mailboxes(email, mailbox_path);
	CREATE INDEX IF NOT EXISTS idx_mails_mailbox ON mails(mailbox_id, is_deleted);
	CREATE INDEX IF NOT EXISTS idx_mails_message ON mails(message_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// mapPostgresErr converte erros transitórios de bloqueio em ErrBusy
func mapPostgresErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// lock_not_available, deadlock_detected, serialization_failure
		switch pqErr.Code {
		case "55P03", "40P01", "40001":
			return fmt.Errorf("%w: %v", ErrBusy, err)
		}
	}
	return err
}

// isPostgresUnique informa se o erro é uma violação de unicidade
func isPostgresUnique(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// CreateUser cria um novo usuário com as caixas de correio padrão
func (s *PostgresStorage) CreateUser(user *User, password string) error {
	user.Created = time.Now()
	user.Active = true

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("falha ao iniciar transação: %w", mapPostgresErr(err))
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO users (email, username, password, active, created) VALUES ($1, $2, $3, TRUE, $4)",
		user.Email, user.Username, hashPassword(password), user.Created,
	)
	if err != nil {
		if isPostgresUnique(err) {
			return ErrUserExists
		}
		return fmt.Errorf("falha ao criar usuário: %w", mapPostgresErr(err))
	}

	// Criar caixas padrão
	for _, name := range DefaultMailboxes {
		_, err = tx.Exec(
			"INSERT INTO mailboxes (mailbox_id, email, mailbox_name, mailbox_path) VALUES ($1, $2, $3, $4)",
			generateMailboxID(), user.Email, name, name,
		)
		if err != nil {
			return fmt.Errorf("falha ao criar caixa de correio padrão: %w", mapPostgresErr(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("falha ao confirmar transação: %w", mapPostgresErr(err))
	}

	logrus.WithFields(logrus.Fields{"email": user.Email}).Info("usuário criado")
	return nil
}

// GetUser obtém um usuário ativo pelo email
func (s *PostgresStorage) GetUser(email string) (*User, error) {
	user := &User{}
	err := s.db.QueryRow(
		"SELECT email, username, active, created FROM users WHERE email = $1 AND active = TRUE",
		email,
	).Scan(&user.Email, &user.Username, &user.Active, &user.Created)

	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	} else if err != nil {
		return nil, fmt.Errorf("falha ao obter usuário: %w", mapPostgresErr(err))
	}

	return user, nil
}

// AuthenticateUser autentica um usuário comparando o hash SHA-256 da senha
func (s *PostgresStorage) AuthenticateUser(email, password string) (*User, error) {
	user := &User{}
	var stored string
	err := s.db.QueryRow(
		"SELECT email, username, password FROM users WHERE email = $1 AND active = TRUE",
		email,
	).Scan(&user.Email, &user.Username, &stored)

	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	} else if err != nil {
		return nil, fmt.Errorf("falha ao obter usuário: %w", mapPostgresErr(err))
	}

	if hashPassword(password) != stored {
		return nil, ErrUserNotFound
	}

	user.Active = true
	return user, nil
}

// Métodos de implementação para Mailbox

// ListMailboxes lista as caixas do usuário com as caixas padrão primeiro
func (s *PostgresStorage) ListMailboxes(email string) ([]*Mailbox, error) {
	rows, err := s.db.Query(
		`SELECT mailbox_id, email, mailbox_name, mailbox_path, mail_count, next_uid
		FROM mailboxes
		WHERE email = $1
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
		return nil, fmt.Errorf("falha ao listar caixas de correio: %w", mapPostgresErr(err))
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
func (s *PostgresStorage) GetMailbox(email, mailboxID string) (*Mailbox, error) {
	mb := &Mailbox{}
	err := s.db.QueryRow(
		"SELECT mailbox_id, email, mailbox_name, mailbox_path, mail_count, next_uid FROM mailboxes WHERE mailbox_id = $1 AND email = $2",
		mailboxID, email,
	).Scan(&mb.ID, &mb.Email, &mb.Name, &mb.Path, &mb.MailCount, &mb.NextUID)

	if err == sql.ErrNoRows {
		return nil, ErrMailboxNotFound
	} else if err != nil {
		return nil, fmt.Errorf("falha ao obter caixa de correio: %w", mapPostgresErr(err))
	}

	return mb, nil
}

// GetMailboxByPath obtém uma caixa pelo caminho materializado
func (s *PostgresStorage) GetMailboxByPath(email, path string) (*Mailbox, error) {
	mb := &Mailbox{}
	err := s.db.QueryRow(
		"SELECT mailbox_id, email, mailbox_name, mailbox_path, mail_count, next_uid FROM mailboxes WHERE email = $1 AND mailbox_path = $2",
		email, path,
	).Scan(&mb.ID, &mb.Email, &mb.Name, &mb.Path, &mb.MailCount, &mb.NextUID)

	if err == sql.ErrNoRows {
		return nil, ErrMailboxNotFound
	} else if err != nil {
		return nil, fmt.Errorf("falha ao obter caixa de correio: %w", mapPostgresErr(err))
	}

	return mb, nil
}

// CreateMailbox cria uma caixa de correio sob o caminho pai, se informado
func (s *PostgresStorage) CreateMailbox(email, name, parentPath string) (*Mailbox, error) {
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

	mb := &Mailbox{
		ID:      generateMailboxID(),
		Email:   email,
		Name:    trimmed,
		Path:    path,
		NextUID: 1,
	}
	_, err := s.db.Exec(
		"INSERT INTO mailboxes (mailbox_id, email, mailbox_name, mailbox_path) VALUES ($1, $2, $3, $4)",
		mb.ID, mb.Email, mb.Name, mb.Path,
	)
	if err != nil {
		if isPostgresUnique(err) {
			return nil, ErrMailboxExists
		}
		return nil, fmt.Errorf("falha ao criar caixa de correio: %w", mapPostgresErr(err))
	}

	logrus.WithFields(logrus.Fields{
		"email":        email,
		"mailbox_id":   mb.ID,
		"mailbox_path": mb.Path,
	}).Info("caixa de correio criada")
	return mb, nil
}

// DeleteMailbox exclui uma caixa e as subcaixas pelo prefixo do caminho.
// Caixas padrão na raiz não podem ser excluídas.
func (s *PostgresStorage) DeleteMailbox(email, mailboxID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("falha ao iniciar transação: %w", mapPostgresErr(err))
	}
	defer tx.Rollback()

	mb := &Mailbox{}
	err = tx.QueryRow(
		"SELECT mailbox_id, mailbox_name, mailbox_path FROM mailboxes WHERE mailbox_id = $1 AND email = $2 FOR UPDATE",
		mailboxID, email,
	).Scan(&mb.ID, &mb.Name, &mb.Path)
	if err == sql.ErrNoRows {
		return ErrMailboxNotFound
	} else if err != nil {
		return fmt.Errorf("falha ao obter caixa de correio: %w", mapPostgresErr(err))
	}

	if isReservedMailbox(mb.Name, mb.Path) {
		return ErrMailboxReserved
	}

	// O prefixo é escapado para que % e _ no caminho casem literalmente
	_, err = tx.Exec(
		`DELETE FROM mailboxes WHERE email = $1 AND mailbox_path LIKE $2 ESCAPE '\'`,
		email, escapeLike(mb.Path)+".%",
	)
	if err != nil {
		return fmt.Errorf("falha ao excluir subcaixas: %w", mapPostgresErr(err))
	}

	_, err = tx.Exec(
		"DELETE FROM mailboxes WHERE mailbox_id = $1 AND email = $2",
		mailboxID, email,
	)
	if err != nil {
		return fmt.Errorf("falha ao excluir caixa de correio: %w", mapPostgresErr(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("falha ao confirmar transação: %w", mapPostgresErr(err))
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
// atômica. O SELECT ... FOR UPDATE bloqueia a linha da caixa e garante
// que dois arquivamentos concorrentes nunca recebam o mesmo uid.
func (s *PostgresStorage) SaveMail(email, mailboxPath string, msg *Message, recipients []string, size int64, read bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("falha ao iniciar transação: %w", mapPostgresErr(err))
	}
	defer tx.Rollback()

	var mailboxID string
	var nextUID int64
	err = tx.QueryRow(
		"SELECT mailbox_id, next_uid FROM mailboxes WHERE email = $1 AND mailbox_path = $2 FOR UPDATE",
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
		return fmt.Errorf("falha ao obter caixa de correio: %w", mapPostgresErr(err))
	}

	var filename interface{}
	if msg.Filename != "" {
		filename = msg.Filename
	}
	_, err = tx.Exec(
		`INSERT INTO messages (message_id, subject, sender, recipient, send_dt, filename)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (message_id) DO NOTHING`,
		msg.ID, msg.Subject, msg.Sender, msg.Recipient, msg.SendDT, filename,
	)
	if err != nil {
		return fmt.Errorf("falha ao criar mensagem: %w", mapPostgresErr(err))
	}

	for _, rcpt := range dedupeRecipients(recipients) {
		_, err = tx.Exec(
			"INSERT INTO recipients (message_id, email) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			msg.ID, rcpt,
		)
		if err != nil {
			return fmt.Errorf("falha ao registrar destinatário: %w", mapPostgresErr(err))
		}
	}

	now := time.Now()
	_, err = tx.Exec(
		`INSERT INTO mails (message_id, mailbox_id, uid, is_read, size, receive_dt, receive_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, mailboxID, nextUID, read, size, now.Format("2006-01-02"), now.Format("15:04:05"),
	)
	if err != nil {
		return fmt.Errorf("falha ao arquivar mensagem: %w", mapPostgresErr(err))
	}

	_, err = tx.Exec(
		"UPDATE mailboxes SET next_uid = next_uid + 1, mail_count = mail_count + 1 WHERE mailbox_id = $1",
		mailboxID,
	)
	if err != nil {
		return fmt.Errorf("falha ao atualizar contadores da caixa: %w", mapPostgresErr(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("falha ao confirmar transação: %w", mapPostgresErr(err))
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
// para a mais antiga, com o total de mensagens vivas
func (s *PostgresStorage) ListMails(email, mailboxID string, page, limit int) ([]*MailSummary, int, error) {
	var owned string
	err := s.db.QueryRow(
		"SELECT mailbox_id FROM mailboxes WHERE mailbox_id = $1 AND email = $2",
		mailboxID, email,
	).Scan(&owned)
	if err == sql.ErrNoRows {
		return nil, 0, ErrMailboxNotFound
	} else if err != nil {
		return nil, 0, fmt.Errorf("falha ao obter caixa de correio: %w", mapPostgresErr(err))
	}

	var total int
	err = s.db.QueryRow(
		"SELECT COUNT(*) FROM mails WHERE mailbox_id = $1 AND is_deleted = FALSE",
		mailboxID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("falha ao contar mensagens: %w", mapPostgresErr(err))
	}

	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	rows, err := s.db.Query(
		`SELECT mm.message_id, mm.subject, mm.sender, mm.recipient, mm.send_dt,
			ml.is_read, ml.is_flagged, ml.uid, ml.size, ml.receive_dt, ml.receive_time
		FROM mails ml
		JOIN messages mm ON ml.message_id = mm.message_id
		WHERE ml.mailbox_id = $1 AND ml.is_deleted = FALSE
		ORDER BY ml.receive_dt DESC, ml.receive_time DESC, ml.id DESC
		LIMIT $2 OFFSET $3`,
		mailboxID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("falha ao listar mensagens: %w", mapPostgresErr(err))
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

// GetMail obtém os metadados de uma mensagem do usuário e a marca como lida
func (s *PostgresStorage) GetMail(email, messageID string) (*MailView, error) {
	mail := &MailView{}
	var filename sql.NullString
	err := s.db.QueryRow(
		`SELECT mm.message_id, mm.subject, mm.sender, mm.recipient, mm.send_dt,
			mm.filename, ml.is_read, ml.mailbox_id
		FROM mails ml
		JOIN messages mm ON ml.message_id = mm.message_id
		JOIN mailboxes mb ON ml.mailbox_id = mb.mailbox_id
		WHERE mm.message_id = $1 AND mb.email = $2
		LIMIT 1`,
		messageID, email,
	).Scan(
		&mail.MessageID, &mail.Subject, &mail.Sender, &mail.Recipient, &mail.SendDT,
		&filename, &mail.IsRead, &mail.MailboxID,
	)

	if err == sql.ErrNoRows {
		return nil, ErrMailNotFound
	} else if err != nil {
		return nil, fmt.Errorf("falha ao obter mensagem: %w", mapPostgresErr(err))
	}
	mail.Filename = filename.String

	_, err = s.db.Exec(
		"UPDATE mails SET is_read = TRUE WHERE message_id = $1 AND mailbox_id = $2",
		messageID, mail.MailboxID,
	)
	if err != nil {
		return nil, fmt.Errorf("falha ao marcar mensagem como lida: %w", mapPostgresErr(err))
	}
	mail.IsRead = true

	return mail, nil
}

// GetMailFilename retorna o caminho do EML de uma mensagem do usuário
func (s *PostgresStorage) GetMailFilename(email, messageID string) (string, error) {
	var filename sql.NullString
	err := s.db.QueryRow(
		`SELECT mm.filename
		FROM mails ml
		JOIN messages mm ON ml.message_id = mm.message_id
		JOIN mailboxes mb ON ml.mailbox_id = mb.mailbox_id
		WHERE mm.message_id = $1 AND mb.email = $2
		LIMIT 1`,
		messageID, email,
	).Scan(&filename)

	if err == sql.ErrNoRows {
		return "", ErrMailNotFound
	} else if err != nil {
		return "", fmt.Errorf("falha ao obter mensagem: %w", mapPostgresErr(err))
	}

	return filename.String, nil
}

// MoveMail move uma mensagem para outra caixa do mesmo usuário, removendo
// o vínculo antigo e criando um novo com uid da caixa de destino
func (s *PostgresStorage) MoveMail(email, messageID, targetMailboxID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("falha ao iniciar transação: %w", mapPostgresErr(err))
	}
	defer tx.Rollback()

	var targetUID int64
	err = tx.QueryRow(
		"SELECT next_uid FROM mailboxes WHERE mailbox_id = $1 AND email = $2 FOR UPDATE",
		targetMailboxID, email,
	).Scan(&targetUID)
	if err == sql.ErrNoRows {
		return ErrMailboxNotFound
	} else if err != nil {
		return fmt.Errorf("falha ao obter caixa de destino: %w", mapPostgresErr(err))
	}

	var mailID, size int64
	var oldMailboxID string
	err = tx.QueryRow(
		`SELECT ml.id, ml.mailbox_id, ml.size
		FROM mails ml
		JOIN mailboxes mb ON ml.mailbox_id = mb.mailbox_id
		WHERE ml.message_id = $1 AND mb.email = $2`,
		messageID, email,
	).Scan(&mailID, &oldMailboxID, &size)
	if err == sql.ErrNoRows {
		return ErrMailNotFound
	} else if err != nil {
		return fmt.Errorf("falha ao obter mensagem: %w", mapPostgresErr(err))
	}

	if oldMailboxID == targetMailboxID {
		return nil // já está lá
	}

	res, err := tx.Exec("DELETE FROM mails WHERE id = $1", mailID)
	if err != nil {
		return fmt.Errorf("falha ao remover vínculo antigo: %w", mapPostgresErr(err))
	}
	// Em read committed outra transação pode ter movido ou excluído a
	// mensagem entre o SELECT e o DELETE. Se o vínculo já sumiu, abortar
	// sem tocar nos contadores; prosseguir duplicaria o arquivamento.
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("falha ao remover vínculo antigo: %w", mapPostgresErr(err))
	} else if n == 0 {
		return ErrMailNotFound
	}

	_, err = tx.Exec(
		"UPDATE mailboxes SET mail_count = GREATEST(0, mail_count - 1) WHERE mailbox_id = $1",
		oldMailboxID,
	)
	if err != nil {
		return fmt.Errorf("falha ao atualizar contadores da caixa de origem: %w", mapPostgresErr(err))
	}

	now := time.Now()
	_, err = tx.Exec(
		`INSERT INTO mails (message_id, mailbox_id, uid, size, receive_dt, receive_time)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		messageID, targetMailboxID, targetUID, size, now.Format("2006-01-02"), now.Format("15:04:05"),
	)
	if err != nil {
		return fmt.Errorf("falha ao criar vínculo novo: %w", mapPostgresErr(err))
	}

	_, err = tx.Exec(
		"UPDATE mailboxes SET next_uid = next_uid + 1, mail_count = mail_count + 1 WHERE mailbox_id = $1",
		targetMailboxID,
	)
	if err != nil {
		return fmt.Errorf("falha ao atualizar contadores da caixa de destino: %w", mapPostgresErr(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("falha ao confirmar transação: %w", mapPostgresErr(err))
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

// DeleteMail remove o vínculo de uma mensagem com a caixa onde está,
// mantendo o catálogo e o arquivo EML
func (s *PostgresStorage) DeleteMail(email, messageID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("falha ao iniciar transação: %w", mapPostgresErr(err))
	}
	defer tx.Rollback()

	var mailID int64
	var mailboxID string
	err = tx.QueryRow(
		`SELECT ml.id, ml.mailbox_id
		FROM mails ml
		JOIN mailboxes mb ON ml.mailbox_id = mb.mailbox_id
		WHERE ml.message_id = $1 AND mb.email = $2`,
		messageID, email,
	).Scan(&mailID, &mailboxID)
	if err == sql.ErrNoRows {
		return ErrMailNotFound
	} else if err != nil {
		return fmt.Errorf("falha ao obter mensagem: %w", mapPostgresErr(err))
	}

	res, err := tx.Exec("DELETE FROM mails WHERE id = $1", mailID)
	if err != nil {
		return fmt.Errorf("falha ao excluir mensagem: %w", mapPostgresErr(err))
	}
	// Outra transação pode ter excluído ou movido a mensagem primeiro;
	// nesse caso abortar sem decrementar o contador de novo
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("falha ao excluir mensagem: %w", mapPostgresErr(err))
	} else if n == 0 {
		return ErrMailNotFound
	}

	_, err = tx.Exec(
		"UPDATE mailboxes SET mail_count = GREATEST(0, mail_count - 1) WHERE mailbox_id = $1",
		mailboxID,
	)
	if err != nil {
		return fmt.Errorf("falha ao atualizar contadores da caixa: %w", mapPostgresErr(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("falha ao confirmar transação: %w", mapPostgresErr(err))
	}

	logrus.WithFields(logrus.Fields{
		"email":      email,
		"message_id": messageID,
		"mailbox_id": mailboxID,
	}).Info("mensagem excluída")
	return nil
}
