package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/aferreira/novemail/config"
)

// ErrUserNotFound é retornado quando um usuário não é encontrado
var ErrUserNotFound = errors.New("usuário não encontrado")

// ErrUserExists é retornado ao criar um usuário com email já cadastrado
var ErrUserExists = errors.New("usuário já existe")

// ErrMailboxNotFound é retornado quando uma caixa de correio não é
// encontrada ou não pertence ao usuário. Os dois casos são propositalmente
// indistinguíveis para não revelar a existência de caixas de outros usuários.
var ErrMailboxNotFound = errors.New("caixa de correio não encontrada")

// ErrMailboxExists é retornado ao criar uma caixa com caminho duplicado
var ErrMailboxExists = errors.New("caixa de correio já existe")

// ErrMailboxReserved é retornado ao tentar excluir uma caixa padrão do sistema
var ErrMailboxReserved = errors.New("caixa de correio padrão não pode ser excluída")

// ErrInvalidMailboxName é retornado quando o nome da caixa é vazio ou inválido
var ErrInvalidMailboxName = errors.New("nome de caixa de correio inválido")

// ErrMailNotFound é retornado quando uma mensagem não é encontrada
// ou não pertence ao usuário
var ErrMailNotFound = errors.New("mensagem não encontrada")

// ErrBusy é retornado quando o banco está temporariamente bloqueado.
// O chamador deve tentar novamente um número limitado de vezes.
var ErrBusy = errors.New("armazenamento ocupado, tente novamente")

// ErrContentUnavailable é retornado quando o arquivo EML referenciado
// não existe ou não pode ser lido. Os chamadores devem degradar para um
// conteúdo vazio em vez de falhar a requisição.
var ErrContentUnavailable = errors.New("conteúdo da mensagem indisponível")

// DefaultMailboxes são as caixas criadas no provisionamento de cada usuário.
// Quando aparecem na raiz (caminho sem ponto) não podem ser excluídas.
var DefaultMailboxes = []string{"INBOX", "Sent", "Drafts", "Trash", "Junk"}

// Storage é a interface para operações de armazenamento
type Storage interface {
	// Métodos de inicialização
	Open() error
	Close() error

	// Métodos de usuário
	CreateUser(user *User, password string) error
	GetUser(email string) (*User, error)
	AuthenticateUser(email, password string) (*User, error)

	// Métodos de caixa de correio
	ListMailboxes(email string) ([]*Mailbox, error)
	GetMailbox(email, mailboxID string) (*Mailbox, error)
	GetMailboxByPath(email, path string) (*Mailbox, error)
	CreateMailbox(email, name, parentPath string) (*Mailbox, error)
	DeleteMailbox(email, mailboxID string) error

	// Métodos de mensagem
	SaveMail(email, mailboxPath string, msg *Message, recipients []string, size int64, read bool) error
	ListMails(email, mailboxID string, page, limit int) ([]*MailSummary, int, error)
	GetMail(email, messageID string) (*MailView, error)
	GetMailFilename(email, messageID string) (string, error)
	MoveMail(email, messageID, targetMailboxID string) error
	DeleteMail(email, messageID string) error
}

// NewStorage cria uma nova instância de armazenamento com base na configuração
func NewStorage(cfg *config.Config) (Storage, error) {
	switch cfg.Database.Type {
	case "sqlite":
		return NewSQLiteStorage(&cfg.Database)
	case "postgres":
		return NewPostgresStorage(&cfg.Database)
	default:
		return nil, fmt.Errorf("tipo de banco de dados não suportado: %s", cfg.Database.Type)
	}
}

// trimName normaliza um nome de caixa removendo espaços nas pontas
func trimName(name string) string {
	return strings.TrimSpace(name)
}

// validMailboxName valida o nome de uma caixa nova. O ponto é o separador
// de níveis do caminho materializado e não pode aparecer dentro de um nome:
// um nome "A.B" criaria um caminho cujo prefixo "A" pode não existir.
func validMailboxName(name string) bool {
	return name != "" && !strings.Contains(name, ".")
}

// escapeLike escapa os curingas do LIKE (% e _) e a própria contrabarra,
// para que um caminho com esses caracteres case literalmente. As consultas
// que usam o resultado precisam da cláusula ESCAPE '\'.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// generateMailboxID gera um identificador aleatório de 9 dígitos
func generateMailboxID() string {
	return strconv.Itoa(100000000 + rand.Intn(900000000))
}

// hashPassword calcula o hash SHA-256 da senha em hexadecimal
func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// isReservedMailbox informa se a caixa é uma caixa padrão na raiz.
// Subcaixas com o mesmo nome (ex.: "INBOX.Arquivo") não são reservadas.
func isReservedMailbox(name, path string) bool {
	if strings.Contains(path, ".") {
		return false
	}
	for _, reserved := range DefaultMailboxes {
		if name == reserved {
			return true
		}
	}
	return false
}

// dedupeRecipients remove endereços repetidos preservando a ordem.
// A comparação é exata (sensível a maiúsculas), como na inserção.
func dedupeRecipients(recipients []string) []string {
	seen := make(map[string]struct{}, len(recipients))
	var result []string
	for _, r := range recipients {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		result = append(result, r)
	}
	return result
}
