package storage

import (
	"time"
)

// User representa um usuário do sistema de email
type User struct {
	Email    string    `json:"email"`
	Username string    `json:"username"`
	Active   bool      `json:"-"`
	Created  time.Time `json:"-"`
}

// Mailbox representa uma caixa de email. O caminho é materializado com
// pontos separando os níveis (ex.: "INBOX.Projetos.2024"), o que permite
// consultar subárvores inteiras com um prefixo.
type Mailbox struct {
	ID        string `json:"mailbox_id"`
	Email     string `json:"-"`
	Name      string `json:"mailbox_name"`
	Path      string `json:"mailbox_path"`
	MailCount int    `json:"mail_count"`
	NextUID   int64  `json:"-"`
}

// Message representa os metadados de uma mensagem no catálogo global.
// Uma mensagem existe no máximo uma vez por message_id, independente de
// em qual caixa está arquivada.
type Message struct {
	ID        string    `json:"message_id"`
	Subject   string    `json:"subject"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"` // primeiro destinatário, desnormalizado para listagem
	SendDT    time.Time `json:"send_dt"`
	Filename  string    `json:"-"` // caminho relativo do EML no maildir, vazio se ausente
}

// Mail representa o vínculo de uma mensagem com uma caixa de correio,
// com o estado próprio desse arquivamento (lida, sinalizada, uid).
// Ao mover uma mensagem o vínculo antigo é removido e um novo é criado
// com uid novo da caixa de destino.
type Mail struct {
	ID          int64
	MessageID   string
	MailboxID   string
	UID         int64
	IsRead      bool
	IsFlagged   bool
	Size        int64
	ReceiveDT   string // data de chegada na caixa, formato AAAA-MM-DD
	ReceiveTime string // hora de chegada, formato HH:MM:SS
}

// MailSummary representa uma linha da listagem de mensagens de uma caixa
type MailSummary struct {
	MessageID   string    `json:"message_id"`
	Subject     string    `json:"subject"`
	Sender      string    `json:"sender"`
	Recipient   string    `json:"recipient"`
	SendDT      time.Time `json:"send_dt"`
	IsRead      bool      `json:"is_read"`
	IsFlagged   bool      `json:"is_flagged"`
	UID         int64     `json:"uid"`
	Size        int64     `json:"size"`
	ReceiveDT   string    `json:"receive_dt"`
	ReceiveTime string    `json:"receive_time"`
}

// MailView representa os metadados de uma mensagem aberta para leitura.
// O corpo é obtido à parte, lendo e interpretando o EML referenciado.
type MailView struct {
	MessageID string    `json:"message_id"`
	Subject   string    `json:"subject"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	SendDT    time.Time `json:"send_dt"`
	MailboxID string    `json:"mailbox_id"`
	IsRead    bool      `json:"is_read"`
	Filename  string    `json:"-"`
}
