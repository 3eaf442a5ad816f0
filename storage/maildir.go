package storage

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

// MailDir é o depósito de arquivos EML brutos. Os arquivos são imutáveis:
// uma vez gravados nunca são alterados nem removidos por aqui — substituir
// o conteúdo de uma mensagem significa gravar um novo arquivo e apontar o
// catálogo para ele.
type MailDir struct {
	root string
}

// NewMailDir cria um depósito de EMLs no diretório informado
func NewMailDir(root string) (*MailDir, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("falha ao criar diretório de mensagens: %w", err)
	}
	return &MailDir{root: root}, nil
}

// Put grava um EML e retorna o caminho relativo gerado, no formato
// AAAA/MM/DD/<timestamp>_<aleatório>.eml. O arquivo é sincronizado em
// disco antes de retornar, para que a linha de catálogo que o referencia
// nunca seja gravada antes do conteúdo existir de fato.
func (m *MailDir) Put(data []byte) (string, error) {
	now := time.Now()
	dateDir := now.Format("2006/01/02")
	fileName := fmt.Sprintf("%d_%06d.eml", now.UnixMilli(), rand.Intn(900000)+100000)
	relPath := filepath.ToSlash(filepath.Join(dateDir, fileName))

	absDir := filepath.Join(m.root, dateDir)
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return "", fmt.Errorf("falha ao criar diretório de mensagens: %w", err)
	}

	absPath := filepath.Join(m.root, dateDir, fileName)
	f, err := os.OpenFile(absPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("falha ao criar arquivo EML: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("falha ao gravar arquivo EML: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", fmt.Errorf("falha ao sincronizar arquivo EML: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("falha ao fechar arquivo EML: %w", err)
	}

	return relPath, nil
}

// Get lê um EML pelo caminho relativo retornado por Put. Se o arquivo
// não existir retorna ErrContentUnavailable, que os chamadores devem
// tratar degradando para conteúdo vazio, não como erro fatal.
func (m *MailDir) Get(relPath string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(m.root, filepath.FromSlash(relPath)))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrContentUnavailable, relPath)
	}
	if err != nil {
		return nil, fmt.Errorf("falha ao ler arquivo EML: %w", err)
	}
	return data, nil
}
