package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/aferreira/novemail/config"
	"github.com/aferreira/novemail/server"
	"github.com/aferreira/novemail/storage"
	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Carregar configuração
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logrus.Fatalf("erro ao carregar configuração: %v", err)
	}

	// Inicializar armazenamento
	store, err := storage.NewStorage(cfg)
	if err != nil {
		logrus.Fatalf("erro ao inicializar armazenamento: %v", err)
	}
	if err := store.Open(); err != nil {
		logrus.Fatalf("erro ao abrir armazenamento: %v", err)
	}
	defer store.Close()

	// Inicializar depósito de arquivos EML
	maildir, err := storage.NewMailDir(cfg.MailDir.Path)
	if err != nil {
		logrus.Fatalf("erro ao inicializar diretório de mensagens: %v", err)
	}

	// Iniciar servidor HTTP em goroutine separada
	errors := make(chan error, 1)
	go func() {
		if err := server.StartHTTPServer(cfg, store, maildir); err != nil {
			errors <- err
		}
	}()

	// Aguardar sinais de interrupção
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errors:
		logrus.Fatalf("erro no servidor: %v", err)
	case sig := <-sigChan:
		logrus.Infof("recebido sinal %v, encerrando...", sig)
	}
}
