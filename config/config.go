package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config representa a configuração global do sistema
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	MailDir  MailDirConfig  `mapstructure:"maildir"`
}

// DatabaseConfig representa a configuração do banco de dados
type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // "sqlite" ou "postgres"
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"` // Para SQLite
}

// HTTPConfig representa a configuração do servidor HTTP
type HTTPConfig struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
}

// SMTPConfig representa a configuração do relay SMTP de saída
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Domain   string `mapstructure:"domain"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// JWTConfig representa a configuração dos tokens de sessão
type JWTConfig struct {
	Secret       string `mapstructure:"secret"`
	ExpiresHours int    `mapstructure:"expires_hours"`
}

// MailDirConfig representa a configuração do diretório de arquivos EML
type MailDirConfig struct {
	Path string `mapstructure:"path"`
}

var cfg *Config

// LoadConfig carrega configurações do arquivo config.yaml.
// Se o arquivo não existir, os valores padrão são usados.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "data/novemail.db")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("http.address", "")
	v.SetDefault("http.port", 4000)
	v.SetDefault("smtp.host", "127.0.0.1")
	v.SetDefault("smtp.port", 25)
	v.SetDefault("smtp.domain", "localhost")
	v.SetDefault("jwt.secret", "change-me-novemail-secret-key")
	v.SetDefault("jwt.expires_hours", 24)
	v.SetDefault("maildir.path", "data/maildir")

	if configPath == "" {
		configPath = "config.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("erro ao ler arquivo de configuração: %w", err)
		}
	}

	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("erro ao processar configuração: %w", err)
	}

	return cfg, nil
}

// GetConfig retorna a configuração atual
func GetConfig() *Config {
	return cfg
}
