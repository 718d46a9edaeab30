package config

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// PostgresConfig defines the configuration for connecting to a PostgreSQL database.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`

	// SSM parameter names used for credentials in prod.
	SSM SSMParams `mapstructure:"ssm"`
}

type SSMParams struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// ParameterStore resolves a named secret. Empty string means not found.
type ParameterStore interface {
	Get(ctx context.Context, name string) string
}

func (cfg *PostgresConfig) DSN(env string) string {
	if env == "prod" {
		return cfg.DSNFrom(NewSSMStore())
	}
	return cfg.format(cfg.Host, cfg.User, cfg.Password)
}

// DSNFrom builds the DSN with host and credentials read from store.
func (cfg *PostgresConfig) DSNFrom(store ParameterStore) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return cfg.format(
		store.Get(ctx, cfg.SSM.Host),
		store.Get(ctx, cfg.SSM.User),
		store.Get(ctx, cfg.SSM.Password),
	)
}

func (cfg *PostgresConfig) format(host, user, password string) string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, cfg.Port, user, password, cfg.DBName, cfg.SSLMode,
	)

	if cfg.TimeZone != "" {
		dsn += fmt.Sprintf(" TimeZone=%s", cfg.TimeZone)
	}

	return dsn
}

// SSMStore reads decrypted values from AWS Systems Manager Parameter Store.
type SSMStore struct{}

func NewSSMStore() *SSMStore { return &SSMStore{} }

func (SSMStore) Get(ctx context.Context, parameterName string) string {
	if parameterName == "" {
		return ""
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return ""
	}

	client := ssm.NewFromConfig(cfg)

	decrypt := true
	input := &ssm.GetParameterInput{
		Name:           &parameterName,
		WithDecryption: &decrypt,
	}

	result, err := client.GetParameter(ctx, input)
	if err != nil {
		return ""
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return ""
	}

	return *result.Parameter.Value
}
