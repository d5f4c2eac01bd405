package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type AuthMode string

const (
	AuthModeNone    AuthMode = "none"
	AuthModeHeader  AuthMode = "header"
	AuthModeJWT     AuthMode = "jwt"
	AuthModeCognito AuthMode = "cognito"
)

var (
	ErrInvalidAuthMode  = errors.New("invalid auth mode")
	ErrMissingTable     = errors.New("TABLE_NAME and AWS_REGION are required")
	ErrMissingPool      = errors.New("COGNITO_USER_POOL_ID is required for cognito auth mode")
	ErrMissingJWTSecret = errors.New("JWT_SECRET is required for jwt auth mode")
)

type Config struct {
	Function     string        `env:"GAMGEE_FUNCTION"`
	TableName    string        `env:"TABLE_NAME"`
	Region       string        `env:"AWS_REGION"`
	AuthMode     AuthMode      `env:"AUTH_MODE"            envDefault:"none"`
	UserPoolID   string        `env:"COGNITO_USER_POOL_ID"`
	JWKSCacheTTL time.Duration `env:"JWKS_CACHE_TTL"       envDefault:"15m"`
	JWTSecret    string        `env:"JWT_SECRET"`
	JWTIssuer    string        `env:"JWT_ISSUER"`
	AdminAppID   string        `env:"ADMIN_APP_ID"         envDefault:"gamgee"`
	Port         string        `env:"PORT"                 envDefault:"8080"`
	LogLevel     string        `env:"LOG_LEVEL"            envDefault:"info"`
}

// Load parses the environment and checks the auth mode settings. Table
// settings are checked separately by RequireTable since not every function
// touches DynamoDB.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validateAuth(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validateAuth() error {
	switch c.AuthMode {
	case AuthModeNone, AuthModeHeader:
		return nil
	case AuthModeJWT:
		if c.JWTSecret == "" {
			return ErrMissingJWTSecret
		}
		return nil
	case AuthModeCognito:
		if c.UserPoolID == "" || c.Region == "" {
			return ErrMissingPool
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAuthMode, c.AuthMode)
	}
}

func (c Config) RequireTable() error {
	if c.TableName == "" || c.Region == "" {
		return ErrMissingTable
	}
	return nil
}
