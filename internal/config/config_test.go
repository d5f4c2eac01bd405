package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTH_MODE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, AuthModeNone, cfg.AuthMode)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "gamgee", cfg.AdminAppID)
	assert.Equal(t, 15*time.Minute, cfg.JWKSCacheTTL)
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("GAMGEE_FUNCTION", "whoami")
	t.Setenv("TABLE_NAME", "rbac")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("AUTH_MODE", "jwt")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "9000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "whoami", cfg.Function)
	assert.Equal(t, AuthModeJWT, cfg.AuthMode)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, "9000", cfg.Port)
	assert.NoError(t, cfg.RequireTable())
}

func TestLoad_AuthModeRules(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want error
	}{
		{"unknown mode", map[string]string{"AUTH_MODE": "api_key"}, ErrInvalidAuthMode},
		{"jwt without secret", map[string]string{"AUTH_MODE": "jwt", "JWT_SECRET": ""}, ErrMissingJWTSecret},
		{"cognito without pool", map[string]string{"AUTH_MODE": "cognito", "COGNITO_USER_POOL_ID": "", "AWS_REGION": "us-east-1"}, ErrMissingPool},
		{"cognito without region", map[string]string{"AUTH_MODE": "cognito", "COGNITO_USER_POOL_ID": "pool", "AWS_REGION": ""}, ErrMissingPool},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLoad_ParseError(t *testing.T) {
	t.Setenv("JWKS_CACHE_TTL", "soon")

	_, err := Load()
	assert.ErrorContains(t, err, "parse env:")
}

func TestRequireTable(t *testing.T) {
	assert.ErrorIs(t, Config{Region: "us-east-1"}.RequireTable(), ErrMissingTable)
	assert.ErrorIs(t, Config{TableName: "rbac"}.RequireTable(), ErrMissingTable)
}
