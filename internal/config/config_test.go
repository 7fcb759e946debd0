package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ACCESS_TOKEN_SECRET", "access-secret-32-characters-long!")
	t.Setenv("REFRESH_TOKEN_SECRET", "refresh-secret-32-characters-long")
	t.Setenv("DB_PASSWORD", "test")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenExpiry)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTokenExpiry)
	assert.Equal(t, 5, cfg.Auth.LockoutThreshold)
	assert.Equal(t, 30*time.Minute, cfg.Auth.LockoutDuration)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	assert.Equal(t, "token", cfg.Auth.LogoutScope)
	assert.Equal(t, 5, cfg.Auth.LoginRateLimit)
	assert.Equal(t, 15*time.Minute, cfg.Auth.LoginRateWindow)
	assert.False(t, cfg.Notice.Enabled)
	assert.Empty(t, cfg.Admin.Password)
	assert.Nil(t, cfg.Server.TrustedProxies)
}

func TestServerConfig_Timeouts(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		read  time.Duration
		write time.Duration
		idle  time.Duration
	}{
		{
			name:  "defaults",
			read:  15 * time.Second,
			write: 15 * time.Second,
			idle:  60 * time.Second,
		},
		{
			name: "custom values",
			env: map[string]string{
				"SERVER_READ_TIMEOUT":  "30s",
				"SERVER_WRITE_TIMEOUT": "45s",
				"SERVER_IDLE_TIMEOUT":  "120s",
			},
			read:  30 * time.Second,
			write: 45 * time.Second,
			idle:  120 * time.Second,
		},
		{
			name:  "invalid duration falls back",
			env:   map[string]string{"SERVER_READ_TIMEOUT": "not-a-duration"},
			read:  15 * time.Second,
			write: 15 * time.Second,
			idle:  60 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			require.NoError(t, err)
			assert.Equal(t, tt.read, cfg.Server.ReadTimeout)
			assert.Equal(t, tt.write, cfg.Server.WriteTimeout)
			assert.Equal(t, tt.idle, cfg.Server.IdleTimeout)
		})
	}
}

func TestLoad_SecretAliases(t *testing.T) {
	t.Setenv("JWT_SECRET", "legacy-access-secret-0123456789")
	t.Setenv("JWT_REFRESH_SECRET", "legacy-refresh-secret-012345678")
	t.Setenv("DB_PASSWORD", "test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "legacy-access-secret-0123456789", cfg.Auth.AccessTokenSecret)
	assert.Equal(t, "legacy-refresh-secret-012345678", cfg.Auth.RefreshTokenSecret)
}

func TestLoad_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing access secret",
			env:     map[string]string{"ACCESS_TOKEN_SECRET": ""},
			wantErr: "ACCESS_TOKEN_SECRET is required",
		},
		{
			name:    "missing refresh secret",
			env:     map[string]string{"REFRESH_TOKEN_SECRET": ""},
			wantErr: "REFRESH_TOKEN_SECRET is required",
		},
		{
			name:    "missing db password",
			env:     map[string]string{"DB_PASSWORD": ""},
			wantErr: "DB_PASSWORD is required",
		},
		{
			name:    "identical secrets",
			env:     map[string]string{"REFRESH_TOKEN_SECRET": "access-secret-32-characters-long!"},
			wantErr: "must differ",
		},
		{
			name:    "short secret",
			env:     map[string]string{"ACCESS_TOKEN_SECRET": "short"},
			wantErr: "at least 16 characters",
		},
		{
			name: "production requires 32 characters",
			env: map[string]string{
				"ENV":                 "production",
				"ACCESS_TOKEN_SECRET": "only-twenty-chars-ok",
			},
			wantErr: "at least 32 characters",
		},
		{
			name:    "unknown logout scope",
			env:     map[string]string{"LOGOUT_SCOPE": "everything"},
			wantErr: "LOGOUT_SCOPE",
		},
		{
			name:    "refresh shorter than access",
			env:     map[string]string{"REFRESH_TOKEN_EXPIRY": "10m"},
			wantErr: "REFRESH_TOKEN_EXPIRY",
		},
		{
			name:    "notice without sender",
			env:     map[string]string{"LOCKOUT_NOTICE_ENABLED": "true"},
			wantErr: "SES_FROM_ADDRESS",
		},
		{
			name:    "non-positive threshold",
			env:     map[string]string{"LOCKOUT_THRESHOLD": "0"},
			wantErr: "LOCKOUT_THRESHOLD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_TrustedProxiesAndScope(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, ,192.168.1.1/32")
	t.Setenv("LOGOUT_SCOPE", "PAIR")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.1/32"}, cfg.Server.TrustedProxies)
	assert.Equal(t, "pair", cfg.Auth.LogoutScope)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Name: "casos", SSLMode: "require"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=casos sslmode=require", cfg.DSN())
}
