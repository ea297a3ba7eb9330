package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	o, err := Load("broker", []string{"-c", ""}, envOf(nil))
	require.NoError(t, err)

	assert.Equal(t, "localhost:8443", o.Addr)
	assert.Equal(t, "file", o.Store)
	assert.Equal(t, 500*time.Millisecond, o.PromptDelay.Duration)
	assert.Equal(t, List{"/api/vault*", "/api/analytics*"}, o.SensitiveScopes)
	assert.Equal(t, "http://localhost:5174/login", o.WebLoginURL)
}

func TestLoad_FlagsAndArgs(t *testing.T) {
	o, err := Load("vaultctl", []string{
		"-c", "",
		"-broker", "https://broker:9000",
		"-origins", "https://app.example.com, https://admin.example.com",
		"-prompt-delay", "250ms",
		"login", "a@b.com",
	}, envOf(nil))
	require.NoError(t, err)

	assert.Equal(t, "https://broker:9000", o.BrokerURL)
	assert.Equal(t, List{"https://app.example.com", "https://admin.example.com"}, o.TrustedOrigins)
	assert.Equal(t, 250*time.Millisecond, o.PromptDelay.Duration)
	assert.Equal(t, []string{"login", "a@b.com"}, o.Args)
}

func TestLoad_JSONFile(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"addr": "0.0.0.0:9443",
		"store": "postgres",
		"database_dsn": "postgres://u@localhost/keeper",
		"toast_ttl": "5s",
		"allowed_contexts": ["page-agent"]
	}`)

	o, err := Load("broker", []string{"-config", path}, envOf(nil))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9443", o.Addr)
	assert.Equal(t, "postgres", o.Store)
	assert.Equal(t, 5*time.Second, o.ToastTTL.Duration)
	assert.Equal(t, List{"page-agent"}, o.AllowedContexts)
	assert.Equal(t, path, o.Config)
}

func TestLoad_YAMLExpandsEnv(t *testing.T) {
	path := writeFile(t, "broker.yaml", `
backend_url: ${BACKEND}
secret_mode: handle
request_timeout: 10s
sensitive_scopes:
  - "/api/vault*"
`)

	o, err := Load("broker", []string{"-c", path}, envOf(map[string]string{"BACKEND": "https://api.example.com"}))
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", o.BackendURL)
	assert.Equal(t, "handle", o.SecretMode)
	assert.Equal(t, 10*time.Second, o.RequestTimeout.Duration)
	assert.Equal(t, List{"/api/vault*"}, o.SensitiveScopes)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeFile(t, "config.json", `{"addr": "file:1", "backend_url": "http://file", "log_level": "debug"}`)

	o, err := Load("broker", []string{"-c", path, "-a", "flag:2", "-b", "http://flag"}, envOf(map[string]string{
		"BACKEND_URL": "http://env",
	}))
	require.NoError(t, err)

	assert.Equal(t, "flag:2", o.Addr, "explicit flag beats file")
	assert.Equal(t, "http://env", o.BackendURL, "env beats flag")
	assert.Equal(t, "debug", o.LogLevel, "file beats default")
}

func TestLoad_ConfigFromEnv(t *testing.T) {
	path := writeFile(t, "config.json", `{"profile": "work"}`)
	o, err := Load("broker", nil, envOf(map[string]string{"CONFIG": path}))
	require.NoError(t, err)
	assert.Equal(t, "work", o.Profile)
}

func TestLoad_Errors(t *testing.T) {
	badJSON := writeFile(t, "config.json", `{"addr": `)
	badDuration := writeFile(t, "config.json", `{"toast_ttl": 3}`)

	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{"unknown flag", []string{"-nope"}, nil},
		{"broken json", []string{"-c", badJSON}, nil},
		{"numeric duration", []string{"-c", badDuration}, nil},
		{"postgres without dsn", []string{"-c", "", "-store", "postgres"}, nil},
		{"unknown store", []string{"-c", "", "-store", "s3"}, nil},
		{"unknown secret mode", []string{"-c", ""}, map[string]string{"SECRET_MODE": "vault"}},
		{"bad duration flag", []string{"-c", "", "-toast-ttl", "soon"}, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load("broker", tc.args, envOf(tc.env))
			assert.Error(t, err)
		})
	}
}
