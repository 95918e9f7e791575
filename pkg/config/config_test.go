package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authSettings struct {
	Port       int           `env:"DGCFG_PORT" envDefault:"8080"`
	Issuer     string        `env:"DGCFG_ISSUER" envDefault:"draft-genie"`
	AccessTTL  time.Duration `env:"DGCFG_ACCESS_TTL" envDefault:"15m"`
	APIKeys    []string      `env:"DGCFG_API_KEYS" envSeparator:","`
	KafkaOn    bool          `env:"DGCFG_KAFKA" envDefault:"false"`
	SigningKey string        `env:"DGCFG_SIGNING_KEY,required"`
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    authSettings
		wantErr bool
	}{
		{
			name: "defaults",
			env:  map[string]string{"DGCFG_SIGNING_KEY": "k"},
			want: authSettings{Port: 8080, Issuer: "draft-genie", AccessTTL: 15 * time.Minute, SigningKey: "k"},
		},
		{
			name: "overrides",
			env: map[string]string{
				"DGCFG_SIGNING_KEY": "k",
				"DGCFG_PORT":        "9443",
				"DGCFG_ACCESS_TTL":  "1h",
				"DGCFG_API_KEYS":    "svc-a,svc-b",
				"DGCFG_KAFKA":       "true",
			},
			want: authSettings{
				Port: 9443, Issuer: "draft-genie", AccessTTL: time.Hour,
				APIKeys: []string{"svc-a", "svc-b"}, KafkaOn: true, SigningKey: "k",
			},
		},
		{name: "required key missing", env: map[string]string{}, wantErr: true},
		{name: "bad duration", env: map[string]string{"DGCFG_SIGNING_KEY": "k", "DGCFG_ACCESS_TTL": "soon"}, wantErr: true},
		{name: "bad port", env: map[string]string{"DGCFG_SIGNING_KEY": "k", "DGCFG_PORT": "http"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			var got authSettings
			err := Load(&got)

			if tt.wantErr {
				assert.ErrorContains(t, err, "parse config")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type fileSettings struct {
	AdminEmail string `env:"DGCFG_FILE_ADMIN_EMAIL" envDefault:"none"`
	JWTSecret  string `env:"DGCFG_FILE_JWT_SECRET" envDefault:"none"`
}

func writeEnvFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.env")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	t.Run("fills unset variables from the file", func(t *testing.T) {
		path := writeEnvFile(t, "DGCFG_FILE_JWT_SECRET=file-secret\n")
		t.Cleanup(func() { _ = os.Unsetenv("DGCFG_FILE_JWT_SECRET") })

		var got fileSettings
		require.NoError(t, LoadFile(path, &got))

		assert.Equal(t, fileSettings{AdminEmail: "none", JWTSecret: "file-secret"}, got)
	})

	t.Run("process environment wins", func(t *testing.T) {
		path := writeEnvFile(t, "DGCFG_FILE_ADMIN_EMAIL=file@example.com\n")
		t.Setenv("DGCFG_FILE_ADMIN_EMAIL", "env@example.com")

		var got fileSettings
		require.NoError(t, LoadFile(path, &got))

		assert.Equal(t, "env@example.com", got.AdminEmail)
	})

	t.Run("missing file is ignored", func(t *testing.T) {
		var got fileSettings
		require.NoError(t, LoadFile(filepath.Join(t.TempDir(), "absent.env"), &got))

		assert.Equal(t, fileSettings{AdminEmail: "none", JWTSecret: "none"}, got)
	})
}
