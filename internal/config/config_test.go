package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load(afero.NewMemMapFs())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.GetAddr())
	assert.Equal(t, DriverMemory, cfg.GetStoreDriver())
	assert.Equal(t, 5*time.Second, cfg.GetStoreTimeout())
	assert.Equal(t, AccessOpen, cfg.GetRoomAccess())
	assert.Equal(t, 256, cfg.GetOutboxSize())
	assert.Equal(t, 4000, cfg.GetMaxMessageLength())
	assert.Equal(t, "chatrelay", cfg.GetJWTIssuer())
}

func TestLoad_SecretFileOverridesEnv(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/run/secrets/jwt", []byte("from-file\n"), 0o600))

	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("JWT_SECRET_FILE", "/run/secrets/jwt")

	cfg, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.GetJWTSecret())
}

func TestLoad_MissingSecretFile(t *testing.T) {
	t.Setenv("JWT_SECRET_FILE", "/does/not/exist")

	_, err := Load(afero.NewMemMapFs())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read secret file")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "no secret",
			env:  map[string]string{},
			want: "JWT_SECRET",
		},
		{
			name: "surreal without url",
			env:  map[string]string{"JWT_SECRET": "s", "STORE_DRIVER": "surreal"},
			want: "SURREAL_URL",
		},
		{
			name: "postgres without dsn",
			env:  map[string]string{"JWT_SECRET": "s", "STORE_DRIVER": "postgres"},
			want: "DATABASE_URL",
		},
		{
			name: "unknown driver",
			env:  map[string]string{"JWT_SECRET": "s", "STORE_DRIVER": "mongo"},
			want: "unknown STORE_DRIVER",
		},
		{
			name: "unknown access policy",
			env:  map[string]string{"JWT_SECRET": "s", "ROOM_ACCESS": "invite"},
			want: "unknown ROOM_ACCESS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(afero.NewMemMapFs())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_AllowedOrigins(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("ALLOWED_ORIGINS", "example.com,*.example.org")

	cfg, err := Load(afero.NewMemMapFs())
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com", "*.example.org"}, cfg.GetAllowedOrigins())
}
