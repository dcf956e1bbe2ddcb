package testutils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/nfrund/chatrelay/internal/config"
	"github.com/nfrund/chatrelay/internal/domain"
	"github.com/nfrund/chatrelay/internal/identity"
	"github.com/stretchr/testify/require"
)

// Config returns a memory-backed configuration suitable for tests. Each
// override is applied in order after the defaults.
func Config(overrides ...func(*config.Config)) *config.Config {
	cfg := &config.Config{
		Addr:             "127.0.0.1:0",
		LogFormat:        "text",
		LogLevel:         "error",
		StoreDriver:      config.DriverMemory,
		StoreTimeout:     time.Second,
		DBQueryTimeout:   5 * time.Second,
		DBExecuteTimeout: 10 * time.Second,
		JWTSecret:        "test-secret",
		JWTIssuer:        "chatrelay",
		RoomAccess:       config.AccessOpen,
		OutboxSize:       32,
		WriteTimeout:     time.Second,
		MaxMessageLength: 1000,
		HistoryLimit:     50,
		ShutdownTimeout:  5 * time.Second,
		RateLimit:        1000,
	}
	for _, override := range overrides {
		override(cfg)
	}
	return cfg
}

// LoadEnvTest sets the variables from the project's .env.test file for the
// duration of the test. A missing file is not an error.
func LoadEnvTest(t *testing.T) {
	t.Helper()

	path, err := projectRoot()
	if err != nil {
		return
	}
	env, err := godotenv.Read(filepath.Join(path, ".env.test"))
	if err != nil {
		return
	}
	for key, value := range env {
		t.Setenv(key, value)
	}
}

// Token issues an hour-long credential for userID. The display name is the
// upper-cased ID.
func Token(t *testing.T, v *identity.Verifier, userID string) string {
	t.Helper()
	token, err := v.Issue(domain.Principal{ID: userID, DisplayName: strings.ToUpper(userID)}, time.Hour)
	require.NoError(t, err)
	return token
}

// projectRoot walks up from the working directory to the one holding go.mod.
func projectRoot() (string, error) {
	path, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(path, "go.mod")); err == nil {
			return path, nil
		}
		if path == filepath.Dir(path) {
			return "", os.ErrNotExist
		}
		path = filepath.Dir(path)
	}
}
