package identity

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nfrund/chatrelay/internal/domain"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier_IssueAndAuthenticate(t *testing.T) {
	v := NewVerifier("secret", "chatrelay")

	token, err := v.Issue(domain.Principal{ID: "u1", DisplayName: "Alice"}, time.Hour)
	require.NoError(t, err)

	p, err := v.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, domain.Principal{ID: "u1", DisplayName: "Alice"}, p)

	p, err = v.Authenticate(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewVerifier("secret", "chatrelay")
	other := NewVerifier("other", "chatrelay")

	foreign, err := other.Issue(domain.Principal{ID: "u1"}, time.Hour)
	require.NoError(t, err)

	otherIssuer, err := NewVerifier("secret", "someone-else").Issue(domain.Principal{ID: "u1"}, time.Hour)
	require.NoError(t, err)

	noIssuer := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": "u1", "exp": time.Now().Add(time.Hour).Unix()})
	unstamped, err := noIssuer.SignedString([]byte("secret"))
	require.NoError(t, err)

	expired, err := v.Issue(domain.Principal{ID: "u1"}, -time.Minute)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"id": "u1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noID := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"username": "ghost"})
	anonymous, err := noID.SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, credential := range map[string]string{
		"empty":          "",
		"garbage":        "not-a-jwt",
		"wrong secret":   foreign,
		"wrong issuer":   otherIssuer,
		"missing issuer": unstamped,
		"expired":        expired,
		"alg none":       unsigned,
		"missing userid": anonymous,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Authenticate(context.Background(), credential)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrUnauthenticated)
		})
	}
}

func TestVerifier_NumericIDClaim(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":       42,
		"username": "bob",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	p, err := NewVerifier("secret", "").Authenticate(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, domain.Principal{ID: "42", DisplayName: "bob"}, p)
}

func TestVerifier_SetSecret(t *testing.T) {
	v := NewVerifier("old", "chatrelay")
	token, err := v.Issue(domain.Principal{ID: "u1"}, time.Hour)
	require.NoError(t, err)

	v.SetSecret("new")

	_, err = v.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	fresh, err := v.Issue(domain.Principal{ID: "u1"}, time.Hour)
	require.NoError(t, err)
	_, err = v.Authenticate(context.Background(), fresh)
	assert.NoError(t, err)
}

func TestWatchSecretFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jwt.secret")
	require.NoError(t, os.WriteFile(path, []byte("first"), 0o600))

	v := NewVerifier("first", "chatrelay")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, WatchSecretFile(ctx, afero.NewOsFs(), path, v))
	require.NoError(t, os.WriteFile(path, []byte("second\n"), 0o600))

	rotated := NewVerifier("second", "chatrelay")
	token, err := rotated.Issue(domain.Principal{ID: "u1"}, time.Hour)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := v.Authenticate(context.Background(), token)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
}
