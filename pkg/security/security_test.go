package security

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cheapParams() ArgonParams {
	p := DefaultArgonParams()
	p.Memory = 1024
	p.Iterations = 1
	return p
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(cheapParams())

	hash, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=2$"))

	ok, err := h.Verify("correct horse", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("battery staple", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	for _, bad := range []string{"not-a-hash", "$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$a2V5", "$argon2id$v=16$m=1024,t=1,p=2$c2FsdA$a2V5"} {
		_, err = h.Verify("x", bad)
		assert.ErrorIs(t, err, ErrHashFormat, bad)
	}
}

func TestNeedsRehash(t *testing.T) {
	old := NewPasswordHasher(cheapParams())

	hash, err := old.Hash("correct horse")
	require.NoError(t, err)
	assert.False(t, old.NeedsRehash(hash))

	stronger := cheapParams()
	stronger.Iterations = 2
	h := NewPasswordHasher(stronger)
	assert.True(t, h.NeedsRehash(hash))

	// old hashes still verify after the settings change
	ok, err := h.Verify("correct horse", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.True(t, h.NeedsRehash("garbage"))
}

func TestArgonParams(t *testing.T) {
	assert.NoError(t, DefaultArgonParams().Validate())

	p := DefaultArgonParams()
	p.Iterations = 0
	assert.Error(t, p.Validate())

	p = DefaultArgonParams()
	p.Parallelism = 4
	p.Memory = 16
	assert.Error(t, p.Validate())

	viper.Set("security.argon.iterations", 5)
	t.Cleanup(func() { viper.Set("security.argon.iterations", nil) })

	p = ArgonParamsFromConfig()
	assert.EqualValues(t, 5, p.Iterations)
	assert.EqualValues(t, DefaultArgonParams().Memory, p.Memory)
}

func TestToken(t *testing.T) {
	secret := []byte("secret")

	tok, err := IssueToken("u1", secret, time.Hour)
	require.NoError(t, err)

	id, err := ParseToken(tok, secret)
	require.NoError(t, err)
	assert.Equal(t, "u1", id)

	_, err = ParseToken(tok, []byte("other"))
	assert.ErrorIs(t, err, ErrTokenInvalid)

	expired, err := IssueToken("u1", secret, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(expired, secret)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = ParseToken("garbage", secret)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
