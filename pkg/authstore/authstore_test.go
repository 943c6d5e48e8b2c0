package authstore

import (
	"testing"

	"github.com/gnsscaster/ntripcaster/pkg/dialect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	require.NoError(t, err)
	assert.True(t, VerifyPassword("correct-horse", hash))
	assert.False(t, VerifyPassword("wrong", hash))
}

func TestLegacyPlaintextFallback(t *testing.T) {
	assert.True(t, VerifyPassword("plain123", "plain123"))
	assert.False(t, VerifyPassword("other", "plain123"))
	assert.True(t, IsLegacyPlaintext("plain123"))

	hashed, _ := HashPassword("x")
	assert.False(t, IsLegacyPlaintext(hashed))
}

func TestVerifyMountProducerNonV20(t *testing.T) {
	s := New()
	s.PutMount("BASE1", "secret", "")

	assert.Equal(t, OK, s.VerifyMountProducer("BASE1", dialect.V10Native, "secret", "", ""))
	assert.Equal(t, BadMountPassword, s.VerifyMountProducer("BASE1", dialect.V10Native, "wrong", "", ""))
	assert.Equal(t, NoSuchMount, s.VerifyMountProducer("GONE", dialect.V10Native, "secret", "", ""))
}

func TestVerifyMountProducerV20Ownership(t *testing.T) {
	s := New()
	require.NoError(t, s.PutUser("alice", "alicepw"))
	require.NoError(t, s.PutUser("bob", "bobpw"))
	s.PutMount("OWNED", "mountpw", "alice")

	assert.Equal(t, OK, s.VerifyMountProducer("OWNED", dialect.V20, "mountpw", "alice", "alicepw"))
	assert.Equal(t, NotAuthorized, s.VerifyMountProducer("OWNED", dialect.V20, "mountpw", "bob", "bobpw"))
	assert.Equal(t, NoSuchUser, s.VerifyMountProducer("OWNED", dialect.V20, "mountpw", "mallory", "x"))
}

func TestVerifyMountProducerV20Unowned(t *testing.T) {
	s := New()
	require.NoError(t, s.PutUser("alice", "alicepw"))
	s.PutMount("PUBLIC1", "mountpw", "")

	assert.Equal(t, OK, s.VerifyMountProducer("PUBLIC1", dialect.V20, "mountpw", "alice", "alicepw"))
}

func TestVerifyConsumerIgnoresOwnership(t *testing.T) {
	s := New()
	require.NoError(t, s.PutUser("rover1", "roverpw"))
	s.PutMount("OWNED", "mountpw", "someoneelse")

	assert.Equal(t, OK, s.VerifyConsumer("OWNED", "rover1", "roverpw"))
	assert.Equal(t, BadUserPassword, s.VerifyConsumer("OWNED", "rover1", "wrong"))
	assert.Equal(t, NoSuchMount, s.VerifyConsumer("GONE", "rover1", "roverpw"))
}
