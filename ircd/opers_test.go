package ircd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"
)

func mustHash(t *testing.T, password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	assert.NoError(t, err)
	return string(hash)
}

func TestOperRegistryAuthenticateSucceeds(t *testing.T) {
	hash := mustHash(t, "hunter2")
	reg := NewOperRegistry([]*OperBlock{
		{Name: "alice", PasswordHash: hash, Privileges: map[string]bool{"oper:general": true}},
	})

	block, ok := reg.Authenticate("alice", "hunter2")
	assert.True(t, ok)
	if assert.NotNil(t, block) {
		assert.Equal(t, "alice", block.Name)
	}
}

func TestOperRegistryAuthenticateWrongPassword(t *testing.T) {
	hash := mustHash(t, "hunter2")
	reg := NewOperRegistry([]*OperBlock{{Name: "alice", PasswordHash: hash}})

	_, ok := reg.Authenticate("alice", "wrong")
	assert.False(t, ok)
}

func TestOperRegistryAuthenticateUnknownName(t *testing.T) {
	reg := NewOperRegistry(nil)
	_, ok := reg.Authenticate("nobody", "anything")
	assert.False(t, ok)
}

func TestOperRegistryAuthenticateOIDCOnlyBlockRejectsPassword(t *testing.T) {
	reg := NewOperRegistry([]*OperBlock{{Name: "bob", OIDCSubject: "sub-123"}})
	_, ok := reg.Authenticate("bob", "anything")
	assert.False(t, ok, "a block with no PasswordHash must never authenticate by password")
}

func TestOperRegistryAuthenticateTokenWithoutConfiguredProvider(t *testing.T) {
	reg := NewOperRegistry([]*OperBlock{{Name: "bob", OIDCSubject: "sub-123"}})
	_, ok := reg.AuthenticateToken(nil, "some-raw-token")
	assert.False(t, ok)
}
