package ircd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelJoinAddsUnprivilegedMember(t *testing.T) {
	ch := NewChannel("#test")
	c := &Client{Nick: "alice"}

	ch.Join(c)

	assert.True(t, ch.Has(c))
	assert.Equal(t, 1, ch.MemberCount())
	assert.False(t, ch.IsOp(c))
}

func TestChannelPartRemovesMember(t *testing.T) {
	ch := NewChannel("#test")
	c := &Client{Nick: "alice"}
	ch.Join(c)

	ch.Part(c)

	assert.False(t, ch.Has(c))
	assert.Equal(t, 0, ch.MemberCount())
}

func TestChannelMembersReturnsSnapshotCopy(t *testing.T) {
	ch := NewChannel("#test")
	c := &Client{Nick: "alice"}
	ch.Join(c)

	snap := ch.Members()
	snap[c].Op = true

	assert.False(t, ch.IsOp(c), "mutating the snapshot must not affect the live membership")
}

func TestChannelIsOpReflectsMembershipState(t *testing.T) {
	ch := NewChannel("#test")
	c := &Client{Nick: "alice"}
	ch.Join(c)

	ch.mu.Lock()
	ch.members[c].Op = true
	ch.mu.Unlock()

	assert.True(t, ch.IsOp(c))
}

func TestChannelIsOpFalseForNonMember(t *testing.T) {
	ch := NewChannel("#test")
	c := &Client{Nick: "alice"}
	assert.False(t, ch.IsOp(c))
}
