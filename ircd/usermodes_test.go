package ircd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserModeApplyModeSetsAndUnsets(t *testing.T) {
	var m UserMode
	a := assert.New(t)

	a.NoError(m.ApplyMode('i', true))
	a.True(m.HasMode('i'))

	a.NoError(m.ApplyMode('i', false))
	a.False(m.HasMode('i'))
}

func TestUserModeApplyModeUnknownCharReturnsError(t *testing.T) {
	var m UserMode
	err := m.ApplyMode('Q', true)
	assert.Error(t, err)
}

func TestUserModeStringRendersSetModes(t *testing.T) {
	var m UserMode
	m.Invisible = true
	m.Operator = true

	s := m.String()
	assert.Contains(t, s, "i")
	assert.Contains(t, s, "o")
	assert.True(t, s[0] == '+')
}

func TestUserModeStringEmptyWhenNothingSet(t *testing.T) {
	var m UserMode
	assert.Equal(t, "", m.String())
}

func TestUserModeParseModeStringAppliesSequentially(t *testing.T) {
	var m UserMode
	err := m.ParseModeString("+iw-i")

	assert.NoError(t, err)
	assert.False(t, m.Invisible)
	assert.True(t, m.Wallops)
}

func TestUserModeParseModeStringReportsFirstUnknownButKeepsApplyingRest(t *testing.T) {
	var m UserMode
	err := m.ParseModeString("+Qiw")

	assert.Error(t, err)
	assert.True(t, m.Invisible)
	assert.True(t, m.Wallops)
}

func TestUserModeHasModeUnknownCharIsFalse(t *testing.T) {
	var m UserMode
	assert.False(t, m.HasMode('Q'))
}
