package peering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONCodecRoundTripsClientInfo(t *testing.T) {
	codec := jsonCodec{}

	in := &ClientInfo{UID: "1AAAAAAAA", SID: "00T", Nickname: "alice", ServerName: "irc.test"}
	data, err := codec.Marshal(in)
	require.NoError(t, err)

	out := new(ClientInfo)
	require.NoError(t, codec.Unmarshal(data, out))
	assert.Equal(t, in, out)
}

func TestJSONCodecName(t *testing.T) {
	assert.Equal(t, "json", jsonCodec{}.Name())
}
