package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseLine(t *testing.T, s string, maxOps int) (*Command, *ProtocolError) {
	t.Helper()
	line, malformed, ok := FindLine([]byte(s))
	require.True(t, ok)
	require.False(t, malformed)
	return ParseCommand(line, maxOps)
}

func TestParseCommand_Storage(t *testing.T) {
	cmd, perr := parseLine(t, "set foo 1 0 3\r\n", 0)
	require.Nil(t, perr)
	assert.Equal(t, KindSet, cmd.Kind)
	assert.Equal(t, "foo", string(cmd.Key))
	assert.Equal(t, uint32(1), cmd.Flags)
	assert.Equal(t, 3, cmd.Bytes)
	assert.False(t, cmd.NoReply)
}

func TestParseCommand_StorageNoreply(t *testing.T) {
	cmd, perr := parseLine(t, "set foo 0 0 3 noreply\r\n", 0)
	require.Nil(t, perr)
	assert.True(t, cmd.NoReply)
}

func TestParseCommand_Cas(t *testing.T) {
	cmd, perr := parseLine(t, "cas foo 0 0 3 42\r\n", 0)
	require.Nil(t, perr)
	assert.Equal(t, KindCas, cmd.Kind)
	assert.True(t, cmd.HasCas)
	assert.Equal(t, uint64(42), cmd.CasUnique)
}

func TestParseCommand_StorageMalformed(t *testing.T) {
	cases := []string{
		"set foo bar 0 3\r\n",
		"set foo 0 0\r\n",
		"set\r\n",
	}
	for _, c := range cases {
		_, perr := parseLine(t, c, 0)
		require.NotNil(t, perr, c)
		assert.Equal(t, ErrLine, perr)
	}
}

func TestParseCommand_Get(t *testing.T) {
	cmd, perr := parseLine(t, "get k1 k2 k3\r\n", 0)
	require.Nil(t, perr)
	assert.Equal(t, KindGet, cmd.Kind)
	require.Len(t, cmd.Keys, 3)
	assert.Equal(t, "k1", string(cmd.Keys[0]))
	assert.Equal(t, "k3", string(cmd.Keys[2]))
}

func TestParseCommand_GetNoKeys(t *testing.T) {
	_, perr := parseLine(t, "get\r\n", 0)
	require.NotNil(t, perr)
	assert.Equal(t, ErrLine, perr)
}

func TestParseCommand_GetTooManyKeys(t *testing.T) {
	_, perr := parseLine(t, "get k1 k2 k3\r\n", 2)
	require.NotNil(t, perr)
	assert.Equal(t, ErrTooManyKeys(), perr)
}

func TestParseCommand_Delete(t *testing.T) {
	cmd, perr := parseLine(t, "delete foo\r\n", 0)
	require.Nil(t, perr)
	assert.False(t, cmd.NoReply)

	cmd, perr = parseLine(t, "delete foo noreply\r\n", 0)
	require.Nil(t, perr)
	assert.True(t, cmd.NoReply)

	cmd, perr = parseLine(t, "delete foo 0 noreply\r\n", 0)
	require.Nil(t, perr)
	assert.True(t, cmd.NoReply)
	assert.Equal(t, uint32(0), cmd.HoldTime)
}

func TestParseCommand_DeleteUnparsableTime(t *testing.T) {
	_, perr := parseLine(t, "delete foo notanumber\r\n", 0)
	require.NotNil(t, perr)
	assert.Same(t, ErrUnimplemented, perr)
	assert.Equal(t, "SERVER_ERROR functionality not supported\r\n", string(perr.Reply))
}

func TestParseCommand_IncrDecr(t *testing.T) {
	cmd, perr := parseLine(t, "incr foo 1\r\n", 0)
	require.Nil(t, perr)
	assert.Equal(t, KindIncr, cmd.Kind)
	assert.Equal(t, uint64(1), cmd.Delta)
}

func TestParseCommand_ControlExtraTokens(t *testing.T) {
	_, perr := parseLine(t, "quit now\r\n", 0)
	require.NotNil(t, perr)
	assert.Equal(t, ErrLine, perr)
}

func TestParseCommand_Unknown(t *testing.T) {
	_, perr := parseLine(t, "bogus\r\n", 0)
	require.NotNil(t, perr)
	assert.Equal(t, ErrLine, perr)
}

func TestReadDataPhase(t *testing.T) {
	payload, ok, perr := ReadDataPhase([]byte("abc\r\nget k\r\n"), 3)
	require.True(t, ok)
	require.Nil(t, perr)
	assert.Equal(t, "abc", string(payload))

	_, ok, perr = ReadDataPhase([]byte("ab"), 3)
	assert.False(t, ok)
	assert.Nil(t, perr)

	_, ok, perr = ReadDataPhase([]byte("abXXget k\r\n"), 3)
	require.True(t, ok)
	require.NotNil(t, perr)
	assert.Equal(t, ErrBadDataChunk, perr)
}
