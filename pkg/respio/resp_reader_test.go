package respio

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RespTestCase defines the structure for RESP protocol test cases
type RespTestCase struct {
	name     string
	input    []byte
	expected []Reply
}

func TestRespReader_Read(t *testing.T) {
	tests := []RespTestCase{
		{
			name:     "simple string",
			input:    []byte("+OK\r\n"),
			expected: []Reply{SimpleString("OK")},
		},
		{
			name:     "integer",
			input:    []byte(":1000\r\n"),
			expected: []Reply{Integer(1000)},
		},
		{
			name:     "negative integer is not null",
			input:    []byte(":-1\r\n"),
			expected: []Reply{Integer(-1)},
		},
		{
			name:     "large integer",
			input:    []byte(":9223372036854775807\r\n"),
			expected: []Reply{Integer(9223372036854775807)},
		},
		{
			name:     "bulk string",
			input:    []byte("$5\r\nhello\r\n"),
			expected: []Reply{BulkString{Data: []byte("hello")}},
		},
		{
			name:     "bulk string with CRLF inside",
			input:    []byte("$7\r\nfoo\r\nba\r\n"),
			expected: []Reply{BulkString{Data: []byte("foo\r\nba")}},
		},
		{
			name:     "null bulk string",
			input:    []byte("$-1\r\n"),
			expected: []Reply{NullBulkString()},
		},
		{
			name:     "empty bulk string",
			input:    []byte("$0\r\n\r\n"),
			expected: []Reply{BulkString{Data: []byte{}}},
		},
		{
			name:     "null array",
			input:    []byte("*-1\r\n"),
			expected: []Reply{NullArray()},
		},
		{
			name:     "empty array",
			input:    []byte("*0\r\n"),
			expected: []Reply{Array{Elems: []Reply{}}},
		},
		{
			name:  "nested array",
			input: []byte("*2\r\n$1\r\na\r\n*1\r\n:5\r\n"),
			expected: []Reply{
				Array{Elems: []Reply{
					BulkString{Data: []byte("a")},
					Array{Elems: []Reply{Integer(5)}},
				}},
			},
		},
		{
			// redis-cli> HMGET myhash field1 field2 nofield
			name:  "HMGET reply with missing field",
			input: []byte("*3\r\n$5\r\nHello\r\n$5\r\nWorld\r\n$-1\r\n"),
			expected: []Reply{
				Array{Elems: []Reply{
					BulkString{Data: []byte("Hello")},
					BulkString{Data: []byte("World")},
					NullBulkString(),
				}},
			},
		},
		{
			name:  "EXEC reply keeps nested error element",
			input: []byte("*2\r\n+OK\r\n-ERR value is not an integer\r\n"),
			expected: []Reply{
				Array{Elems: []Reply{
					SimpleString("OK"),
					ErrorReply("ERR value is not an integer"),
				}},
			},
		},
		{
			name:  "consecutive replies",
			input: []byte("+PONG\r\n:1\r\n$3\r\nbar\r\n*-1\r\n"),
			expected: []Reply{
				SimpleString("PONG"),
				Integer(1),
				BulkString{Data: []byte("bar")},
				NullArray(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := NewRespReaderFromBytes(tt.input)
			for _, expected := range tt.expected {
				result, err := reader.Read()
				require.NoError(t, err)
				assert.Equal(t, expected, result)
			}
			_, err := reader.Read()
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestRespReader_NullIsDistinct(t *testing.T) {
	nullBulk, err := NewRespReaderFromBytes([]byte("$-1\r\n")).Read()
	require.NoError(t, err)
	emptyBulk, err := NewRespReaderFromBytes([]byte("$0\r\n\r\n")).Read()
	require.NoError(t, err)
	assert.True(t, nullBulk.(BulkString).Null)
	assert.False(t, emptyBulk.(BulkString).Null)
	assert.NotEqual(t, nullBulk, emptyBulk)

	nullArr, err := NewRespReaderFromBytes([]byte("*-1\r\n")).Read()
	require.NoError(t, err)
	emptyArr, err := NewRespReaderFromBytes([]byte("*0\r\n")).Read()
	require.NoError(t, err)
	assert.True(t, nullArr.(Array).Null)
	assert.False(t, emptyArr.(Array).Null)
	assert.Equal(t, 0, emptyArr.(Array).Len())

	// null bulk and null array stay apart
	assert.NotEqual(t, nullBulk.Type(), nullArr.Type())
}

func TestRespReader_ErrorReply(t *testing.T) {
	reply, err := NewRespReaderFromBytes([]byte("-ERR bad arg\r\n")).Read()
	require.NoError(t, err)
	errReply, ok := reply.(ErrorReply)
	require.True(t, ok)
	assert.Equal(t, "ERR bad arg", string(errReply))
	assert.Equal(t, "ERR", errReply.Err().Prefix())

	status, err := NewRespReaderFromBytes([]byte("+ERR bad arg\r\n")).Read()
	require.NoError(t, err)
	assert.NotEqual(t, reply, status)
}

func TestRespReader_ProtocolErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		sentinel error
	}{
		{"unknown tag", "#t\r\n", ErrUnknownType},
		{"RESP3 map tag", "%1\r\n+a\r\n+b\r\n", ErrUnknownType},
		{"non-numeric integer", ":abc\r\n", ErrInvalidSyntax},
		{"empty integer", ":\r\n", ErrInvalidSyntax},
		{"non-numeric bulk length", "$x\r\nfoo\r\n", ErrInvalidSyntax},
		{"non-numeric array length", "*two\r\n", ErrInvalidSyntax},
		{"negative bulk length", "$-2\r\n", ErrInvalidSyntax},
		{"negative array length", "*-5\r\n", ErrInvalidSyntax},
		{"line without CR", "+OK\n", ErrBadCRLFEnd},
		{"bulk payload longer than declared", "$2\r\nabc\r\n", ErrBadCRLFEnd},
		{"bulk string too large", "$536870913\r\n", ErrTooLarge},
		{"array too large", "*1048577\r\n", ErrTooLarge},
		{"unknown tag inside array", "*2\r\n:1\r\n#f\r\n", ErrUnknownType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := NewRespReaderFromBytes([]byte(tt.input)).Read()
			assert.Nil(t, reply)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.True(t, IsProtocolError(err))
			assert.False(t, IsServerError(err))
		})
	}
}

func TestRespReader_TruncatedStream(t *testing.T) {
	inputs := []string{
		"+OK",
		":12",
		"$5\r\nhel",
		"$5\r\nhello",
		"$5\r\nhello\r",
		"*2\r\n:1\r\n",
		"*3\r\n$1\r\na\r\n*1\r\n",
	}
	for _, input := range inputs {
		t.Run(strings.ReplaceAll(input, "\r\n", "|"), func(t *testing.T) {
			reply, err := NewRespReaderFromBytes([]byte(input)).Read()
			assert.Nil(t, reply)
			assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
			assert.False(t, IsProtocolError(err))
		})
	}
}

func TestRespReader_TransportErrorUnchanged(t *testing.T) {
	boom := errors.New("connection reset")
	reader := NewRespReader(io.MultiReader(strings.NewReader("*2\r\n:1\r\n"), iotest.ErrReader(boom)))
	_, err := reader.Read()
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsProtocolError(err))
}

func TestRespReader_OneByteAtATime(t *testing.T) {
	input := "*3\r\n$3\r\nfoo\r\n:42\r\n*2\r\n+a\r\n$-1\r\n"
	reader := NewRespReader(iotest.OneByteReader(strings.NewReader(input)))
	reply, err := reader.Read()
	require.NoError(t, err)
	assert.Equal(t, NewArray(
		NewBulkStringFromString("foo"),
		Integer(42),
		NewArray(SimpleString("a"), NullBulkString()),
	), reply)
}

func TestRespReader_LongSimpleString(t *testing.T) {
	long := strings.Repeat("x", 3*DefaultBufferSize)
	reader := NewRespReaderSize(strings.NewReader("+"+long+"\r\n:7\r\n"), 16)
	reply, err := reader.Read()
	require.NoError(t, err)
	assert.Equal(t, SimpleString(long), reply)
	reply, err = reader.Read()
	require.NoError(t, err)
	assert.Equal(t, Integer(7), reply)
}

func TestRespReader_BinaryBulkString(t *testing.T) {
	payload := []byte{0x00, 0xff, '\r', '\n', 0x10}
	var buf bytes.Buffer
	w := NewRespWriter(&buf)
	require.NoError(t, w.WriteBulkString(payload))
	require.NoError(t, w.Flush())

	reply, err := NewRespReader(&buf).Read()
	require.NoError(t, err)
	assert.Equal(t, payload, reply.(BulkString).Data)
}

func TestRespReader_DeepNesting(t *testing.T) {
	depth := 200
	input := strings.Repeat("*1\r\n", depth) + ":1\r\n"
	reply, err := NewRespReaderFromBytes([]byte(input)).Read()
	require.NoError(t, err)
	for i := 0; i < depth; i++ {
		arr, ok := reply.(Array)
		require.True(t, ok)
		require.Equal(t, 1, arr.Len())
		reply = arr.Elems[0]
	}
	assert.Equal(t, Integer(1), reply)
}
