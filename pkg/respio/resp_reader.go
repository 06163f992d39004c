package respio

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"

	"github.com/pzhenzhou/respcli/pkg/common"
)

const (
	DefaultBufferSize = 8 * common.KB // 8KB
	MaxBulkSize       = 512 * common.MB
	MaxArraySize      = 1024 * 1024
)

// RespReader decodes RESP2 replies from a byte stream. It is not safe for
// concurrent use.
type RespReader struct {
	reader *bufio.Reader
	line   []byte
}

func NewRespReader(rd io.Reader) *RespReader {
	return NewRespReaderSize(rd, DefaultBufferSize)
}

func NewRespReaderSize(rd io.Reader, size int) *RespReader {
	return &RespReader{
		reader: bufio.NewReaderSize(rd, size),
	}
}

func NewRespReaderFromBytes(data []byte) *RespReader {
	return NewRespReader(bytes.NewReader(data))
}

// Read reads exactly one complete reply. An io.EOF is returned only when the
// stream ends cleanly before a tag byte; a stream that ends inside a reply
// yields io.ErrUnexpectedEOF.
func (r *RespReader) Read() (Reply, error) {
	return r.read(false)
}

// Buffered returns the number of bytes already read from the stream but not
// yet decoded.
func (r *RespReader) Buffered() int {
	return r.reader.Buffered()
}

func (r *RespReader) read(nested bool) (Reply, error) {
	b, err := r.reader.ReadByte()
	if err != nil {
		if nested {
			return nil, unexpectedEOF(err)
		}
		return nil, err
	}

	switch b {
	case RespStatus:
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}
		return SimpleString(line), nil
	case RespError:
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}
		return ErrorReply(line), nil
	case RespInt:
		n, err := r.ReadInt()
		if err != nil {
			return nil, err
		}
		return Integer(n), nil
	case RespString:
		return r.readBulkString()
	case RespArray:
		return r.readArray()
	default:
		return nil, newProtocolError(ErrUnknownType, "tag byte %q", b)
	}
}

// ReadInt reads the decimal integer that ends the current line.
func (r *RespReader) ReadInt() (int64, error) {
	line, err := r.readLine()
	if err != nil {
		return 0, err
	}
	n, err := parseInt64(line)
	if err != nil {
		return 0, newProtocolError(ErrInvalidSyntax, "invalid integer %q", line)
	}
	return n, nil
}

func (r *RespReader) readLength(kind string, limit int64) (int64, error) {
	length, err := r.ReadInt()
	if err != nil {
		return 0, err
	}
	if length < -1 {
		return 0, newProtocolError(ErrInvalidSyntax, "invalid %s length %d", kind, length)
	}
	if length > limit {
		return 0, newProtocolError(ErrTooLarge, "%s length %d exceeds %d", kind, length, limit)
	}
	return length, nil
}

func (r *RespReader) readBulkString() (Reply, error) {
	length, err := r.readLength("bulk string", MaxBulkSize)
	if err != nil {
		return nil, err
	}
	if length == -1 {
		return NullBulkString(), nil
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r.reader, buf); err != nil {
		return nil, unexpectedEOF(err)
	}
	if err := r.skipCRLF(); err != nil {
		return nil, err
	}
	return BulkString{Data: buf}, nil
}

func (r *RespReader) readArray() (Reply, error) {
	length, err := r.readLength("array", MaxArraySize)
	if err != nil {
		return nil, err
	}
	if length == -1 {
		return NullArray(), nil
	}
	items := make([]Reply, 0, min(length, 1024))
	for i := int64(0); i < length; i++ {
		elem, err := r.read(true)
		if err != nil {
			return nil, err
		}
		items = append(items, elem)
	}
	return Array{Elems: items}, nil
}

// readLine returns the line without its CRLF. The slice is only valid until
// the next read.
func (r *RespReader) readLine() ([]byte, error) {
	line, err := r.reader.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		// The line outgrew the buffer, collect it in pieces.
		r.line = append(r.line[:0], line...)
		for errors.Is(err, bufio.ErrBufferFull) {
			line, err = r.reader.ReadSlice('\n')
			r.line = append(r.line, line...)
		}
		line = r.line
	}
	if err != nil {
		return nil, unexpectedEOF(err)
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, newProtocolError(ErrBadCRLFEnd, "line %q", line)
	}
	return line[:len(line)-2], nil
}

// skipCRLF reads and validates CRLF
func (r *RespReader) skipCRLF() error {
	for _, want := range []byte(CRLF) {
		b, err := r.reader.ReadByte()
		if err != nil {
			return unexpectedEOF(err)
		}
		if b != want {
			return newProtocolError(ErrBadCRLFEnd, "got %q after bulk payload", b)
		}
	}
	return nil
}

func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func parseInt64(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, ErrInvalidSyntax
	}
	if len(b) < 10 { // Fast path for small numbers
		var neg, i = false, 0
		switch b[0] {
		case '-':
			neg = true
			fallthrough
		case '+':
			i++
		}
		if len(b) != i {
			var n int64
			for ; i < len(b) && b[i] >= '0' && b[i] <= '9'; i++ {
				n = int64(b[i]-'0') + n*10
			}
			if len(b) == i {
				if neg {
					n = -n
				}
				return n, nil
			}
		}
	}
	return strconv.ParseInt(string(b), 10, 64)
}
