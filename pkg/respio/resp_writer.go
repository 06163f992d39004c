package respio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// RespWriter encodes commands (client side) and replies (server side).
type RespWriter struct {
	out    io.Writer
	writer *bufio.Writer
}

func NewRespWriter(w io.Writer) *RespWriter {
	return &RespWriter{
		out:    w,
		writer: bufio.NewWriterSize(w, DefaultBufferSize),
	}
}

// WriteCommand frames cmd and args as an array of bulk strings and hands the
// whole frame to the underlying writer in a single Write call.
func (w *RespWriter) WriteCommand(cmd string, args ...any) error {
	if err := w.writer.Flush(); err != nil {
		return err
	}
	buf := acquireCmdBuffer()
	defer releaseCmdBuffer(buf)
	*buf = AppendCommand((*buf)[:0], cmd, args...)
	_, err := w.out.Write(*buf)
	return err
}

// AppendCommand appends the RESP frame of cmd and args to dst. The output
// depends only on the inputs.
//
//	*<1+len(args)>\r\n
//	$<len(cmd)>\r\n<cmd>\r\n
//	$<len(arg)>\r\n<arg>\r\n ...
func AppendCommand(dst []byte, cmd string, args ...any) []byte {
	dst = appendHeader(dst, RespArray, int64(len(args)+1))
	dst = appendHeader(dst, RespString, int64(len(cmd)))
	dst = append(dst, cmd...)
	dst = append(dst, CRLF...)
	for _, arg := range args {
		dst = appendBulk(dst, FormatArg(arg))
	}
	return dst
}

// FormatArg returns the textual form of a command argument. Lengths on the
// wire are measured on these bytes, so multibyte text is framed correctly.
func FormatArg(arg any) []byte {
	switch v := arg.(type) {
	case nil:
		return []byte{}
	case string:
		return []byte(v)
	case []byte:
		return v
	case int:
		return strconv.AppendInt(nil, int64(v), 10)
	case int8:
		return strconv.AppendInt(nil, int64(v), 10)
	case int16:
		return strconv.AppendInt(nil, int64(v), 10)
	case int32:
		return strconv.AppendInt(nil, int64(v), 10)
	case int64:
		return strconv.AppendInt(nil, v, 10)
	case uint:
		return strconv.AppendUint(nil, uint64(v), 10)
	case uint8:
		return strconv.AppendUint(nil, uint64(v), 10)
	case uint16:
		return strconv.AppendUint(nil, uint64(v), 10)
	case uint32:
		return strconv.AppendUint(nil, uint64(v), 10)
	case uint64:
		return strconv.AppendUint(nil, v, 10)
	case float32:
		return strconv.AppendFloat(nil, float64(v), 'f', -1, 32)
	case float64:
		return strconv.AppendFloat(nil, v, 'f', -1, 64)
	case bool:
		if v {
			return []byte("1")
		}
		return []byte("0")
	case fmt.Stringer:
		return []byte(v.String())
	default:
		return []byte(fmt.Sprint(v))
	}
}

func appendHeader(dst []byte, tag byte, n int64) []byte {
	dst = append(dst, tag)
	dst = strconv.AppendInt(dst, n, 10)
	return append(dst, CRLF...)
}

func appendBulk(dst []byte, data []byte) []byte {
	dst = appendHeader(dst, RespString, int64(len(data)))
	dst = append(dst, data...)
	return append(dst, CRLF...)
}

// Write encodes a reply into the buffer. Call Flush to send it.
func (w *RespWriter) Write(reply Reply) error {
	switch v := reply.(type) {
	case SimpleString:
		return w.WriteStatus(string(v))
	case ErrorReply:
		return w.WriteError(string(v))
	case Integer:
		return w.WriteInt64(int64(v))
	case BulkString:
		if v.Null {
			return w.writeNullBulk()
		}
		return w.WriteBulkString(v.Data)
	case Array:
		if v.Null {
			return w.writeNullArray()
		}
		return w.WriteArray(v.Elems)
	default:
		return newProtocolError(ErrUnknownType, "cannot encode %T", reply)
	}
}

// WriteStatus writes a status response (e.g., "OK")
func (w *RespWriter) WriteStatus(status string) error {
	if err := w.writer.WriteByte(RespStatus); err != nil {
		return err
	}
	if _, err := w.writer.WriteString(status); err != nil {
		return err
	}
	return w.writeCRLF()
}

// WriteError writes an error response
func (w *RespWriter) WriteError(msg string) error {
	if err := w.writer.WriteByte(RespError); err != nil {
		return err
	}
	if _, err := w.writer.WriteString(msg); err != nil {
		return err
	}
	return w.writeCRLF()
}

func (w *RespWriter) WriteInt64(n int64) error {
	if err := w.writer.WriteByte(RespInt); err != nil {
		return err
	}
	if _, err := w.writer.WriteString(strconv.FormatInt(n, 10)); err != nil {
		return err
	}
	return w.writeCRLF()
}

// WriteBulkString writes a bulk string, a nil slice is written as the null bulk string.
func (w *RespWriter) WriteBulkString(b []byte) error {
	if b == nil {
		return w.writeNullBulk()
	}
	if err := w.writeLength(RespString, len(b)); err != nil {
		return err
	}
	if _, err := w.writer.Write(b); err != nil {
		return err
	}
	return w.writeCRLF()
}

// WriteArray writes an array of replies, a nil slice is written as the null array.
func (w *RespWriter) WriteArray(array []Reply) error {
	if array == nil {
		return w.writeNullArray()
	}
	if err := w.writeLength(RespArray, len(array)); err != nil {
		return err
	}
	for _, elem := range array {
		if err := w.Write(elem); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes any buffered data to the underlying io.Writer
func (w *RespWriter) Flush() error {
	return w.writer.Flush()
}

func (w *RespWriter) writeLength(tag byte, n int) error {
	if err := w.writer.WriteByte(tag); err != nil {
		return err
	}
	if _, err := w.writer.WriteString(strconv.Itoa(n)); err != nil {
		return err
	}
	return w.writeCRLF()
}

func (w *RespWriter) writeCRLF() error {
	_, err := w.writer.WriteString(CRLF)
	return err
}

func (w *RespWriter) writeNullBulk() error {
	_, err := w.writer.WriteString(Nil)
	return err
}

func (w *RespWriter) writeNullArray() error {
	_, err := w.writer.WriteString(NilArray)
	return err
}
