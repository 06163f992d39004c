package respio

import (
	"fmt"
	"strconv"
	"strings"
)

// Reply is one decoded RESP2 value. The concrete type is always one of
// SimpleString, ErrorReply, Integer, BulkString or Array.
type Reply interface {
	// Type returns the tag byte the reply is framed with on the wire.
	Type() byte
	String() string
	isReply()
}

var (
	_ Reply = SimpleString("")
	_ Reply = ErrorReply("")
	_ Reply = Integer(0)
	_ Reply = BulkString{}
	_ Reply = Array{}
)

type SimpleString string

func (s SimpleString) Type() byte     { return RespStatus }
func (s SimpleString) String() string { return string(s) }
func (SimpleString) isReply()         {}

// ErrorReply is an error reply carried as a value. The decoder keeps error
// elements nested inside arrays in this form; client.Conn turns a top-level
// one into a *ServerError.
type ErrorReply string

func (e ErrorReply) Type() byte     { return RespError }
func (e ErrorReply) String() string { return "(error) " + string(e) }
func (ErrorReply) isReply()         {}

func (e ErrorReply) Err() *ServerError {
	return &ServerError{Message: string(e)}
}

type Integer int64

func (i Integer) Type() byte     { return RespInt }
func (i Integer) String() string { return "(integer) " + strconv.FormatInt(int64(i), 10) }
func (Integer) isReply()         {}

// BulkString is a length-prefixed binary string. Null marks the `$-1` reply,
// which is not the same thing as a zero-length string.
type BulkString struct {
	Data []byte
	Null bool
}

func NewBulkString(data []byte) BulkString {
	if data == nil {
		data = []byte{}
	}
	return BulkString{Data: data}
}

func NewBulkStringFromString(s string) BulkString {
	return BulkString{Data: []byte(s)}
}

func NullBulkString() BulkString {
	return BulkString{Null: true}
}

func (b BulkString) Type() byte { return RespString }

func (b BulkString) String() string {
	if b.Null {
		return "(nil)"
	}
	return strconv.Quote(string(b.Data))
}

func (BulkString) isReply() {}

// Array is a sequence of replies. Null marks the `*-1` reply, which is not the
// same thing as an empty array.
type Array struct {
	Elems []Reply
	Null  bool
}

func NewArray(elems ...Reply) Array {
	if elems == nil {
		elems = []Reply{}
	}
	return Array{Elems: elems}
}

func NullArray() Array {
	return Array{Null: true}
}

func (a Array) Type() byte { return RespArray }

func (a Array) Len() int {
	return len(a.Elems)
}

func (a Array) String() string {
	if a.Null {
		return "(nil)"
	}
	if len(a.Elems) == 0 {
		return "(empty array)"
	}
	width := len(strconv.Itoa(len(a.Elems)))
	pad := strings.Repeat(" ", width+2)
	var b strings.Builder
	for i, elem := range a.Elems {
		lines := strings.Split(elem.String(), "\n")
		b.WriteString(fmt.Sprintf("%*d) %s\n", width, i+1, lines[0]))
		for _, line := range lines[1:] {
			b.WriteString(pad + line + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (Array) isReply() {}
