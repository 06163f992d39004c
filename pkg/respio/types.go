package respio

const (
	CRLF     = "\r\n"
	Nil      = "$-1\r\n"
	NilArray = "*-1\r\n"
)

const (
	RespStatus = byte('+') // +<string>\r\n
	RespError  = byte('-') // -<string>\r\n
	RespInt    = byte(':') // :<number>\r\n
	RespString = byte('$') // $<length>\r\n<bytes>\r\n
	RespArray  = byte('*') // *<len>\r\n... elements
)

// IsReplyType reports whether b is one of the five RESP2 tag bytes.
func IsReplyType(b byte) bool {
	switch b {
	case RespStatus, RespError, RespInt, RespString, RespArray:
		return true
	default:
		return false
	}
}
