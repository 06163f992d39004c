package main

import (
	"errors"
	"strconv"
	"strings"
)

var (
	errUnbalancedQuotes = errors.New("invalid argument(s): unbalanced quotes")
)

// splitArgs splits a prompt line into words the way redis-cli does. Double
// quoted words understand \n, \r, \t, \b, \a and \xHH escapes, single quoted
// words only \'. A closing quote must be followed by a space or the end.
func splitArgs(line string) ([]string, error) {
	var (
		words []string
		i     int
	)
	for {
		for i < len(line) && isSpace(line[i]) {
			i++
		}
		if i >= len(line) {
			return words, nil
		}
		var (
			word    strings.Builder
			inDQ    bool
			inSQ    bool
			done    bool
			started = i
		)
		for !done {
			if i >= len(line) {
				if inDQ || inSQ {
					return nil, errUnbalancedQuotes
				}
				break
			}
			c := line[i]
			switch {
			case inDQ:
				switch {
				case c == '\\' && i+3 < len(line) && line[i+1] == 'x' && isHex(line[i+2]) && isHex(line[i+3]):
					b, _ := strconv.ParseUint(line[i+2:i+4], 16, 8)
					word.WriteByte(byte(b))
					i += 3
				case c == '\\' && i+1 < len(line):
					i++
					word.WriteByte(unescape(line[i]))
				case c == '"':
					if i+1 < len(line) && !isSpace(line[i+1]) {
						return nil, errUnbalancedQuotes
					}
					done = true
				default:
					word.WriteByte(c)
				}
			case inSQ:
				switch {
				case c == '\\' && i+1 < len(line) && line[i+1] == '\'':
					i++
					word.WriteByte('\'')
				case c == '\'':
					if i+1 < len(line) && !isSpace(line[i+1]) {
						return nil, errUnbalancedQuotes
					}
					done = true
				default:
					word.WriteByte(c)
				}
			default:
				switch {
				case isSpace(c):
					done = true
				case c == '"' && i == started:
					inDQ = true
				case c == '\'' && i == started:
					inSQ = true
				default:
					word.WriteByte(c)
				}
			}
			if i < len(line) {
				i++
			}
		}
		words = append(words, word.String())
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'a':
		return '\a'
	default:
		return c
	}
}
