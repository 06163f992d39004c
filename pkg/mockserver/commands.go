package mockserver

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pzhenzhou/respcli/pkg/respio"
	"github.com/samber/lo"
)

type handlerFunc func(ks *Keyspace, args [][]byte) respio.Reply

// command describes one supported command. Arity follows the redis
// convention: positive is an exact argument count including the command
// name, negative is a minimum.
type command struct {
	name    string
	arity   int
	handler handlerFunc
	quit    bool
}

var (
	replyOK = respio.SimpleString("OK")

	errSyntax = respio.ErrorReply("ERR syntax error")

	commandTable = lo.SliceToMap([]*command{
		{name: "ping", arity: -1, handler: pingCmd},
		{name: "echo", arity: 2, handler: echoCmd},
		{name: "set", arity: -3, handler: setCmd},
		{name: "get", arity: 2, handler: getCmd},
		{name: "del", arity: -2, handler: delCmd},
		{name: "exists", arity: -2, handler: existsCmd},
		{name: "incr", arity: 2, handler: incrCmd},
		{name: "expire", arity: 3, handler: expireCmd},
		{name: "ttl", arity: 2, handler: ttlCmd},
		{name: "mset", arity: -3, handler: msetCmd},
		{name: "mget", arity: -2, handler: mgetCmd},
		{name: "dbsize", arity: 1, handler: dbsizeCmd},
		{name: "flushdb", arity: -1, handler: flushdbCmd},
		{name: "quit", arity: -1, handler: quitCmd, quit: true},
	}, func(c *command) (string, *command) {
		return c.name, c
	})
)

func (c *command) checkArity(argc int) bool {
	if c.arity > 0 {
		return argc == c.arity
	}
	return argc >= -c.arity
}

func errorf(format string, args ...any) respio.ErrorReply {
	return respio.ErrorReply(fmt.Sprintf(format, args...))
}

func wrongArity(name string) respio.ErrorReply {
	return errorf("ERR wrong number of arguments for '%s' command", name)
}

// execute runs one command and reports whether the connection should be
// closed after the reply is written.
func execute(ks *Keyspace, args [][]byte) (respio.Reply, bool) {
	name := strings.ToLower(string(args[0]))
	cmd, ok := commandTable[name]
	if !ok {
		return errorf("ERR unknown command '%s'", args[0]), false
	}
	if !cmd.checkArity(len(args)) {
		return wrongArity(name), false
	}
	return cmd.handler(ks, args), cmd.quit
}

func pingCmd(_ *Keyspace, args [][]byte) respio.Reply {
	switch len(args) {
	case 1:
		return respio.SimpleString("PONG")
	case 2:
		return respio.NewBulkString(args[1])
	default:
		return wrongArity("ping")
	}
}

func echoCmd(_ *Keyspace, args [][]byte) respio.Reply {
	return respio.NewBulkString(args[1])
}

func setCmd(ks *Keyspace, args [][]byte) respio.Reply {
	var ttl time.Duration
	for i := 3; i < len(args); i++ {
		var unit time.Duration
		switch strings.ToUpper(string(args[i])) {
		case "EX":
			unit = time.Second
		case "PX":
			unit = time.Millisecond
		default:
			return errSyntax
		}
		if ttl > 0 || i+1 >= len(args) {
			return errSyntax
		}
		i++
		n, err := strconv.ParseInt(string(args[i]), 10, 64)
		if err != nil {
			return errorf("ERR %s", ErrNotInteger)
		}
		if n <= 0 {
			return errorf("ERR invalid expire time in 'set' command")
		}
		ttl = time.Duration(n) * unit
	}
	ks.Set(string(args[1]), args[2], ttl)
	return replyOK
}

func getCmd(ks *Keyspace, args [][]byte) respio.Reply {
	value, ok := ks.Get(string(args[1]))
	if !ok {
		return respio.NullBulkString()
	}
	return respio.NewBulkString(value)
}

func keysOf(args [][]byte) []string {
	return lo.Map(args, func(arg []byte, _ int) string { return string(arg) })
}

func delCmd(ks *Keyspace, args [][]byte) respio.Reply {
	return respio.Integer(ks.Del(keysOf(args[1:])...))
}

func existsCmd(ks *Keyspace, args [][]byte) respio.Reply {
	return respio.Integer(ks.Exists(keysOf(args[1:])...))
}

func incrCmd(ks *Keyspace, args [][]byte) respio.Reply {
	n, err := ks.Incr(string(args[1]))
	if err != nil {
		return errorf("ERR %s", err)
	}
	return respio.Integer(n)
}

func expireCmd(ks *Keyspace, args [][]byte) respio.Reply {
	seconds, err := strconv.ParseInt(string(args[2]), 10, 64)
	if err != nil {
		return errorf("ERR %s", ErrNotInteger)
	}
	if ks.Expire(string(args[1]), time.Duration(seconds)*time.Second) {
		return respio.Integer(1)
	}
	return respio.Integer(0)
}

func ttlCmd(ks *Keyspace, args [][]byte) respio.Reply {
	ttl := ks.TTL(string(args[1]))
	if ttl < 0 {
		return respio.Integer(ttl)
	}
	return respio.Integer((ttl.Milliseconds() + 500) / 1000)
}

func msetCmd(ks *Keyspace, args [][]byte) respio.Reply {
	if len(args)%2 != 1 {
		return wrongArity("mset")
	}
	for i := 1; i < len(args); i += 2 {
		ks.Set(string(args[i]), args[i+1], 0)
	}
	return replyOK
}

func mgetCmd(ks *Keyspace, args [][]byte) respio.Reply {
	values := lo.Map(args[1:], func(key []byte, _ int) respio.Reply {
		value, ok := ks.Get(string(key))
		if !ok {
			return respio.NullBulkString()
		}
		return respio.NewBulkString(value)
	})
	return respio.NewArray(values...)
}

func dbsizeCmd(ks *Keyspace, _ [][]byte) respio.Reply {
	return respio.Integer(ks.Len())
}

func flushdbCmd(ks *Keyspace, args [][]byte) respio.Reply {
	if len(args) > 2 {
		return errSyntax
	}
	ks.Flush()
	return replyOK
}

func quitCmd(_ *Keyspace, _ [][]byte) respio.Reply {
	return replyOK
}

// commandArgs unpacks a request, which must be an array of bulk strings.
func commandArgs(request respio.Reply) ([][]byte, error) {
	arr, ok := request.(respio.Array)
	if !ok {
		return nil, fmt.Errorf("expected '*', got '%c'", request.Type())
	}
	if arr.Null {
		return nil, nil
	}
	args := make([][]byte, 0, len(arr.Elems))
	for _, elem := range arr.Elems {
		bulk, ok := elem.(respio.BulkString)
		if !ok || bulk.Null {
			return nil, errors.New("expected non-null bulk string argument")
		}
		args = append(args, bulk.Data)
	}
	return args, nil
}
