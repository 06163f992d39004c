package client

import (
	"errors"
	"io"
	"net"
	"syscall"
	"time"
)

var (
	// ErrUnsolicitedData means bytes arrived on a connection with no command in flight.
	ErrUnsolicitedData = errors.New("respcli: unsolicited data on idle connection")
)

// Check probes an idle connection without blocking. It returns io.EOF when the
// server has closed its side and ErrUnsolicitedData when unread bytes are
// waiting. A failed check closes the connection.
func (c *Conn) Check() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return ErrClosed
	}
	if c.reader.Buffered() > 0 {
		_ = c.close()
		return ErrUnsolicitedData
	}
	if checkErr := checkConn(c.conn); checkErr != nil {
		_ = c.close()
		return checkErr
	}
	return nil
}

func checkConn(conn net.Conn) error {
	_ = conn.SetDeadline(time.Time{})
	sysConn, ok := conn.(syscall.Conn)
	if !ok {
		return nil
	}
	rawConn, err := sysConn.SyscallConn()
	if err != nil {
		return err
	}
	var sysErr error
	// read one byte from the socket buffer, a live idle connection has none
	if err := rawConn.Read(func(fd uintptr) bool {
		var buf [1]byte
		n, err := syscall.Read(int(fd), buf[:])
		switch {
		case n == 0 && err == nil:
			sysErr = io.EOF
		case n > 0:
			sysErr = ErrUnsolicitedData
		case errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK):
			sysErr = nil
		default:
			sysErr = err
		}
		return true
	}); err != nil {
		return err
	}
	return sysErr
}
