package transport

import (
	"bufio"
	"fmt"
	"net"
)

// TCPTransport is the raw-socket Transport variant used by network
// bridges (e.g. ESP3D, WiFi-attached controller boards).
type TCPTransport struct {
	base
	host string
	port int
	conn net.Conn
}

// NewTCP builds a TCP Transport. Ident follows spec.md §3:
// "tcp:<host>:<port>".
func NewTCP(host string, port int) *TCPTransport {
	return &TCPTransport{
		base: newBase(fmt.Sprintf("tcp:%s:%d", host, port)),
		host: host,
		port: port,
	}
}

func (t *TCPTransport) Open(cb func(error)) {
	addr := fmt.Sprintf("%s:%d", t.host, t.port)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		cb(fmt.Errorf("dial tcp %s: %w", addr, err))
		return
	}
	t.conn = conn
	go t.pump(bufio.NewScanner(conn))
	cb(nil)
}

func (t *TCPTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}

func (t *TCPTransport) Write(data []byte) error {
	if t.conn == nil {
		return fmt.Errorf("tcp %s:%d: not open", t.host, t.port)
	}
	_, err := t.conn.Write(t.filtered(data))
	return err
}
