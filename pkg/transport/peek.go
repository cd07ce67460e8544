package transport

import (
	"bufio"
	"net"
)

// httpMethodPrefixes are the ASCII prefixes that mark a connection as
// HTTP rather than the binary protocol (spec §4.11: "If the peek is an
// ASCII HTTP method (\"GET \", \"POST\", …)"). PRI is included so an
// HTTP/2 h2c preface is also routed to the HTTP server.
var httpMethodPrefixes = [][]byte{
	[]byte("GET "),
	[]byte("POST"),
	[]byte("PUT "),
	[]byte("DELETE"),
	[]byte("HEAD"),
	[]byte("OPTIONS"),
	[]byte("PATCH"),
	[]byte("PRI "),
}

// peekedConn wraps a net.Conn behind a bufio.Reader so the demux can look
// at the first bytes of a connection and then replay them to whoever
// reads the connection next, without consuming them. This is the Go
// equivalent of the teacher corpus's PeekedStream: idiomatic Go needs no
// custom poll-based AsyncRead shim, just a buffered reader that Peek()s
// before Read()ing.
type peekedConn struct {
	net.Conn
	r *bufio.Reader
}

func newPeekedConn(c net.Conn) *peekedConn {
	return &peekedConn{Conn: c, r: bufio.NewReader(c)}
}

func (p *peekedConn) Read(b []byte) (int, error) { return p.r.Read(b) }

// isHTTP peeks the first few bytes of the connection and reports whether
// they look like the start of an HTTP request line, without advancing
// the stream.
func (p *peekedConn) isHTTP() bool {
	peek, err := p.r.Peek(4)
	if err != nil {
		// Fewer than 4 bytes available (short write, or connection
		// closing); whatever arrived is not a recognizable HTTP verb so
		// fall through to the binary protocol, matching the error case
		// of the teacher's own peek probes elsewhere in this codebase.
		peek, err = p.r.Peek(len(peek))
		if err != nil {
			return false
		}
	}
	for _, prefix := range httpMethodPrefixes {
		if len(peek) >= len(prefix) && string(peek[:len(prefix)]) == string(prefix) {
			return true
		}
		if len(peek) < len(prefix) && len(peek) > 0 && string(prefix[:len(peek)]) == string(peek) {
			return true
		}
	}
	return false
}
