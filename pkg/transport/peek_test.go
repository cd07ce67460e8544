package transport

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeekedConnRecognizesHTTPMethods(t *testing.T) {
	cases := []string{"GET /", "POST ", "PUT / HTTP/1.1", "DELETE", "HEAD /", "OPTIONS", "PATCH /", "PRI * HTTP/2.0"}
	for _, prefix := range cases {
		t.Run(prefix, func(t *testing.T) {
			client, server := net.Pipe()
			defer client.Close()
			defer server.Close()

			go func() { _, _ = client.Write([]byte(prefix + "\r\n\r\n")) }()

			pc := newPeekedConn(server)
			assert.True(t, pc.isHTTP())
		})
	}
}

func TestPeekedConnRejectsNonHTTPPrefix(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() { _, _ = client.Write([]byte{'S', 'D', 'B', 1, 0, 0, 0, 0}) }()

	pc := newPeekedConn(server)
	assert.False(t, pc.isHTTP())
}

func TestPeekedConnReplaysPeekedBytesToReader(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() { _, _ = client.Write([]byte("GET /x HTTP/1.1\r\n\r\n")) }()

	pc := newPeekedConn(server)
	require.True(t, pc.isHTTP())

	buf := make([]byte, 3)
	_, err := io.ReadFull(pc, buf)
	require.NoError(t, err)
	assert.Equal(t, "GET", string(buf))
}
