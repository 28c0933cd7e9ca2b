// SPDX-License-Identifier: MIT
package udp

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type binaryPacket struct{ b []byte }

func (p binaryPacket) MarshalBinary() ([]byte, error) { return p.b, nil }

func listen(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func receive(t *testing.T, conn *net.UDPConn) []byte {
	t.Helper()
	buf := make([]byte, 2048)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	return buf[:n]
}

func TestUDPSenderEncodings(t *testing.T) {
	server := listen(t)
	s, err := NewUDPSender(server.LocalAddr().String())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Send([]byte{1, 2, 3}))
	assert.Equal(t, []byte{1, 2, 3}, receive(t, server))

	require.NoError(t, s.Send(binaryPacket{b: []byte{0xAA, 0xBB}}))
	assert.Equal(t, []byte{0xAA, 0xBB}, receive(t, server))

	require.NoError(t, s.Send(map[string]int{"delivered": 512}))
	assert.JSONEq(t, `{"delivered":512}`, string(receive(t, server)))

	assert.Equal(t, uint64(3), s.Sent())
}

func TestUDPSenderErrors(t *testing.T) {
	server := listen(t)
	s, err := NewUDPSender(server.LocalAddr().String())
	require.NoError(t, err)

	assert.Error(t, s.Send(make([]byte, MaxDatagram+1)))
	assert.Error(t, s.Send(func() {}), "functions cannot be JSON encoded")

	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.ErrorIs(t, s.Send([]byte{1}), ErrClosed)

	_, err = NewUDPSender("not an address")
	assert.Error(t, err)
}
