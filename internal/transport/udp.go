// Package transport implements the node's UDP socket primitive: a
// channel-mediated accept/serve loop adapted from the teacher's
// dns-server.DNSServer.serveLoop, generalized from resolving DNS queries to
// delivering raw datagrams to the node's dispatcher.
package transport

import (
	"context"
	"net"

	"go.uber.org/zap"

	"github.com/mcastellin/cyclonode/internal/wire"
)

// Datagram is one received UDP packet and its return address.
type Datagram struct {
	Data []byte
	Addr *net.UDPAddr
}

// Socket wraps a bound UDP connection and feeds received datagrams to a
// channel the node's event loop selects on.
type Socket struct {
	Port int

	conn     *net.UDPConn
	log      *zap.Logger
	shutdown bool
}

// Open binds a UDP socket on port. Passing 0 lets the OS assign an
// ephemeral port; the Socket's Port field always reflects the port actually
// bound, not the one requested.
func Open(port int, log *zap.Logger) (*Socket, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, err
	}
	return &Socket{Port: conn.LocalAddr().(*net.UDPAddr).Port, conn: conn, log: log}, nil
}

// Close releases the underlying socket.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// SendTo implements shuffle.Sender and dissem.Sender: writes payload to the
// given address/port over this node's own socket.
func (s *Socket) SendTo(address string, port int, payload []byte) error {
	addr := &net.UDPAddr{IP: net.ParseIP(address), Port: port}
	_, err := s.conn.WriteToUDP(payload, addr)
	return err
}

// Receive runs the accept loop in the background, pushing datagrams to out
// until ctx is cancelled. Modeled directly on DNSServer.serveLoop: one
// goroutine blocks in ReadFromUDP at a time, signaled to restart via the
// buffered "accepting" channel so the loop stays responsive to
// cancellation instead of being stuck inside a blocking read.
func (s *Socket) Receive(ctx context.Context, out chan<- Datagram) {
	accepting := make(chan struct{}, 1)
	accepting <- struct{}{}

	acceptFn := func() {
		defer func() {
			if !s.shutdown {
				accepting <- struct{}{}
			}
		}()
		var buf [wire.MaxBufferSize]byte
		n, addr, err := s.conn.ReadFromUDP(buf[:])
		if err != nil {
			if !s.shutdown {
				s.log.Warn("udp read failed", zap.Error(err))
			}
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case out <- Datagram{Data: data, Addr: addr}:
		case <-ctx.Done():
		}
	}

	for {
		select {
		case <-ctx.Done():
			s.shutdown = true
			return
		case <-accepting:
			go acceptFn()
		}
	}
}
