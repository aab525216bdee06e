// Package transport provides the UDP datagram endpoints a measurement
// flow runs over: one socket for RTP media and its text acknowledgments,
// one for RTCP control reports.
//
// Endpoints deliver raw datagrams to a registered handler; all framing
// and parsing lives with the caller. Parse failures never terminate the
// read loop.
package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// readDeadline bounds each blocking read so the loop can observe
// cancellation promptly.
const readDeadline = 100 * time.Millisecond

// DatagramHandler processes one received datagram. The data slice is
// only valid for the duration of the call.
type DatagramHandler func(data []byte, addr net.Addr)

// Endpoint is a UDP socket with a background read loop dispatching
// incoming datagrams to a single registered handler.
type Endpoint struct {
	conn    net.PacketConn
	mu      sync.RWMutex
	handler DatagramHandler
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// Listen opens a UDP endpoint bound to listenAddr (e.g. ":5005") and
// starts its read loop.
func Listen(listenAddr string) (*Endpoint, error) {
	conn, err := net.ListenPacket("udp", listenAddr)
	if err != nil {
		return nil, err
	}
	return wrap(conn), nil
}

// Wrap adopts an already-open packet connection. Used by tests to run
// endpoints over in-memory pipes.
func Wrap(conn net.PacketConn) *Endpoint {
	return wrap(conn)
}

func wrap(conn net.PacketConn) *Endpoint {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Endpoint{
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go e.readLoop()
	return e
}

// SetHandler registers the datagram handler. Datagrams arriving while no
// handler is set are dropped.
func (e *Endpoint) SetHandler(h DatagramHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

// Send transmits one datagram to addr.
func (e *Endpoint) Send(data []byte, addr net.Addr) error {
	_, err := e.conn.WriteTo(data, addr)
	return err
}

// LocalAddr returns the bound local address.
func (e *Endpoint) LocalAddr() net.Addr {
	return e.conn.LocalAddr()
}

// Close stops the read loop and closes the socket.
func (e *Endpoint) Close() error {
	e.cancel()
	err := e.conn.Close()
	<-e.done
	return err
}

func (e *Endpoint) readLoop() {
	defer close(e.done)
	buffer := make([]byte, 2048)

	for {
		select {
		case <-e.ctx.Done():
			return
		default:
		}

		_ = e.conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, addr, err := e.conn.ReadFrom(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-e.ctx.Done():
			default:
				logrus.WithFields(logrus.Fields{
					"local": e.conn.LocalAddr().String(),
					"error": err,
				}).Debug("endpoint read failed")
			}
			continue
		}

		e.mu.RLock()
		handler := e.handler
		e.mu.RUnlock()

		if handler != nil {
			handler(buffer[:n], addr)
		}
	}
}
