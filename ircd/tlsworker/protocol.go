// Package tlsworker defines the opcode protocol used to hand a raw
// connection off for TLS termination, plus an in-process adapter that
// terminates TLS directly with crypto/tls rather than passing file
// descriptors to a separate worker process.
package tlsworker

import (
	"crypto/tls"
	"fmt"
	"net"
)

// Opcode is the one-byte command/response tag of the fd-passing
// protocol.
type Opcode byte

const (
	OpAccept  Opcode = 'A' // core -> worker: accept, using the given keys
	OpConnect Opcode = 'C' // core -> worker: connect out
	OpKeys    Opcode = 'K' // core -> worker: install a keypair
	OpCertFP  Opcode = 'F' // core -> worker: compute a cert fingerprint

	OpOpened Opcode = 'O' // worker -> core: handshake complete
	OpDied   Opcode = 'D' // worker -> core: connection died, with reason
	OpCipher Opcode = 'c' // worker -> core: negotiated cipher string
	OpFP     Opcode = 'f' // worker -> core: certificate fingerprint

	// OpVersion sets the protocol version byte. Dispatch's handling of
	// it falls through into the zlib-clear case (no break), so setting
	// the version also clears zlibOK as a side effect.
	OpVersion Opcode = 'V'
	OpZlibOK  Opcode = 'z'
)

// ConnID identifies one fd-passing exchange.
type ConnID uint32

// Message is one opcode exchange; Reason carries OpDied's text, Data
// carries OpCipher/OpFP payloads, NetConn carries the handshaked
// connection on OpOpened.
type Message struct {
	Op      Opcode
	Conn    ConnID
	Reason  string
	Data    string
	NetConn net.Conn
}

// Worker is the interface the core holds to its TLS collaborator,
// whether a real sibling process or the in-process adapter below.
type Worker interface {
	Accept(id ConnID, raw net.Conn, cfg *tls.Config) error
	Connect(id ConnID, raw net.Conn, cfg *tls.Config, serverName string) error
	Events() <-chan Message
}

// workerState is the process-wide version/compression state mutated
// by Dispatch.
type workerState struct {
	version byte
	zlibOK  bool
}

// Dispatch applies opcode to state: handling OpVersion also clears
// zlibOK, since the two opcodes share a switch case.
func Dispatch(state *workerState, op Opcode, arg byte) {
	switch op {
	case OpVersion:
		state.version = arg
		fallthrough
	case OpZlibOK:
		state.zlibOK = false
	}
}

// InProcessWorker terminates TLS directly via crypto/tls instead of
// passing fds to a sibling process.
type InProcessWorker struct {
	events chan Message
}

// NewInProcessWorker constructs an adapter with the given event buffer
// size.
func NewInProcessWorker(bufSize int) *InProcessWorker {
	return &InProcessWorker{events: make(chan Message, bufSize)}
}

// Accept performs a server-side TLS handshake on raw and reports the
// result on Events().
func (w *InProcessWorker) Accept(id ConnID, raw net.Conn, cfg *tls.Config) error {
	conn := tls.Server(raw, cfg)
	go w.handshake(id, conn)
	return nil
}

// Connect performs a client-side TLS handshake (for outbound server
// links) on raw.
func (w *InProcessWorker) Connect(id ConnID, raw net.Conn, cfg *tls.Config, serverName string) error {
	c2 := cfg.Clone()
	c2.ServerName = serverName
	conn := tls.Client(raw, c2)
	go w.handshake(id, conn)
	return nil
}

func (w *InProcessWorker) handshake(id ConnID, conn *tls.Conn) {
	if err := conn.Handshake(); err != nil {
		w.events <- Message{Op: OpDied, Conn: id, Reason: fmt.Sprintf("tls handshake: %v", err)}
		return
	}
	state := conn.ConnectionState()
	cipher := tls.CipherSuiteName(state.CipherSuite)
	w.events <- Message{Op: OpCipher, Conn: id, Data: cipher}
	w.events <- Message{Op: OpOpened, Conn: id, NetConn: conn}
}

// Events returns the channel of OpOpened/OpDied/OpCipher/OpFP messages.
func (w *InProcessWorker) Events() <-chan Message {
	return w.events
}
