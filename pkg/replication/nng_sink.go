//go:build nng
// +build nng

package replication

import (
	"fmt"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pub"

	// Register all transports, matching the teacher's nng_transport.go.
	_ "go.nanomsg.org/mangos/v3/transport/all"
)

// NanomsgSink publishes one message per flushed transaction over a PUB
// socket, topic-prefixed "TXN:". Grounded on
// _examples/dd0wney-graphdb/pkg/replication/nng_transport.go's
// mangos.Socket wrapping, narrowed to the single PUB pattern this
// processor's fan-out actually needs.
type NanomsgSink struct {
	sock mangos.Socket
}

// NewNanomsgSink binds a PUB socket to addr (e.g. "tcp://*:9100") and
// returns a Sink that publishes to it.
func NewNanomsgSink(addr string) (*NanomsgSink, error) {
	sock, err := pub.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("replication: create pub socket: %w", err)
	}
	if err := sock.Listen(addr); err != nil {
		sock.Close()
		return nil, fmt.Errorf("replication: listen on %s: %w", addr, err)
	}
	return &NanomsgSink{sock: sock}, nil
}

func (s *NanomsgSink) Send(msg TxnMessage) error {
	data, err := encode(msg)
	if err != nil {
		return err
	}
	return s.sock.Send(data)
}

func (s *NanomsgSink) Close() error {
	return s.sock.Close()
}

var _ Sink = (*NanomsgSink)(nil)
