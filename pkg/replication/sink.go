package replication

import (
	"encoding/json"
	"fmt"
)

// TxnMessage is what gets forwarded to a Sink once a transaction commits:
// the GTID cursor, the distinct tables it touched, and any standalone
// query (DDL) it carried. The spec leaves the forwarding contract to the
// downstream sink (spec §4.F, §9 Open Question #3); this is this
// implementation's choice of envelope.
type TxnMessage struct {
	Cursor string   `json:"cursor"`
	Tables []string `json:"tables,omitempty"`
	Query  string   `json:"query,omitempty"`
}

// Sink receives one message per flushed transaction. Implementations must
// not block the processor indefinitely; a slow sink should buffer or drop
// rather than stall cursor advancement.
type Sink interface {
	Send(TxnMessage) error
	Close() error
}

// ChannelSink is the default, test-friendly Sink: it delivers every
// TxnMessage over a Go channel. Grounded on the teacher's WALPublisher
// shape (_examples/dd0wney-graphdb/pkg/replication/wal_publisher.go)
// generalized from a PUB-socket fan-out to a plain channel for the
// default/non-nng build.
type ChannelSink struct {
	messages chan TxnMessage
}

// NewChannelSink creates a ChannelSink with the given buffer depth.
func NewChannelSink(depth int) *ChannelSink {
	return &ChannelSink{messages: make(chan TxnMessage, depth)}
}

// Messages returns the channel TxnMessages are delivered on.
func (s *ChannelSink) Messages() <-chan TxnMessage {
	return s.messages
}

// Send delivers msg, dropping it if the buffer is full rather than
// blocking the processor (same never-block discipline as pkg/hook.Runner).
func (s *ChannelSink) Send(msg TxnMessage) error {
	select {
	case s.messages <- msg:
		return nil
	default:
		return fmt.Errorf("replication: channel sink buffer full, dropped txn %s", msg.Cursor)
	}
}

func (s *ChannelSink) Close() error {
	close(s.messages)
	return nil
}

// encode is the wire encoding NanomsgSink publishes (ChannelSink delivers
// the TxnMessage value itself): JSON, topic-prefixed "TXN:" so subscribers
// can filter by message kind the way WALPublisher prefixes "WAL:" onto its
// own published frames.
func encode(msg TxnMessage) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("replication: encode txn message: %w", err)
	}
	return append([]byte("TXN:"), body...), nil
}
