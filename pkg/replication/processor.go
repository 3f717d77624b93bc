package replication

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nedscode/dbrouted/pkg/log"
	"github.com/nedscode/dbrouted/pkg/metrics"
)

// DefaultReconnectDelay is the fixed, unbounded-retry reconnect interval
// from replicator.cc's connection loop (spec §4.F).
const DefaultReconnectDelay = 5 * time.Second

// Processor consumes a replication EventSource, tracks the GTID cursor
// and table-map state across transaction boundaries, and forwards
// committed transactions to a Sink. Per SPEC_FULL §9 Open Question #1,
// WRITE/UPDATE/DELETE row events are treated symmetrically: all three
// mark their table as touched, since the committed-cursor invariant
// depends only on transaction boundaries, not row kind.
type Processor struct {
	Source EventSource
	Sink   Sink

	// ReconnectDelay overrides DefaultReconnectDelay; zero means use the
	// default.
	ReconnectDelay time.Duration

	logger zerolog.Logger

	mu          sync.Mutex
	tableNames  map[uint64]string
	txn         *transaction
	lastCursor  GTID
	haveCursor  bool
}

// NewProcessor builds a Processor over source/sink.
func NewProcessor(name string, source EventSource, sink Sink) *Processor {
	return &Processor{
		Source:     source,
		Sink:       sink,
		logger:     log.WithComponent("replication." + name),
		tableNames: make(map[uint64]string),
	}
}

func (p *Processor) reconnectDelay() time.Duration {
	if p.ReconnectDelay > 0 {
		return p.ReconnectDelay
	}
	return DefaultReconnectDelay
}

// Run drives the processor until ctx is cancelled: connect, stream events
// until the connection drops, discard the in-flight transaction and
// table-map state (the committed cursor is kept and handed back to
// Connect), reconnect after ReconnectDelay, and repeat. It returns
// ctx.Err() when cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := p.connectWithRetry(ctx); err != nil {
			return err
		}

		p.streamUntilError(ctx)

		p.resetState()
		metrics.ReplicationReconnects.Inc()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.reconnectDelay()):
		}
	}
}

func (p *Processor) connectWithRetry(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		cursor, haveCursor := p.Cursor()
		if err := p.Source.Connect(cursor, haveCursor); err != nil {
			p.logger.Warn().Err(err).Msg("replication connect failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.reconnectDelay()):
				continue
			}
		}
		return nil
	}
}

func (p *Processor) streamUntilError(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			p.Source.Close()
			return
		}
		event, err := p.Source.FetchEvent()
		if err != nil {
			p.logger.Warn().Err(err).Msg("replication stream lost")
			p.Source.Close()
			return
		}
		p.processEvent(event)
	}
}

// resetState discards in-flight, per-connection state on a disconnect
// (spec §4.F failure semantics: "the in-flight transaction-id is
// discarded on reconnect"). The committed cursor (lastCursor/haveCursor)
// is deliberately left untouched — it is the one piece of state that
// survives a reconnect, and connectWithRetry hands it to the source so
// streaming can resume from where it left off.
func (p *Processor) resetState() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tableNames = make(map[uint64]string)
	p.txn = nil
}

func (p *Processor) processEvent(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Kind {
	case GTIDEvent:
		p.txn = newTransaction(e.GTID)

	case TableMapEvent:
		p.tableNames[e.TableID] = e.TableName
		if p.txn != nil {
			p.txn.tables[e.TableID] = e.TableName
		}

	case WriteRowsEvent, UpdateRowsEvent, DeleteRowsEvent:
		if p.txn == nil {
			return
		}
		name := p.txn.tables[e.RowTableID]
		if name == "" {
			name = p.tableNames[e.RowTableID]
		}
		if name != "" {
			p.txn.pendingTables[name] = true
		}

	case QueryEvent:
		if p.txn != nil {
			p.txn.query = e.Query
			return
		}
		// Standalone DDL/autocommit statement outside any GTID/XID pair:
		// forward it on its own immediately.
		p.flushLocked(&transaction{query: e.Query})

	case XIDEvent:
		if p.txn == nil {
			return
		}
		p.flushLocked(p.txn)
		p.txn = nil
	}
}

// flushLocked forwards txn to the sink and advances the committed cursor.
// Caller must hold p.mu.
func (p *Processor) flushLocked(txn *transaction) {
	cursor := p.lastCursor
	if txn.hasCursor {
		p.lastCursor = txn.cursor
		p.haveCursor = true
		cursor = txn.cursor
	}

	msg := TxnMessage{
		Cursor: cursor.String(),
		Tables: txn.touchedTables(),
		Query:  txn.query,
	}

	if err := p.Sink.Send(msg); err != nil {
		p.logger.Warn().Err(err).Str("cursor", msg.Cursor).Msg("failed to forward committed transaction")
		return
	}
	metrics.ReplicationCommits.Inc()
}

// Cursor returns the last committed GTID cursor and whether one has been
// observed since the processor was created. It is not cleared on reconnect.
func (p *Processor) Cursor() (GTID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastCursor, p.haveCursor
}
