package replication

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSource struct {
	mu             sync.Mutex
	events         []Event
	connectErr     error
	connects       int
	closed         int
	lastCursor     GTID
	lastHaveCursor bool
}

func (s *mockSource) Connect(cursor GTID, haveCursor bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	s.lastCursor = cursor
	s.lastHaveCursor = haveCursor
	return s.connectErr
}

func (s *mockSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *mockSource) FetchEvent() (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return Event{}, errors.New("mock source exhausted")
	}
	e := s.events[0]
	s.events = s.events[1:]
	return e, nil
}

func TestProcessorFlushesOnXID(t *testing.T) {
	source := &mockSource{events: []Event{
		{Kind: GTIDEvent, GTID: GTID{Domain: 0, ServerID: 1, Sequence: 42}},
		{Kind: TableMapEvent, TableID: 7, TableName: "users"},
		{Kind: WriteRowsEvent, RowTableID: 7},
		{Kind: XIDEvent, XID: 1},
	}}
	sink := NewChannelSink(4)
	p := NewProcessor("t1", source, sink)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = p.Run(ctx) }()

	select {
	case msg := <-sink.Messages():
		assert.Equal(t, "0-1-42", msg.Cursor)
		assert.Equal(t, []string{"users"}, msg.Tables)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a flushed transaction")
	}
	cancel()
}

func TestProcessorTreatsRowEventKindsSymmetrically(t *testing.T) {
	for _, kind := range []EventKind{WriteRowsEvent, UpdateRowsEvent, DeleteRowsEvent} {
		source := &mockSource{events: []Event{
			{Kind: GTIDEvent, GTID: GTID{Domain: 0, ServerID: 1, Sequence: 1}},
			{Kind: TableMapEvent, TableID: 1, TableName: "orders"},
			{Kind: kind, RowTableID: 1},
			{Kind: XIDEvent},
		}}
		sink := NewChannelSink(4)
		p := NewProcessor("t1", source, sink)

		ctx, cancel := context.WithCancel(context.Background())
		go func() { _ = p.Run(ctx) }()

		select {
		case msg := <-sink.Messages():
			assert.Equal(t, []string{"orders"}, msg.Tables, "kind %s should mark its table touched", kind)
		case <-time.After(2 * time.Second):
			t.Fatalf("kind %s: expected a flushed transaction", kind)
		}
		cancel()
	}
}

func TestProcessorForwardsStandaloneQueryImmediately(t *testing.T) {
	source := &mockSource{events: []Event{
		{Kind: QueryEvent, Query: "CREATE TABLE t (id INT)"},
	}}
	sink := NewChannelSink(4)
	p := NewProcessor("t1", source, sink)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = p.Run(ctx) }()

	select {
	case msg := <-sink.Messages():
		assert.Equal(t, "CREATE TABLE t (id INT)", msg.Query)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a forwarded query")
	}
	cancel()
}

func TestProcessorReconnectsAndKeepsCommittedCursor(t *testing.T) {
	source := &mockSource{events: []Event{
		{Kind: GTIDEvent, GTID: GTID{Domain: 0, ServerID: 1, Sequence: 1}},
		{Kind: XIDEvent},
	}}
	sink := NewChannelSink(4)
	p := NewProcessor("t1", source, sink)
	p.ReconnectDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	select {
	case <-sink.Messages():
	case <-time.After(2 * time.Second):
		t.Fatal("expected first transaction to flush")
	}

	// Source now returns errors from FetchEvent (exhausted); wait for at
	// least one reconnect cycle, then confirm the committed cursor survived.
	require.Eventually(t, func() bool {
		source.mu.Lock()
		defer source.mu.Unlock()
		return source.connects >= 2
	}, 2*time.Second, 10*time.Millisecond)

	cursor, have := p.Cursor()
	assert.True(t, have, "the committed cursor survives a reconnect")
	assert.Equal(t, GTID{Domain: 0, ServerID: 1, Sequence: 1}, cursor)

	source.mu.Lock()
	assert.True(t, source.lastHaveCursor, "reconnect must hand the source the last-committed cursor")
	assert.Equal(t, GTID{Domain: 0, ServerID: 1, Sequence: 1}, source.lastCursor)
	source.mu.Unlock()
}

func TestProcessorIgnoresRowEventsOutsideTransaction(t *testing.T) {
	source := &mockSource{events: []Event{
		{Kind: TableMapEvent, TableID: 1, TableName: "orphan"},
		{Kind: WriteRowsEvent, RowTableID: 1},
	}}
	sink := NewChannelSink(4)
	p := NewProcessor("t1", source, sink)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = p.Run(ctx) }()
	defer cancel()

	select {
	case msg := <-sink.Messages():
		t.Fatalf("unexpected flush with no active transaction: %+v", msg)
	case <-time.After(200 * time.Millisecond):
	}
}
