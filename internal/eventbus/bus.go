// Package eventbus implements the per-ticket Event Bus and SSE fan-out
// (spec §4.7): every ticket state transition is published to a
// `ticket:<id>` channel and fanned out to any subscriber watching that
// ticket, closing automatically once a terminal state is reached.
// Grounded on `pkg/pgnotify/bus.go`'s Postgres LISTEN/NOTIFY shape
// (reconnecting `pq.Listener`, a single reader goroutine, a periodic
// keep-alive ping), narrowed from its generic pub/sub + table-change
// surface down to the one channel convention this gateway needs.
package eventbus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/nlsql/gateway/internal/domain"
	"github.com/nlsql/gateway/internal/platform/logger"
)

const channelPrefix = "ticket:"

func channelFor(ticketID string) string {
	return channelPrefix + ticketID
}

// terminalStates are the TicketStates after which a subscription closes
// itself (spec §4.7: "terminal-state subscription closing").
var terminalStates = map[domain.TicketState]bool{
	domain.StateFinished:  true,
	domain.StateError:     true,
	domain.StateCancelled: true,
	domain.StateRejected:  true,
}

// Subscription is one SSE client's view of a ticket's events.
type Subscription struct {
	ticketID string
	events   chan domain.EventRecord
	closed   chan struct{}
	once     sync.Once
}

// Events returns the channel the caller receives events from. The channel
// itself is never closed; the end of the subscription is signalled by
// Done().
func (s *Subscription) Events() <-chan domain.EventRecord { return s.events }

// Done reports (by closing) when the subscription has ended, either
// because a terminal-state event was delivered or Close was called. SSE
// handlers should select on both Events() and Done().
func (s *Subscription) Done() <-chan struct{} { return s.closed }

// Close unregisters the subscription. Safe to call multiple times.
func (s *Subscription) Close() {
	s.once.Do(func() { close(s.closed) })
}

// Bus is a Postgres NOTIFY/LISTEN backed event bus scoped to ticket
// channels.
type Bus struct {
	db       *sql.DB
	listener *pq.Listener
	log      *logger.Logger

	mu   sync.RWMutex
	subs map[string][]*Subscription // ticket id -> subscribers

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens a dedicated connection and listener for dsn and starts the
// reader goroutine.
func New(dsn string, log *logger.Logger) (*Bus, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("eventbus: open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventbus: ping: %w", err)
	}
	return newWithDB(db, dsn, log)
}

func newWithDB(db *sql.DB, dsn string, log *logger.Logger) (*Bus, error) {
	if log == nil {
		log = logger.NewDefault("eventbus")
	}
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.WithError(err).Warn("eventbus listener connection event")
		}
	}
	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, reportProblem)

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		db:       db,
		listener: listener,
		log:      log,
		subs:     make(map[string][]*Subscription),
		ctx:      ctx,
		cancel:   cancel,
	}
	b.wg.Add(1)
	go b.listen()
	return b, nil
}

// Publish implements spec §4.7's publish(ticket_id, EventRecord) contract,
// sending the JSON-encoded record via pg_notify on the ticket's channel.
func (b *Bus) Publish(ctx context.Context, ticketID string, record domain.EventRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	record.TicketID = ticketID

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event: %w", err)
	}
	_, err = b.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", channelFor(ticketID), string(data))
	if err != nil {
		return fmt.Errorf("eventbus: notify: %w", err)
	}
	return nil
}

// Subscribe registers a new subscription for ticketID, issuing a LISTEN
// on its channel if this is the first subscriber.
func (b *Bus) Subscribe(ticketID string) (*Subscription, error) {
	sub := &Subscription{
		ticketID: ticketID,
		events:   make(chan domain.EventRecord, 16),
		closed:   make(chan struct{}),
	}

	b.mu.Lock()
	first := len(b.subs[ticketID]) == 0
	b.subs[ticketID] = append(b.subs[ticketID], sub)
	b.mu.Unlock()

	if first {
		if err := b.listener.Listen(channelFor(ticketID)); err != nil {
			b.removeSub(ticketID, sub)
			return nil, fmt.Errorf("eventbus: listen: %w", err)
		}
	}

	go func() {
		<-sub.closed
		b.removeSub(ticketID, sub)
	}()

	return sub, nil
}

func (b *Bus) removeSub(ticketID string, target *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	remaining := b.subs[ticketID][:0]
	for _, s := range b.subs[ticketID] {
		if s != target {
			remaining = append(remaining, s)
		}
	}
	if len(remaining) == 0 {
		delete(b.subs, ticketID)
		_ = b.listener.Unlisten(channelFor(ticketID))
	} else {
		b.subs[ticketID] = remaining
	}
}

// Close shuts down the bus's listener goroutine and underlying connection.
func (b *Bus) Close() error {
	b.cancel()
	b.wg.Wait()
	if err := b.listener.Close(); err != nil {
		return err
	}
	return b.db.Close()
}

func (b *Bus) listen() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case notification := <-b.listener.Notify:
			if notification == nil {
				continue // connection lost; pq.Listener reconnects and re-LISTENs
			}
			b.dispatch(notification)
		case <-time.After(90 * time.Second):
			go func() {
				if err := b.listener.Ping(); err != nil {
					b.log.WithError(err).Warn("eventbus ping failed")
				}
			}()
		}
	}
}

func (b *Bus) dispatch(notification *pq.Notification) {
	ticketID := strings.TrimPrefix(notification.Channel, channelPrefix)

	var record domain.EventRecord
	if err := json.Unmarshal([]byte(notification.Extra), &record); err != nil {
		b.log.WithError(err).Warn("eventbus: failed to decode notification payload")
		return
	}

	b.mu.RLock()
	targets := make([]*Subscription, len(b.subs[ticketID]))
	copy(targets, b.subs[ticketID])
	b.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.events <- record:
		default:
			b.log.WithField("ticket_id", ticketID).Warn("eventbus: subscriber channel full, disconnecting subscriber")
			sub.Close()
			continue
		}
		if terminalStates[record.State] {
			sub.Close()
		}
	}
}
