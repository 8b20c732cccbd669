// Package postgres implements the base-collection adapter: a keyed,
// change-notifying feed over a set of Postgres tables. The initial snapshot
// comes from a plain table scan; incremental changes arrive over
// LISTEN/NOTIFY from triggers installed by EnsureChangefeed. The adapter owns
// every failure mode of the database boundary: malformed payloads are counted
// and dropped, lost connections are re-established with exponential backoff
// and followed by a full resynchronization.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventType is the kind of row change carried by an Event.
type EventType string

const (
	Insert EventType = "insert"
	Update EventType = "update"
	Delete EventType = "delete"
)

// Event is one row change on a watched table. Row is nil for deletions.
type Event struct {
	Table string
	Type  EventType
	Key   int64
	Row   map[string]any
}

// TableRow is one row of a full-table snapshot.
type TableRow struct {
	Key int64
	Row map[string]any
}

// Handler consumes the adapter's output. HandleResync replaces the full
// content of one table; HandleEvent applies one incremental change.
type Handler interface {
	HandleEvent(ev Event) error
	HandleResync(table string, rows []TableRow) error
}

// Options configures an Adapter.
type Options struct {
	Logger logr.Logger
}

// notifyChannelPrefix namespaces the NOTIFY channels used by the changefeed
// triggers.
const notifyChannelPrefix = "liveview_"

// Adapter feeds base collections from Postgres.
type Adapter struct {
	pool    *pgxpool.Pool
	tables  []string
	handler Handler
	log     logr.Logger

	malformed int
}

// New creates an adapter watching the given tables.
func New(pool *pgxpool.Pool, tables []string, handler Handler, opts Options) *Adapter {
	log := opts.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	return &Adapter{
		pool:    pool,
		tables:  tables,
		handler: handler,
		log:     log.WithName("pgadapter"),
	}
}

// FetchAll returns a full snapshot of a table. Rows without a usable id are
// counted and skipped.
func (a *Adapter) FetchAll(ctx context.Context, table string) ([]TableRow, error) {
	query := fmt.Sprintf("SELECT row_to_json(t) FROM %s t", pgx.Identifier{table}.Sanitize())
	rows, err := a.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch table %q: %w", table, err)
	}
	defer rows.Close()

	var ret []TableRow
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan row of table %q: %w", table, err)
		}

		var row map[string]any
		if err := json.Unmarshal(raw, &row); err != nil {
			a.countMalformed(table, err)
			continue
		}
		key, ok := rowKey(row)
		if !ok {
			a.countMalformed(table, fmt.Errorf("row has no integer id"))
			continue
		}
		ret = append(ret, TableRow{Key: key, Row: row})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to fetch table %q: %w", table, err)
	}

	return ret, nil
}

// Run establishes the change feed and blocks until ctx is cancelled. Every
// (re)connect resynchronizes all tables before streaming notifications, so
// changes that happened while the feed was down are never lost.
func (a *Adapter) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry until cancelled

	err := backoff.Retry(func() error {
		if err := a.listen(ctx); err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			a.log.Error(err, "change feed lost, reconnecting")
			return err
		}
		return backoff.Permanent(nil)
	}, backoff.WithContext(bo, ctx))

	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// listen holds one dedicated connection: LISTEN on every table channel,
// resync, then dispatch notifications until the connection or ctx dies.
func (a *Adapter) listen(ctx context.Context) error {
	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	defer conn.Release()

	for _, table := range a.tables {
		channel := pgx.Identifier{notifyChannelPrefix + table}.Sanitize()
		if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
			return fmt.Errorf("failed to listen on %s: %w", channel, err)
		}
	}

	if err := a.resync(ctx); err != nil {
		return err
	}

	a.log.Info("change feed established", "tables", strings.Join(a.tables, ","))

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to wait for notification: %w", err)
		}

		table := strings.TrimPrefix(n.Channel, notifyChannelPrefix)
		ev, err := a.parseNotification(ctx, table, []byte(n.Payload))
		if err != nil {
			a.countMalformed(table, err)
			continue
		}

		a.log.V(2).Info("dispatching change", "table", ev.Table, "op", ev.Type, "key", ev.Key)
		if err := a.handler.HandleEvent(ev); err != nil {
			a.log.Error(err, "handler rejected change event", "table", ev.Table, "key", ev.Key)
		}
	}
}

func (a *Adapter) resync(ctx context.Context) error {
	for _, table := range a.tables {
		rows, err := a.FetchAll(ctx, table)
		if err != nil {
			return err
		}
		if err := a.handler.HandleResync(table, rows); err != nil {
			return fmt.Errorf("failed to resync table %q: %w", table, err)
		}
	}
	return nil
}

// notification is the JSON payload emitted by the changefeed trigger. Row is
// omitted by the trigger when the payload would overflow the NOTIFY limit;
// the adapter then re-reads the row by id.
type notification struct {
	Op  string         `json:"op"`
	ID  *int64         `json:"id"`
	Row map[string]any `json:"row"`
}

func (a *Adapter) parseNotification(ctx context.Context, table string, payload []byte) (Event, error) {
	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return Event{}, fmt.Errorf("invalid notification payload: %w", err)
	}
	if n.ID == nil {
		return Event{}, fmt.Errorf("notification payload has no id")
	}

	ev := Event{Table: table, Key: *n.ID, Row: n.Row}
	switch n.Op {
	case "insert":
		ev.Type = Insert
	case "update":
		ev.Type = Update
	case "delete":
		ev.Type = Delete
		ev.Row = nil
		return ev, nil
	default:
		return Event{}, fmt.Errorf("unknown notification op %q", n.Op)
	}

	if ev.Row == nil {
		row, ok, err := a.fetchRow(ctx, table, ev.Key)
		if err != nil {
			return Event{}, err
		}
		if !ok {
			// The row disappeared since the trigger fired; the
			// pending delete notification will take care of it.
			return Event{}, fmt.Errorf("oversized row %d vanished before re-read", ev.Key)
		}
		ev.Row = row
	}

	return ev, nil
}

func (a *Adapter) fetchRow(ctx context.Context, table string, key int64) (map[string]any, bool, error) {
	query := fmt.Sprintf("SELECT row_to_json(t) FROM %s t WHERE id = $1", pgx.Identifier{table}.Sanitize())

	var raw []byte
	err := a.pool.QueryRow(ctx, query, key).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to re-read row %d of table %q: %w", key, table, err)
	}

	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, false, fmt.Errorf("failed to decode row %d of table %q: %w", key, table, err)
	}
	return row, true, nil
}

func (a *Adapter) countMalformed(table string, err error) {
	a.malformed++
	a.log.V(1).Info("dropping malformed row", "table", table, "reason", err.Error(),
		"malformed-total", a.malformed)
}

func rowKey(row map[string]any) (int64, bool) {
	switch v := row["id"].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}
