package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Rajchodisetti/intraday-executor/internal/observ"
)

// PostgresSink inserts entries into the order_journal table. Inserts run
// in the background so a slow database never delays an order.
type PostgresSink struct {
	pool *pgxpool.Pool
	wg   sync.WaitGroup
}

// NewPostgresSink creates a connection pool and ensures the table exists.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	s := &PostgresSink{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresSink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`create table if not exists order_journal (
			id text primary key,
			ts timestamptz not null default now(),
			outcome text not null,
			mode text,
			tag text,
			symbol text,
			side text,
			quantity integer,
			order_type text,
			reason text,
			error text,
			request jsonb,
			response jsonb
		)`,
		`create index if not exists idx_order_journal_symbol_ts on order_journal(symbol, ts desc)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensureSchema: %w", err)
		}
	}
	return nil
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Write(_ context.Context, e Entry) error {
	req, err := json.Marshal(e.Request)
	if err != nil {
		return err
	}
	var resp []byte
	if e.Response != nil {
		if resp, err = json.Marshal(e.Response); err != nil {
			return err
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, err := s.pool.Exec(ctx,
			`insert into order_journal (id, ts, outcome, mode, tag, symbol, side, quantity, order_type, reason, error, request, response)
			 values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
			 on conflict (id) do nothing`,
			e.ID, e.Event, e.Outcome, e.Mode, e.Tag, e.Symbol, e.Side, e.Quantity, e.OrderType, e.Reason, e.Error, req, resp)
		if err != nil {
			observ.Warn("journal_postgres_insert_failed", map[string]any{"id": e.ID, "error": err.Error()})
		}
	}()
	return nil
}

// Close waits for pending inserts and releases the pool.
func (s *PostgresSink) Close() error {
	s.wg.Wait()
	s.pool.Close()
	return nil
}
