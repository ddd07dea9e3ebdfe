package pg

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/olyamironova/trade-gateway/internal/domain"
	"github.com/olyamironova/trade-gateway/internal/port"
)

//go:embed migrations/*.sql
var migrations embed.FS

var _ port.Archive = (*PgArchive)(nil)

// PgArchive keeps an audit copy of orders and trades in Postgres. Redis
// stays the source of truth.
type PgArchive struct {
	pool *pgxpool.Pool
}

// call Close when finish to work with database.
func NewPgArchive(ctx context.Context, dsn string) (*PgArchive, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	return &PgArchive{pool: pool}, nil
}

func (p *PgArchive) Close(ctx context.Context) {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Migrate applies the embedded goose migrations.
func (p *PgArchive) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(p.pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("pg: goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("pg: migrate: %w", err)
	}
	return nil
}

func (p *PgArchive) SaveOrder(ctx context.Context, o *domain.Order) error {
	if o == nil {
		return errors.New("nil order")
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO orders(id, pair, side, type, price, quantity, status, created_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  price = EXCLUDED.price,
  quantity = EXCLUDED.quantity,
  status = EXCLUDED.status,
  updated_at = NOW()
`, o.ID, string(o.Pair), string(o.Side), string(o.Type),
		o.Price, o.Quantity, string(o.Status), o.CreatedAt)
	if err != nil {
		return fmt.Errorf("pg: save order %s: %w", o.ID, err)
	}
	return nil
}

func (p *PgArchive) SaveTrade(ctx context.Context, t *domain.Trade) error {
	if t == nil {
		return errors.New("nil trade")
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO trades(id, pair, buy_order_id, sell_order_id, price, quantity, executed_at)
VALUES($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO NOTHING
`, t.ID, string(t.Pair), t.BuyOrderID, t.SellOrderID, t.Price, t.Quantity, t.Timestamp)
	if err != nil {
		return fmt.Errorf("pg: save trade %s: %w", t.ID, err)
	}
	return nil
}
