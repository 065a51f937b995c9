package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of *pgxpool.Pool the postgres backend uses.
// pgxmock.PgxPoolIface satisfies it in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores nonces in oauth_states and tokens in shops (see migrations/).
type Postgres struct {
	db PgxPool
}

func NewPostgres(db PgxPool) *Postgres {
	return &Postgres{db: db}
}

// SaveState ignores ttl; expired rows are rejected by Store and removed by PurgeStates.
func (p *Postgres) SaveState(ctx context.Context, st State, _ time.Duration) error {
	const q = `
INSERT INTO oauth_states (state, shop_domain, created_at)
VALUES ($1, NULLIF($2, ''), $3)
ON CONFLICT (state) DO NOTHING
`
	tag, err := p.db.Exec(ctx, q, st.Nonce, st.ShopDomain, st.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStateExists
	}
	return nil
}

// ConsumeState relies on DELETE ... RETURNING: only one statement can delete the row.
func (p *Postgres) ConsumeState(ctx context.Context, nonce string) (State, error) {
	const q = `
DELETE FROM oauth_states
WHERE state = $1
RETURNING state, COALESCE(shop_domain, ''), created_at
`
	var st State
	if err := p.db.QueryRow(ctx, q, nonce).Scan(&st.Nonce, &st.ShopDomain, &st.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return State{}, ErrNotFound
		}
		return State{}, err
	}
	return st, nil
}

func (p *Postgres) PutShop(ctx context.Context, rec ShopRecord) error {
	const q = `
INSERT INTO shops (shop_domain, access_token, scope)
VALUES ($1, $2, $3)
ON CONFLICT (shop_domain) DO UPDATE SET
  access_token = EXCLUDED.access_token,
  scope = EXCLUDED.scope,
  updated_at = NOW()
`
	_, err := p.db.Exec(ctx, q, rec.ShopDomain, rec.Credential, rec.Scope)
	return err
}

func (p *Postgres) GetShop(ctx context.Context, shopDomain string) (ShopRecord, error) {
	const q = `
SELECT id, shop_domain, access_token, COALESCE(scope, ''), installed_at, updated_at
FROM shops
WHERE shop_domain = $1
`
	var rec ShopRecord
	if err := p.db.QueryRow(ctx, q, shopDomain).Scan(
		&rec.ID, &rec.ShopDomain, &rec.Credential, &rec.Scope, &rec.InstalledAt, &rec.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ShopRecord{}, ErrNotFound
		}
		return ShopRecord{}, err
	}
	return rec, nil
}

func (p *Postgres) PurgeStates(ctx context.Context, createdBefore time.Time) (int64, error) {
	const q = `DELETE FROM oauth_states WHERE created_at < $1`
	tag, err := p.db.Exec(ctx, q, createdBefore)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
