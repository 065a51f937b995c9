package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis keeps nonces as plain keys (SET NX / GETDEL) and tokens as hashes.
// GETDEL needs Redis 6.2 or newer.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedis(rdb redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "shopifybridge:"
	}
	return &Redis{rdb: rdb, prefix: prefix, now: time.Now}
}

func (r *Redis) stateKey(nonce string) string { return r.prefix + "state:" + nonce }
func (r *Redis) shopKey(shop string) string { return r.prefix + "shop:" + shop }

type redisState struct {
	Shop      string    `json:"shop,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *Redis) SaveState(ctx context.Context, st State, ttl time.Duration) error {
	payload, err := json.Marshal(redisState{Shop: st.ShopDomain, CreatedAt: st.CreatedAt})
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	ok, err := r.rdb.SetNX(ctx, r.stateKey(st.Nonce), payload, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrStateExists
	}
	return nil
}

func (r *Redis) ConsumeState(ctx context.Context, nonce string) (State, error) {
	raw, err := r.rdb.GetDel(ctx, r.stateKey(nonce)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{}, ErrNotFound
		}
		return State{}, err
	}
	var rs redisState
	if err := json.Unmarshal([]byte(raw), &rs); err != nil {
		return State{}, err
	}
	return State{Nonce: nonce, ShopDomain: rs.Shop, CreatedAt: rs.CreatedAt}, nil
}

func (r *Redis) PutShop(ctx context.Context, rec ShopRecord) error {
	key := r.shopKey(rec.ShopDomain)
	now := r.now().UTC().Format(time.RFC3339Nano)

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "id", uuid.NewString())
		pipe.HSetNX(ctx, key, "installed_at", now)
		pipe.HSet(ctx, key,
			"shop_domain", rec.ShopDomain,
			"access_token", rec.Credential,
			"scope", rec.Scope,
			"updated_at", now,
		)
		return nil
	})
	return err
}

func (r *Redis) GetShop(ctx context.Context, shopDomain string) (ShopRecord, error) {
	h, err := r.rdb.HGetAll(ctx, r.shopKey(shopDomain)).Result()
	if err != nil {
		return ShopRecord{}, err
	}
	if len(h) == 0 {
		return ShopRecord{}, ErrNotFound
	}
	installed, _ := time.Parse(time.RFC3339Nano, h["installed_at"])
	updated, _ := time.Parse(time.RFC3339Nano, h["updated_at"])
	return ShopRecord{
		ID:          h["id"],
		ShopDomain:  h["shop_domain"],
		Credential:  h["access_token"],
		Scope:       h["scope"],
		InstalledAt: installed,
		UpdatedAt:   updated,
	}, nil
}
