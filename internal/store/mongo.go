package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	ShopsCollection  = "shops"
	StatesCollection = "oauth_states"
)

type stateDoc struct {
	State      string    `bson:"state"`
	ShopDomain string    `bson:"shop_domain,omitempty"`
	CreatedAt  time.Time `bson:"created_at"`
}

type shopDoc struct {
	ID          string    `bson:"_id"`
	ShopDomain  string    `bson:"shop_domain"`
	AccessToken string    `bson:"access_token"`
	Scope       string    `bson:"scope"`
	InstalledAt time.Time `bson:"installed_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

// Mongo stores nonces and tokens as documents with unique indexes on state and shop_domain.
type Mongo struct {
	states *mongo.Collection
	shops  *mongo.Collection
	now    func() time.Time
}

// NewMongo ensures indexes exist. A positive stateTTL adds a TTL index on created_at so the
// server removes stale nonces on its own.
func NewMongo(ctx context.Context, db *mongo.Database, stateTTL time.Duration) (*Mongo, error) {
	m := &Mongo{
		states: db.Collection(StatesCollection),
		shops:  db.Collection(ShopsCollection),
		now:    time.Now,
	}

	stateIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "state", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	if stateTTL > 0 {
		stateIdx = append(stateIdx, mongo.IndexModel{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(stateTTL.Seconds())),
		})
	}
	if _, err := m.states.Indexes().CreateMany(ctx, stateIdx); err != nil {
		return nil, fmt.Errorf("create %s indexes: %w", StatesCollection, err)
	}

	if _, err := m.shops.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "shop_domain", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, fmt.Errorf("create %s indexes: %w", ShopsCollection, err)
	}
	return m, nil
}

func (m *Mongo) SaveState(ctx context.Context, st State, _ time.Duration) error {
	_, err := m.states.InsertOne(ctx, stateDoc{
		State:      st.Nonce,
		ShopDomain: st.ShopDomain,
		CreatedAt:  st.CreatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrStateExists
	}
	return err
}

func (m *Mongo) ConsumeState(ctx context.Context, nonce string) (State, error) {
	var doc stateDoc
	if err := m.states.FindOneAndDelete(ctx, bson.M{"state": nonce}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return State{}, ErrNotFound
		}
		return State{}, err
	}
	return State{Nonce: doc.State, ShopDomain: doc.ShopDomain, CreatedAt: doc.CreatedAt}, nil
}

func (m *Mongo) PutShop(ctx context.Context, rec ShopRecord) error {
	err := m.upsertShop(ctx, rec)
	// Two first-time upserts for one shop can race on the unique index; the loser becomes an update.
	if mongo.IsDuplicateKeyError(err) {
		err = m.upsertShop(ctx, rec)
	}
	return err
}

func (m *Mongo) upsertShop(ctx context.Context, rec ShopRecord) error {
	now := m.now().UTC()
	update := bson.M{
		"$set": bson.M{
			"access_token": rec.Credential,
			"scope":        rec.Scope,
			"updated_at":   now,
		},
		"$setOnInsert": bson.M{
			"_id":          uuid.NewString(),
			"installed_at": now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	return m.shops.FindOneAndUpdate(ctx, bson.M{"shop_domain": rec.ShopDomain}, update, opts).Err()
}

func (m *Mongo) GetShop(ctx context.Context, shopDomain string) (ShopRecord, error) {
	var doc shopDoc
	if err := m.shops.FindOne(ctx, bson.M{"shop_domain": shopDomain}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ShopRecord{}, ErrNotFound
		}
		return ShopRecord{}, err
	}
	return ShopRecord{
		ID:          doc.ID,
		ShopDomain:  doc.ShopDomain,
		Credential:  doc.AccessToken,
		Scope:       doc.Scope,
		InstalledAt: doc.InstalledAt,
		UpdatedAt:   doc.UpdatedAt,
	}, nil
}
