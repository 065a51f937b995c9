package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// newTestMongo connects to TEST_MONGO_URI and returns a backend on a throwaway database.
func newTestMongo(t *testing.T) *Mongo {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx, nil))

	db := client.Database("shopifybridge_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	m, err := NewMongo(ctx, db, 10*time.Minute)
	require.NoError(t, err)
	return m
}

func TestMongo_StateLifecycle(t *testing.T) {
	m := newTestMongo(t)
	ctx := context.Background()
	st := State{Nonce: "n1", ShopDomain: "demo.myshopify.com", CreatedAt: time.Now().UTC().Truncate(time.Millisecond)}

	require.NoError(t, m.SaveState(ctx, st, 0))
	require.ErrorIs(t, m.SaveState(ctx, st, 0), ErrStateExists)

	got, err := m.ConsumeState(ctx, "n1")
	require.NoError(t, err)
	require.Equal(t, st.ShopDomain, got.ShopDomain)
	require.True(t, st.CreatedAt.Equal(got.CreatedAt))

	_, err = m.ConsumeState(ctx, "n1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMongo_ShopUpsert(t *testing.T) {
	m := newTestMongo(t)
	ctx := context.Background()

	_, err := m.GetShop(ctx, "demo.myshopify.com")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.PutShop(ctx, ShopRecord{ShopDomain: "demo.myshopify.com", Credential: "one", Scope: "a"}))
	first, err := m.GetShop(ctx, "demo.myshopify.com")
	require.NoError(t, err)

	require.NoError(t, m.PutShop(ctx, ShopRecord{ShopDomain: "demo.myshopify.com", Credential: "two", Scope: "b"}))
	second, err := m.GetShop(ctx, "demo.myshopify.com")
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "two", second.Credential)
	require.Equal(t, "b", second.Scope)

	n, err := m.shops.CountDocuments(ctx, bson.M{"shop_domain": "demo.myshopify.com"})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}
