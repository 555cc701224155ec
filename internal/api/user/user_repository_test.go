package user

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/FACorreiaa/mic-data-portal/internal/types"
)

// newMongoTestRepo connects to MONGO_TEST_URI and returns a repo over a
// throwaway database with the unique email index in place.
func newMongoTestRepo(t *testing.T) *MongoUserRepo {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set; skipping MongoDB integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)
	db := client.Database("portal_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	_, err = db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("users_email_unique"),
	})
	require.NoError(t, err)

	return NewMongoUserRepo(db, discardLogger())
}

func TestMongoUserRepoIntegration(t *testing.T) {
	repo := newMongoTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Ping(ctx))

	created, err := repo.CreateUser(ctx, types.CreateUserParams{
		Name:         "Ann",
		Email:        "a@b.com",
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	byEmail, err := repo.FindByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)
	assert.Equal(t, "hash", byEmail.PasswordHash)

	_, err = repo.FindByEmail(ctx, "A@B.COM")
	assert.ErrorIs(t, err, types.ErrNotFound, "lookup is an exact match")

	_, err = repo.CreateUser(ctx, types.CreateUserParams{Name: "Dup", Email: "a@b.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, types.ErrConflict)

	require.NoError(t, repo.SetAdmin(ctx, created.ID, true))
	byID, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, byID.Admin)

	require.NoError(t, repo.DeleteUser(ctx, created.ID))
	_, err = repo.FindByID(ctx, created.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteUser(ctx, created.ID), types.ErrNotFound)

	_, err = repo.FindByID(ctx, "not-an-object-id")
	assert.ErrorIs(t, err, types.ErrNotFound)
}
