package storage

import (
	"context"
	"testing"
	"time"

	"image-compressor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func newMockStorage(mt *mtest.T) *MongoStorage {
	return NewMongoStorageFromDatabase(mt.DB, time.Second)
}

func successWithUpsert() bson.D {
	return mtest.CreateSuccessResponse(
		bson.E{Key: "n", Value: 1},
		bson.E{Key: "nModified", Value: 0},
		bson.E{Key: "upserted", Value: bson.A{
			bson.D{{Key: "index", Value: 0}, {Key: "_id", Value: "65f000000000000000000001"}},
		}},
	)
}

func TestAPIKeyStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("found", func(mt *mtest.T) {
		s := newMockStorage(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "image_compressor.api_keys", mtest.FirstBatch, bson.D{
			{Key: "user_id", Value: int64(42)},
			{Key: "api_key", Value: "custom-key"},
		}))

		key, ok, err := s.GetAPIKey(ctx, 42)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "custom-key", key)
	})

	mt.Run("missing", func(mt *mtest.T) {
		s := newMockStorage(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "image_compressor.api_keys", mtest.FirstBatch))

		key, ok, err := s.GetAPIKey(ctx, 42)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, key)
	})

	mt.Run("lookup error", func(mt *mtest.T) {
		s := newMockStorage(mt)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "boom"}))

		_, ok, err := s.GetAPIKey(ctx, 42)
		assert.Error(t, err)
		assert.False(t, ok)
	})

	mt.Run("save", func(mt *mtest.T) {
		s := newMockStorage(mt)
		mt.AddMockResponses(successWithUpsert())
		assert.NoError(t, s.SaveAPIKey(ctx, 42, "custom-key"))
	})

	mt.Run("delete", func(mt *mtest.T) {
		s := newMockStorage(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))
		deleted, err := s.DeleteAPIKey(ctx, 42)
		require.NoError(t, err)
		assert.True(t, deleted)
	})

	mt.Run("delete missing", func(mt *mtest.T) {
		s := newMockStorage(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))
		deleted, err := s.DeleteAPIKey(ctx, 42)
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

func TestUsageStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("daily missing is zero", func(mt *mtest.T) {
		s := newMockStorage(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "image_compressor.usage_stats", mtest.FirstBatch))

		rec, err := s.GetDaily(ctx, 7, "2026-03-01")
		require.NoError(t, err)
		assert.Equal(t, models.UsageRecord{UserID: 7, Date: "2026-03-01"}, rec)
	})

	mt.Run("daily found", func(mt *mtest.T) {
		s := newMockStorage(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "image_compressor.usage_stats", mtest.FirstBatch, bson.D{
			{Key: "user_id", Value: int64(7)},
			{Key: "date", Value: "2026-03-01"},
			{Key: "files_count", Value: int64(2)},
			{Key: "bytes_saved", Value: int64(900)},
		}))

		rec, err := s.GetDaily(ctx, 7, "2026-03-01")
		require.NoError(t, err)
		assert.Equal(t, int64(2), rec.FilesCount)
		assert.Equal(t, int64(900), rec.BytesSaved)
	})

	mt.Run("lifetime", func(mt *mtest.T) {
		s := newMockStorage(mt)
		last := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "image_compressor.users", mtest.FirstBatch, bson.D{
			{Key: "user_id", Value: int64(7)},
			{Key: "total_compressions", Value: int64(5)},
			{Key: "total_size_saved", Value: int64(12345)},
			{Key: "last_active", Value: last},
		}))

		files, saved, lastActive, err := s.GetLifetime(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(5), files)
		assert.Equal(t, int64(12345), saved)
		assert.True(t, last.Equal(lastActive))
	})

	mt.Run("increments", func(mt *mtest.T) {
		s := newMockStorage(mt)
		mt.AddMockResponses(successWithUpsert(), mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))
		assert.NoError(t, s.IncrementDaily(ctx, 7, "2026-03-01", 1, 600))
		assert.NoError(t, s.IncrementLifetime(ctx, 7, 1, 600, time.Now()))
	})

	mt.Run("increment error", func(mt *mtest.T) {
		s := newMockStorage(mt)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 11000, Message: "dup"}))
		assert.Error(t, s.IncrementDaily(ctx, 7, "2026-03-01", 1, 600))
	})
}

func TestUserStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	userDoc := func(banned bool) bson.D {
		return bson.D{
			{Key: "user_id", Value: int64(9)},
			{Key: "username", Value: "alice"},
			{Key: "banned", Value: banned},
		}
	}

	mt.Run("save new user", func(mt *mtest.T) {
		s := newMockStorage(mt)
		mt.AddMockResponses(successWithUpsert())
		isNew, err := s.SaveUser(ctx, 9, "alice", "Alice")
		require.NoError(t, err)
		assert.True(t, isNew)
	})

	mt.Run("save existing user", func(mt *mtest.T) {
		s := newMockStorage(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))
		isNew, err := s.SaveUser(ctx, 9, "alice", "Alice")
		require.NoError(t, err)
		assert.False(t, isNew)
	})

	mt.Run("ban unknown user", func(mt *mtest.T) {
		s := newMockStorage(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "image_compressor.users", mtest.FirstBatch))
		assert.ErrorIs(t, s.BanUser(ctx, 9, "spam", 1), ErrUserNotFound)
	})

	mt.Run("ban twice", func(mt *mtest.T) {
		s := newMockStorage(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "image_compressor.users", mtest.FirstBatch, userDoc(true)))
		assert.ErrorIs(t, s.BanUser(ctx, 9, "spam", 1), ErrAlreadyBanned)
	})

	mt.Run("ban", func(mt *mtest.T) {
		s := newMockStorage(mt)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "image_compressor.users", mtest.FirstBatch, userDoc(false)),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
		)
		assert.NoError(t, s.BanUser(ctx, 9, "spam", 1))
	})

	mt.Run("unban not banned", func(mt *mtest.T) {
		s := newMockStorage(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "image_compressor.users", mtest.FirstBatch, userDoc(false)))
		assert.ErrorIs(t, s.UnbanUser(ctx, 9), ErrNotBanned)
	})

	mt.Run("is banned unknown user", func(mt *mtest.T) {
		s := newMockStorage(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "image_compressor.users", mtest.FirstBatch))
		banned, err := s.IsBanned(ctx, 9)
		require.NoError(t, err)
		assert.False(t, banned)
	})

	mt.Run("active ids", func(mt *mtest.T) {
		s := newMockStorage(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "image_compressor.users", mtest.FirstBatch,
			bson.D{{Key: "user_id", Value: int64(1)}},
			bson.D{{Key: "user_id", Value: int64(2)}},
		))
		ids, err := s.ListActiveUserIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, ids)
	})
}

func TestSettingsStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("defaults when missing", func(mt *mtest.T) {
		s := newMockStorage(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "image_compressor.settings", mtest.FirstBatch))
		settings, err := s.GetSettings(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, models.FormatOriginal, settings.DefaultFormat)
		assert.True(t, settings.NotificationsEnabled)
	})

	mt.Run("stored format", func(mt *mtest.T) {
		s := newMockStorage(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "image_compressor.settings", mtest.FirstBatch, bson.D{
			{Key: "user_id", Value: int64(3)},
			{Key: "default_format", Value: "webp"},
			{Key: "notifications_enabled", Value: false},
		}))
		settings, err := s.GetSettings(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, models.FormatWebP, settings.DefaultFormat)
		assert.False(t, settings.NotificationsEnabled)
	})
}
