package redisstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	apperrors "github.com/safetrail/go-identity-server/internal/errors"
	"github.com/safetrail/go-identity-server/store/redisstore"
	"github.com/safetrail/go-identity-server/users"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return redisstore.New(client), mr
}

func testUser() *users.User {
	return &users.User{
		ID:           "user-1",
		Email:        "ann.lee@example.com",
		PasswordHash: "bcrypt-hash",
		FirstName:    "Ann",
		LastName:     "Lee",
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func TestCreateAndLookup(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testUser()))

	byID, err := store.GetByID(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "ann.lee@example.com", byID.Email)
	// The hash is excluded from the user's own JSON shape but must
	// survive the round trip through the document.
	require.Equal(t, "bcrypt-hash", byID.PasswordHash)

	byEmail, err := store.GetByEmail(ctx, "ann.lee@example.com")
	require.NoError(t, err)
	require.Equal(t, "user-1", byEmail.ID)
}

func TestCreateDuplicateEmailConflicts(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testUser()))

	dup := testUser()
	dup.ID = "user-2"
	err := store.Create(ctx, dup)
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestGetByEmailUnknown(t *testing.T) {
	store, _ := setupStore(t)

	_, err := store.GetByEmail(context.Background(), "ghost@example.com")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

// failDocWrites fails plain SET commands while letting SETNX through, so
// the email index is claimed but the document write fails.
type failDocWrites struct{}

func (failDocWrites) DialHook(next redis.DialHook) redis.DialHook { return next }

func (failDocWrites) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "set" {
			return errors.New("write failed")
		}
		return next(ctx, cmd)
	}
}

func (failDocWrites) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestCreateReleasesEmailIndexWhenDocumentWriteFails(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	broken := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { broken.Close() })
	broken.AddHook(failDocWrites{})
	require.Error(t, redisstore.New(broken).Create(ctx, testUser()))

	// The address must not stay claimed by the failed attempt.
	clean := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { clean.Close() })
	store := redisstore.New(clean)
	require.NoError(t, store.Create(ctx, testUser()))

	user, err := store.GetByEmail(ctx, "ann.lee@example.com")
	require.NoError(t, err)
	require.Equal(t, "user-1", user.ID)
}

func TestConsumeChallengeIsSingleUse(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testUser()))

	challenge := &users.Challenge{Code: "123456", ExpiresAt: time.Now().Add(5 * time.Minute).UTC()}
	require.NoError(t, store.SetChallenge(ctx, "user-1", challenge))

	got, err := store.GetChallenge(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "123456", got.Code)

	consumed, err := store.ConsumeChallenge(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, consumed)
	require.Equal(t, "123456", consumed.Code)

	// Consumption removed the challenge; a second attempt finds nothing.
	consumed, err = store.ConsumeChallenge(ctx, "user-1")
	require.NoError(t, err)
	require.Nil(t, consumed)

	got, err = store.GetChallenge(ctx, "user-1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestChallengeUnknownUser(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	err := store.SetChallenge(ctx, "ghost", &users.Challenge{Code: "123456"})
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = store.ConsumeChallenge(ctx, "ghost")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestConsumeLinkStateIsSingleUse(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testUser()))
	require.NoError(t, store.SetLinkState(ctx, "user-1", "state-abc"))

	userID, err := store.ConsumeLinkState(ctx, "state-abc")
	require.NoError(t, err)
	require.Equal(t, "user-1", userID)

	_, err = store.ConsumeLinkState(ctx, "state-abc")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
