package guardians_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/safetrail/go-identity-server/guardians"
	apperrors "github.com/safetrail/go-identity-server/internal/errors"
	"github.com/safetrail/go-identity-server/notify"
	"github.com/safetrail/go-identity-server/users"
	"github.com/safetrail/go-identity-server/users/repofake"
	"github.com/stretchr/testify/require"
)

const testUserID = "user-1"

// recordingNotifier records alert recipients; failEmail simulates one
// broken contact.
type recordingNotifier struct {
	lock      sync.Mutex
	alerted   []string
	failEmail string
}

var _ notify.Notifier = (*recordingNotifier)(nil)

func (n *recordingNotifier) SendOneTimeCode(context.Context, string, string, time.Duration) error {
	return nil
}

func (n *recordingNotifier) SendAlert(_ context.Context, contact users.Guardian, _ string) error {
	n.lock.Lock()
	defer n.lock.Unlock()
	if contact.Email == n.failEmail {
		return apperrors.ErrUpstream
	}
	n.alerted = append(n.alerted, contact.Email)
	return nil
}

func setupService(t *testing.T) (*guardians.Service, *recordingNotifier) {
	t.Helper()

	repo := repofake.NewFakeUserRepo()
	require.NoError(t, repo.Create(context.Background(), &users.User{
		ID:        testUserID,
		Email:     "ann.lee@example.com",
		FirstName: "Ann",
		LastName:  "Lee",
	}))

	notifier := &recordingNotifier{}
	service, err := guardians.NewService(repo, notifier, zerolog.Nop())
	require.NoError(t, err)
	return service, notifier
}

func TestAddAndList(t *testing.T) {
	service, _ := setupService(t)
	ctx := context.Background()

	err := service.Add(ctx, testUserID, users.Guardian{Name: "Bea", Email: "Bea@Example.com", Phone: "+15550001"})
	require.NoError(t, err)

	list, err := service.List(ctx, testUserID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "bea@example.com", list[0].Email)
}

func TestAddValidation(t *testing.T) {
	service, _ := setupService(t)

	err := service.Add(context.Background(), testUserID, users.Guardian{Name: "", Email: "nope"})
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestAddDuplicateConflicts(t *testing.T) {
	service, _ := setupService(t)
	ctx := context.Background()

	g := users.Guardian{Name: "Bea", Email: "bea@example.com"}
	require.NoError(t, service.Add(ctx, testUserID, g))
	err := service.Add(ctx, testUserID, g)
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestAddCap(t *testing.T) {
	service, _ := setupService(t)
	ctx := context.Background()

	emails := []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com", "e@x.com"}
	for _, email := range emails {
		require.NoError(t, service.Add(ctx, testUserID, users.Guardian{Name: "G", Email: email}))
	}
	err := service.Add(ctx, testUserID, users.Guardian{Name: "G", Email: "f@x.com"})
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestRemove(t *testing.T) {
	service, _ := setupService(t)
	ctx := context.Background()

	require.NoError(t, service.Add(ctx, testUserID, users.Guardian{Name: "Bea", Email: "bea@example.com"}))
	require.NoError(t, service.Remove(ctx, testUserID, "BEA@example.com"))

	list, err := service.List(ctx, testUserID)
	require.NoError(t, err)
	require.Empty(t, list)

	err = service.Remove(ctx, testUserID, "bea@example.com")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestTriggerAlertFansOut(t *testing.T) {
	service, notifier := setupService(t)
	ctx := context.Background()

	require.NoError(t, service.Add(ctx, testUserID, users.Guardian{Name: "Bea", Email: "bea@x.com"}))
	require.NoError(t, service.Add(ctx, testUserID, users.Guardian{Name: "Cal", Email: "cal@x.com"}))
	require.NoError(t, service.Add(ctx, testUserID, users.Guardian{Name: "Dee", Email: "dee@x.com"}))

	// One broken contact does not stop the rest of the fan-out.
	notifier.failEmail = "cal@x.com"

	dispatched, err := service.TriggerAlert(ctx, testUserID)
	require.NoError(t, err)
	require.Equal(t, 3, dispatched)
	require.ElementsMatch(t, []string{"bea@x.com", "dee@x.com"}, notifier.alerted)
}

func TestTriggerAlertWithoutGuardians(t *testing.T) {
	service, _ := setupService(t)

	_, err := service.TriggerAlert(context.Background(), testUserID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
