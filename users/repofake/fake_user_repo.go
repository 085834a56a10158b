package repofake

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	apperrors "github.com/safetrail/go-identity-server/internal/errors"
	"github.com/safetrail/go-identity-server/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

// FakeUserRepo is an in-memory users.Repo. It backs the test fixtures and
// the STORE=memory development mode.
type FakeUserRepo struct {
	records    map[string]*record
	emailIndex map[string]string // normalized email -> user ID
	stateIndex map[string]string // link state -> user ID
	lock       sync.RWMutex
}

type record struct {
	user        users.User
	challenge   *users.Challenge
	linkState   string
	tokens      *users.TokenSet
	guardians   []users.Guardian
	preferences *users.Preferences
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		records:    make(map[string]*record),
		emailIndex: make(map[string]string),
		stateIndex: make(map[string]string),
	}
}

func (r *FakeUserRepo) Create(_ context.Context, user *users.User) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.emailIndex[user.Email]; ok {
		return errors.Wrap(apperrors.ErrConflict, "[FakeUserRepo.Create] email already registered")
	}
	u := *user
	r.records[user.ID] = &record{user: u}
	r.emailIndex[user.Email] = user.ID
	return nil
}

func (r *FakeUserRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, errors.Wrap(apperrors.ErrNotFound, "[FakeUserRepo.GetByID] no such user")
	}
	u := rec.user
	return &u, nil
}

func (r *FakeUserRepo) GetByEmail(_ context.Context, email string) (*users.User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	id, ok := r.emailIndex[email]
	if !ok {
		return nil, errors.Wrap(apperrors.ErrNotFound, "[FakeUserRepo.GetByEmail] no such user")
	}
	u := r.records[id].user
	return &u, nil
}

func (r *FakeUserRepo) SetChallenge(_ context.Context, userID string, challenge *users.Challenge) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	rec, ok := r.records[userID]
	if !ok {
		return errors.Wrap(apperrors.ErrNotFound, "[FakeUserRepo.SetChallenge] no such user")
	}
	c := *challenge
	rec.challenge = &c
	return nil
}

func (r *FakeUserRepo) GetChallenge(_ context.Context, userID string) (*users.Challenge, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	rec, ok := r.records[userID]
	if !ok {
		return nil, errors.Wrap(apperrors.ErrNotFound, "[FakeUserRepo.GetChallenge] no such user")
	}
	if rec.challenge == nil {
		return nil, nil
	}
	c := *rec.challenge
	return &c, nil
}

func (r *FakeUserRepo) ConsumeChallenge(_ context.Context, userID string) (*users.Challenge, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	rec, ok := r.records[userID]
	if !ok {
		return nil, errors.Wrap(apperrors.ErrNotFound, "[FakeUserRepo.ConsumeChallenge] no such user")
	}
	if rec.challenge == nil {
		return nil, nil
	}
	c := *rec.challenge
	rec.challenge = nil
	return &c, nil
}

func (r *FakeUserRepo) SetLinkState(_ context.Context, userID, state string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	rec, ok := r.records[userID]
	if !ok {
		return errors.Wrap(apperrors.ErrNotFound, "[FakeUserRepo.SetLinkState] no such user")
	}
	if rec.linkState != "" {
		delete(r.stateIndex, rec.linkState)
	}
	rec.linkState = state
	r.stateIndex[state] = userID
	return nil
}

func (r *FakeUserRepo) ConsumeLinkState(_ context.Context, state string) (string, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	userID, ok := r.stateIndex[state]
	if !ok {
		return "", errors.Wrap(apperrors.ErrNotFound, "[FakeUserRepo.ConsumeLinkState] unknown state")
	}
	delete(r.stateIndex, state)
	r.records[userID].linkState = ""
	return userID, nil
}

func (r *FakeUserRepo) SetProviderTokens(_ context.Context, userID string, tokens *users.TokenSet) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	rec, ok := r.records[userID]
	if !ok {
		return errors.Wrap(apperrors.ErrNotFound, "[FakeUserRepo.SetProviderTokens] no such user")
	}
	t := *tokens
	rec.tokens = &t
	return nil
}

func (r *FakeUserRepo) GetProviderTokens(_ context.Context, userID string) (*users.TokenSet, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	rec, ok := r.records[userID]
	if !ok {
		return nil, errors.Wrap(apperrors.ErrNotFound, "[FakeUserRepo.GetProviderTokens] no such user")
	}
	if rec.tokens == nil {
		return nil, nil
	}
	t := *rec.tokens
	return &t, nil
}

func (r *FakeUserRepo) SetGuardians(_ context.Context, userID string, guardians []users.Guardian) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	rec, ok := r.records[userID]
	if !ok {
		return errors.Wrap(apperrors.ErrNotFound, "[FakeUserRepo.SetGuardians] no such user")
	}
	rec.guardians = append([]users.Guardian(nil), guardians...)
	return nil
}

func (r *FakeUserRepo) GetGuardians(_ context.Context, userID string) ([]users.Guardian, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	rec, ok := r.records[userID]
	if !ok {
		return nil, errors.Wrap(apperrors.ErrNotFound, "[FakeUserRepo.GetGuardians] no such user")
	}
	return append([]users.Guardian(nil), rec.guardians...), nil
}

func (r *FakeUserRepo) SetPreferences(_ context.Context, userID string, prefs *users.Preferences) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	rec, ok := r.records[userID]
	if !ok {
		return errors.Wrap(apperrors.ErrNotFound, "[FakeUserRepo.SetPreferences] no such user")
	}
	p := *prefs
	rec.preferences = &p
	return nil
}

func (r *FakeUserRepo) GetPreferences(_ context.Context, userID string) (*users.Preferences, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	rec, ok := r.records[userID]
	if !ok {
		return nil, errors.Wrap(apperrors.ErrNotFound, "[FakeUserRepo.GetPreferences] no such user")
	}
	if rec.preferences == nil {
		return nil, nil
	}
	p := *rec.preferences
	return &p, nil
}
