// Package redisstore implements users.Repo on Redis. Each user is one
// JSON document under user:<id>; unique-email and link-state lookups go
// through small index keys. A sub-record update is a read-modify-write of
// the owning document; cross-document consistency is not promised and the
// core does not need it.
package redisstore

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	apperrors "github.com/safetrail/go-identity-server/internal/errors"
	"github.com/safetrail/go-identity-server/users"
)

const (
	userKeyPrefix      = "user:"
	emailKeyPrefix     = "user:email:"
	challengeKeyPrefix = "user:challenge:"
	stateKeyPrefix     = "link:state:"
)

var _ users.Repo = (*Store)(nil)

type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// document is the persisted shape of a user record with its sub-records.
// The OTP challenge lives under its own key so it can be consumed
// atomically with GETDEL.
type document struct {
	User        users.User         `json:"user"`
	LinkState   string             `json:"link_state,omitempty"`
	Tokens      *users.TokenSet    `json:"provider_tokens,omitempty"`
	Guardians   []users.Guardian   `json:"guardians,omitempty"`
	Preferences *users.Preferences `json:"preferences,omitempty"`

	// PasswordHash is held outside users.User because the json:"-" tag
	// there keeps it out of API responses.
	PasswordHash string `json:"password_hash"`
}

func userKey(id string) string      { return userKeyPrefix + id }
func emailKey(email string) string  { return emailKeyPrefix + email }
func challengeKey(id string) string { return challengeKeyPrefix + id }
func stateKey(state string) string  { return stateKeyPrefix + state }

func (s *Store) Create(ctx context.Context, user *users.User) error {
	// The email index doubles as the uniqueness guard.
	ok, err := s.rdb.SetNX(ctx, emailKey(user.Email), user.ID, 0).Result()
	if err != nil {
		return errors.Wrap(err, "[Store.Create] SetNX email index")
	}
	if !ok {
		return errors.Wrap(apperrors.ErrConflict, "[Store.Create] email already registered")
	}
	if err := s.saveDoc(ctx, &document{User: *user, PasswordHash: user.PasswordHash}); err != nil {
		// Release the claimed address so a retry is not locked out behind
		// an index entry with no document.
		if delErr := s.rdb.Del(ctx, emailKey(user.Email)).Err(); delErr != nil {
			return errors.Wrapf(err, "[Store.Create] release email index: %v", delErr)
		}
		return errors.Wrap(err, "[Store.Create]")
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*users.User, error) {
	doc, err := s.loadDoc(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "[Store.GetByID]")
	}
	return docUser(doc), nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	id, err := s.rdb.Get(ctx, emailKey(email)).Result()
	if err == redis.Nil {
		return nil, errors.Wrap(apperrors.ErrNotFound, "[Store.GetByEmail] no such email")
	} else if err != nil {
		return nil, errors.Wrap(err, "[Store.GetByEmail] Get email index")
	}
	doc, err := s.loadDoc(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "[Store.GetByEmail]")
	}
	return docUser(doc), nil
}

func (s *Store) SetChallenge(ctx context.Context, userID string, challenge *users.Challenge) error {
	if err := s.ensureUser(ctx, userID, "[Store.SetChallenge]"); err != nil {
		return err
	}
	raw, err := json.Marshal(challenge)
	if err != nil {
		return errors.Wrap(err, "[Store.SetChallenge] Marshal")
	}
	if err := s.rdb.Set(ctx, challengeKey(userID), raw, 0).Err(); err != nil {
		return errors.Wrap(err, "[Store.SetChallenge] Set")
	}
	return nil
}

func (s *Store) GetChallenge(ctx context.Context, userID string) (*users.Challenge, error) {
	raw, err := s.rdb.Get(ctx, challengeKey(userID)).Bytes()
	if err == redis.Nil {
		if err := s.ensureUser(ctx, userID, "[Store.GetChallenge]"); err != nil {
			return nil, err
		}
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "[Store.GetChallenge] Get")
	}
	return unmarshalChallenge(raw, "[Store.GetChallenge]")
}

func (s *Store) ConsumeChallenge(ctx context.Context, userID string) (*users.Challenge, error) {
	// GetDel makes consumption atomic: of N concurrent verification
	// attempts, exactly one receives the challenge.
	raw, err := s.rdb.GetDel(ctx, challengeKey(userID)).Bytes()
	if err == redis.Nil {
		if err := s.ensureUser(ctx, userID, "[Store.ConsumeChallenge]"); err != nil {
			return nil, err
		}
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "[Store.ConsumeChallenge] GetDel")
	}
	return unmarshalChallenge(raw, "[Store.ConsumeChallenge]")
}

func (s *Store) SetLinkState(ctx context.Context, userID, state string) error {
	return s.updateDoc(ctx, userID, func(doc *document) error {
		if doc.LinkState != "" {
			if err := s.rdb.Del(ctx, stateKey(doc.LinkState)).Err(); err != nil {
				return errors.Wrap(err, "Del superseded state")
			}
		}
		doc.LinkState = state
		return s.rdb.Set(ctx, stateKey(state), userID, 0).Err()
	})
}

func (s *Store) ConsumeLinkState(ctx context.Context, state string) (string, error) {
	// GetDel makes consumption atomic: a second callback with the same
	// state sees redis.Nil.
	userID, err := s.rdb.GetDel(ctx, stateKey(state)).Result()
	if err == redis.Nil {
		return "", errors.Wrap(apperrors.ErrNotFound, "[Store.ConsumeLinkState] unknown state")
	} else if err != nil {
		return "", errors.Wrap(err, "[Store.ConsumeLinkState] GetDel")
	}
	err = s.updateDoc(ctx, userID, func(doc *document) error {
		doc.LinkState = ""
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "[Store.ConsumeLinkState]")
	}
	return userID, nil
}

func (s *Store) SetProviderTokens(ctx context.Context, userID string, tokens *users.TokenSet) error {
	return s.updateDoc(ctx, userID, func(doc *document) error {
		t := *tokens
		doc.Tokens = &t
		return nil
	})
}

func (s *Store) GetProviderTokens(ctx context.Context, userID string) (*users.TokenSet, error) {
	doc, err := s.loadDoc(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[Store.GetProviderTokens]")
	}
	return doc.Tokens, nil
}

func (s *Store) SetGuardians(ctx context.Context, userID string, guardians []users.Guardian) error {
	return s.updateDoc(ctx, userID, func(doc *document) error {
		doc.Guardians = append([]users.Guardian(nil), guardians...)
		return nil
	})
}

func (s *Store) GetGuardians(ctx context.Context, userID string) ([]users.Guardian, error) {
	doc, err := s.loadDoc(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[Store.GetGuardians]")
	}
	return doc.Guardians, nil
}

func (s *Store) SetPreferences(ctx context.Context, userID string, prefs *users.Preferences) error {
	return s.updateDoc(ctx, userID, func(doc *document) error {
		p := *prefs
		doc.Preferences = &p
		return nil
	})
}

func (s *Store) GetPreferences(ctx context.Context, userID string) (*users.Preferences, error) {
	doc, err := s.loadDoc(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[Store.GetPreferences]")
	}
	return doc.Preferences, nil
}

func (s *Store) loadDoc(ctx context.Context, userID string) (*document, error) {
	raw, err := s.rdb.Get(ctx, userKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, errors.Wrap(apperrors.ErrNotFound, "no such user")
	} else if err != nil {
		return nil, errors.Wrap(err, "Get user document")
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "Unmarshal user document")
	}
	return &doc, nil
}

func (s *Store) saveDoc(ctx context.Context, doc *document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "Marshal user document")
	}
	if err := s.rdb.Set(ctx, userKey(doc.User.ID), raw, 0).Err(); err != nil {
		return errors.Wrap(err, "Set user document")
	}
	return nil
}

func (s *Store) ensureUser(ctx context.Context, userID, msg string) error {
	exists, err := s.rdb.Exists(ctx, userKey(userID)).Result()
	if err != nil {
		return errors.Wrap(err, msg+" Exists")
	}
	if exists == 0 {
		return errors.Wrap(apperrors.ErrNotFound, msg+" no such user")
	}
	return nil
}

func unmarshalChallenge(raw []byte, msg string) (*users.Challenge, error) {
	var challenge users.Challenge
	if err := json.Unmarshal(raw, &challenge); err != nil {
		return nil, errors.Wrap(err, msg+" Unmarshal")
	}
	return &challenge, nil
}

// updateDoc is the single read-modify-write path for sub-record merges.
func (s *Store) updateDoc(ctx context.Context, userID string, mutate func(*document) error) error {
	doc, err := s.loadDoc(ctx, userID)
	if err != nil {
		return err
	}
	if err := mutate(doc); err != nil {
		return err
	}
	return s.saveDoc(ctx, doc)
}

func docUser(doc *document) *users.User {
	u := doc.User
	u.PasswordHash = doc.PasswordHash
	return &u
}
