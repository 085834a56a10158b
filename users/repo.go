package users

import "context"

// Repo is the document-store boundary for user records. Each user is one
// document; the sub-record methods carry document-merge semantics - a
// setter touches only its own sub-record and leaves the rest of the
// document alone. Overwrite-on-set is the intended concurrency policy for
// challenges and link states: only the most recent value should ever be
// valid.
type Repo interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)

	// OTP challenge sub-record. GetChallenge returns (nil, nil) when no
	// challenge is pending. ConsumeChallenge removes and returns the
	// pending challenge in a single atomic step, so concurrent
	// verification attempts race for one winner; losers see (nil, nil).
	SetChallenge(ctx context.Context, userID string, challenge *Challenge) error
	GetChallenge(ctx context.Context, userID string) (*Challenge, error)
	ConsumeChallenge(ctx context.Context, userID string) (*Challenge, error)

	// Provider link state. ConsumeLinkState resolves a state value to its
	// owning user and removes it in the same step, so a state can never
	// complete two callbacks.
	SetLinkState(ctx context.Context, userID, state string) error
	ConsumeLinkState(ctx context.Context, state string) (string, error)

	// Linked-provider token sub-record. GetProviderTokens returns
	// (nil, nil) when the user has never completed a link.
	SetProviderTokens(ctx context.Context, userID string, tokens *TokenSet) error
	GetProviderTokens(ctx context.Context, userID string) (*TokenSet, error)

	SetGuardians(ctx context.Context, userID string, guardians []Guardian) error
	GetGuardians(ctx context.Context, userID string) ([]Guardian, error)

	// Preferences sub-record. GetPreferences returns (nil, nil) when the
	// user has never saved any.
	SetPreferences(ctx context.Context, userID string, prefs *Preferences) error
	GetPreferences(ctx context.Context, userID string) (*Preferences, error)
}
