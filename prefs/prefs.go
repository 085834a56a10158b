package prefs

import (
	"context"

	"github.com/pkg/errors"
	"github.com/safetrail/go-identity-server/internal/utils"
	"github.com/safetrail/go-identity-server/users"
)

// Patch carries a partial preferences update; nil fields are left alone,
// matching the store's document-merge contract.
type Patch struct {
	ShareLiveLocation *bool `json:"share_live_location,omitempty"`
	NotifyOnRideStart *bool `json:"notify_on_ride_start,omitempty"`
	NotifyOnRideEnd   *bool `json:"notify_on_ride_end,omitempty"`
}

// Service reads and merges user preference documents.
type Service struct {
	repo users.Repo
}

func NewService(repo users.Repo) (*Service, error) {
	if repo == nil {
		return nil, errors.New("[NewService] users repo is required")
	}
	return &Service{repo: repo}, nil
}

// Get returns the stored preferences, or the defaults when the user has
// never saved any.
func (s *Service) Get(ctx context.Context, userID string) (*users.Preferences, error) {
	prefs, err := s.repo.GetPreferences(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Get] GetPreferences")
	}
	if prefs == nil {
		return users.DefaultPreferences(), nil
	}
	return prefs, nil
}

// Update applies the non-nil fields of patch on top of the current
// preferences and stores the result.
func (s *Service) Update(ctx context.Context, userID string, patch Patch) (*users.Preferences, error) {
	current, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if patch.ShareLiveLocation != nil {
		current.ShareLiveLocation = utils.Value(patch.ShareLiveLocation)
	}
	if patch.NotifyOnRideStart != nil {
		current.NotifyOnRideStart = utils.Value(patch.NotifyOnRideStart)
	}
	if patch.NotifyOnRideEnd != nil {
		current.NotifyOnRideEnd = utils.Value(patch.NotifyOnRideEnd)
	}

	if err := s.repo.SetPreferences(ctx, userID, current); err != nil {
		return nil, errors.Wrap(err, "[Service.Update] SetPreferences")
	}
	return current, nil
}
