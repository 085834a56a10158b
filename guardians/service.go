package guardians

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	apperrors "github.com/safetrail/go-identity-server/internal/errors"
	"github.com/safetrail/go-identity-server/notify"
	"github.com/safetrail/go-identity-server/users"
)

const maxGuardians = 5

// Service manages a user's emergency contacts and fans alerts out to them.
type Service struct {
	repo     users.Repo
	notifier notify.Notifier
	log      zerolog.Logger
}

func NewService(repo users.Repo, notifier notify.Notifier, log zerolog.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("[NewService] users repo is required")
	}
	if notifier == nil {
		return nil, errors.New("[NewService] notifier is required")
	}
	return &Service{repo: repo, notifier: notifier, log: log}, nil
}

// Add registers a guardian contact for the user.
func (s *Service) Add(ctx context.Context, userID string, guardian users.Guardian) error {
	validation := apperrors.NewValidationError()
	if strings.TrimSpace(guardian.Name) == "" {
		validation.Add("name", "is required")
	}
	guardian.Email = users.NormalizeEmail(guardian.Email)
	if !users.ValidEmail(guardian.Email) {
		validation.Add("email", "must be a valid email address")
	}
	if validation.HasErrors() {
		return validation
	}

	existing, err := s.repo.GetGuardians(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "[Service.Add] GetGuardians")
	}
	if len(existing) >= maxGuardians {
		return errors.Wrapf(apperrors.ErrConflict, "[Service.Add] at most %d guardians", maxGuardians)
	}
	for _, g := range existing {
		if g.Email == guardian.Email {
			return errors.Wrap(apperrors.ErrConflict, "[Service.Add] guardian already registered")
		}
	}

	if err := s.repo.SetGuardians(ctx, userID, append(existing, guardian)); err != nil {
		return errors.Wrap(err, "[Service.Add] SetGuardians")
	}
	return nil
}

func (s *Service) List(ctx context.Context, userID string) ([]users.Guardian, error) {
	guardians, err := s.repo.GetGuardians(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.List] GetGuardians")
	}
	return guardians, nil
}

// Remove drops the guardian with the given email.
func (s *Service) Remove(ctx context.Context, userID, email string) error {
	email = users.NormalizeEmail(email)

	existing, err := s.repo.GetGuardians(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "[Service.Remove] GetGuardians")
	}

	remaining := make([]users.Guardian, 0, len(existing))
	for _, g := range existing {
		if g.Email != email {
			remaining = append(remaining, g)
		}
	}
	if len(remaining) == len(existing) {
		return errors.Wrap(apperrors.ErrNotFound, "[Service.Remove] no guardian with that email")
	}

	if err := s.repo.SetGuardians(ctx, userID, remaining); err != nil {
		return errors.Wrap(err, "[Service.Remove] SetGuardians")
	}
	return nil
}

// TriggerAlert fans an alert out to every guardian concurrently and
// returns how many were dispatched. Individual delivery failures are
// logged and do not stop the rest of the fan-out.
func (s *Service) TriggerAlert(ctx context.Context, userID string) (int, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "[Service.TriggerAlert] GetByID")
	}
	contacts, err := s.repo.GetGuardians(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "[Service.TriggerAlert] GetGuardians")
	}
	if len(contacts) == 0 {
		return 0, errors.Wrap(apperrors.ErrNotFound, "[Service.TriggerAlert] no guardians registered")
	}

	senderName := user.FullName()
	var wg sync.WaitGroup
	for _, contact := range contacts {
		wg.Add(1)
		go func(contact users.Guardian) {
			defer wg.Done()
			if err := s.notifier.SendAlert(ctx, contact, senderName); err != nil {
				s.log.Warn().Err(err).
					Str("user_id", userID).
					Str("guardian", contact.Email).
					Msg("guardian alert delivery failed")
			}
		}(contact)
	}
	wg.Wait()
	return len(contacts), nil
}
