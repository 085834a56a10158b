package rides

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/safetrail/go-identity-server/internal/config"
	apperrors "github.com/safetrail/go-identity-server/internal/errors"
	"github.com/safetrail/go-identity-server/users"
	"golang.org/x/oauth2"
)

const stateLength = 32 // bytes of entropy behind each link state

// Service runs the OAuth2 authorization-code flow that links a user's
// account to the ride provider. This service is only ever the OAuth
// client; the provider is the server.
type Service struct {
	repo        users.Repo
	oauthConfig *oauth2.Config
	profileURL  string
	httpClient  *http.Client
	timeout     time.Duration
	nowTime     func() time.Time
}

type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithHTTPClient overrides the outbound client (primarily for testing).
func WithHTTPClient(client *http.Client) ServiceOption {
	return func(s *Service) {
		s.httpClient = client
	}
}

func NewService(repo users.Repo, providerCfg config.ProviderConfig, upstreamTimeout time.Duration, options ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("[NewService] users repo is required")
	}
	if providerCfg.GetProviderClientID() == "" {
		return nil, errors.New("[NewService] provider client ID is required")
	}

	service := &Service{
		repo: repo,
		oauthConfig: &oauth2.Config{
			ClientID:     providerCfg.GetProviderClientID(),
			ClientSecret: providerCfg.GetProviderClientSecret(),
			RedirectURL:  providerCfg.GetProviderRedirectURL(),
			Endpoint: oauth2.Endpoint{
				AuthURL:   providerCfg.GetProviderAuthURL(),
				TokenURL:  providerCfg.GetProviderTokenURL(),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		profileURL: providerCfg.GetProviderProfileURL(),
		httpClient: &http.Client{Timeout: upstreamTimeout},
		timeout:    upstreamTimeout,
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(service)
	}
	return service, nil
}

// BeginLink generates a single-use anti-forgery state bound to the user,
// stores it (overwriting any pending state), and returns the provider
// authorization URL. The URL carries the client ID, redirect URI, and
// state - never the client secret.
func (s *Service) BeginLink(ctx context.Context, userID string) (string, error) {
	if _, err := s.repo.GetByID(ctx, userID); err != nil {
		return "", errors.Wrap(err, "[Service.BeginLink] GetByID")
	}

	stateBytes := make([]byte, stateLength)
	if _, err := rand.Read(stateBytes); err != nil {
		return "", errors.Wrap(err, "[Service.BeginLink] rand.Read")
	}
	state := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(stateBytes)

	if err := s.repo.SetLinkState(ctx, userID, state); err != nil {
		return "", errors.Wrap(err, "[Service.BeginLink] SetLinkState")
	}
	return s.oauthConfig.AuthCodeURL(state), nil
}

// CompleteLink handles the provider callback. The state value is the only
// binding between the callback and an identity - the browser arrives here
// with no session. The state is consumed on lookup, so a replayed or
// fabricated callback fails with NotFound, and only then is the code
// exchanged for a token set.
func (s *Service) CompleteLink(ctx context.Context, code, state string) error {
	userID, err := s.repo.ConsumeLinkState(ctx, state)
	if err != nil {
		return errors.Wrap(err, "[Service.CompleteLink] ConsumeLinkState")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)

	providerToken, err := s.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return upstreamError(err, "[Service.CompleteLink] Exchange")
	}

	tokens := &users.TokenSet{
		AccessToken:  providerToken.AccessToken,
		RefreshToken: providerToken.RefreshToken,
		CapturedAt:   s.nowTime(),
	}
	if !providerToken.Expiry.IsZero() {
		tokens.ExpiresIn = int64(providerToken.Expiry.Sub(s.nowTime()).Seconds())
	}

	if err := s.repo.SetProviderTokens(ctx, userID, tokens); err != nil {
		return errors.Wrap(err, "[Service.CompleteLink] SetProviderTokens")
	}
	return nil
}

// FetchProviderProfile forwards the stored access token to the provider's
// profile endpoint and returns the response body verbatim.
func (s *Service) FetchProviderProfile(ctx context.Context, userID string) (json.RawMessage, error) {
	tokens, err := s.repo.GetProviderTokens(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.FetchProviderProfile] GetProviderTokens")
	}
	if tokens == nil {
		return nil, errors.Wrap(apperrors.ErrUnauthorized, "[Service.FetchProviderProfile] no linked provider account")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.profileURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.FetchProviderProfile] NewRequest")
	}
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, upstreamError(err, "[Service.FetchProviderProfile] Do")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, upstreamError(err, "[Service.FetchProviderProfile] ReadAll")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Wrapf(apperrors.ErrUpstream, "[Service.FetchProviderProfile] provider returned %d: %s", resp.StatusCode, body)
	}
	return json.RawMessage(body), nil
}

// upstreamError classifies a provider failure. Deadline overruns become
// UpstreamTimeout; everything else becomes Upstream with the provider's
// own detail preserved. Nothing here is retried - the human-driven
// authorization-code flow has no safe automatic retry point.
func upstreamError(err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrapf(apperrors.ErrUpstreamTimeout, "%s: %v", msg, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Wrapf(apperrors.ErrUpstreamTimeout, "%s: %v", msg, err)
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return errors.Wrapf(apperrors.ErrUpstream, "%s: provider returned %d: %s", msg, retrieveErr.Response.StatusCode, retrieveErr.Body)
	}
	return errors.Wrapf(apperrors.ErrUpstream, "%s: %v", msg, err)
}
