package config

// ProviderConfig describes the third-party ride provider this service
// links accounts against via the OAuth2 authorization-code flow.
type ProviderConfig interface {
	GetProviderClientID() string
	GetProviderClientSecret() string
	GetProviderAuthURL() string
	GetProviderTokenURL() string
	GetProviderProfileURL() string
	GetProviderRedirectURL() string
}

type Provider struct{}

var _ ProviderConfig = Provider{}

func (Provider) GetProviderClientID() string {
	return GetEnv("PROVIDER_CLIENT_ID", "")
}

func (Provider) GetProviderClientSecret() string {
	return GetEnv("PROVIDER_CLIENT_SECRET", "")
}

func (Provider) GetProviderAuthURL() string {
	return GetEnv("PROVIDER_AUTH_URL", "https://sandbox-login.uber.com/oauth/v2/authorize")
}

func (Provider) GetProviderTokenURL() string {
	return GetEnv("PROVIDER_TOKEN_URL", "https://sandbox-login.uber.com/oauth/v2/token")
}

func (Provider) GetProviderProfileURL() string {
	return GetEnv("PROVIDER_PROFILE_URL", "https://sandbox-api.uber.com/v1.2/me")
}

// GetProviderRedirectURL defaults to the callback route on this service.
func (p Provider) GetProviderRedirectURL() string {
	return GetEnv("PROVIDER_REDIRECT_URL", EnvVars{}.GetBaseURL()+"/api/v1/rides/provider/callback")
}
