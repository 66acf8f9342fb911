package vkclient

import (
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/vkclient/internal/backoff"
	"github.com/vietddude/vkclient/internal/pipeline"
	"github.com/vietddude/vkclient/storage"
	"github.com/vietddude/vkclient/transport"
)

// Collaborator contracts. See the pipeline package for semantics.
type (
	// ChallengeResolver presents interactive challenges to the user.
	ChallengeResolver = pipeline.ChallengeResolver
	// Resolution is a resolved challenge's outcome.
	Resolution = pipeline.Resolution
	// CredentialsListener observes authorization failures.
	CredentialsListener = pipeline.CredentialsListener
	// PriorityBackoff spaces calls by method class.
	PriorityBackoff = pipeline.PriorityBackoff
)

// Config holds Manager settings. The zero value works for anonymous
// calls against the default endpoint.
type Config struct {
	// BaseURL is the API endpoint. Default https://api.vk.com.
	BaseURL string `yaml:"base_url"`
	// Version is the API version sent as "v" unless a call overrides it.
	Version string `yaml:"version"`
	// AccessToken authorizes non-anonymous calls.
	AccessToken string `yaml:"access_token"`
	// Lang is the response language, omitted when empty.
	Lang string `yaml:"lang"`
	// DeviceID identifies this installation. Defaults to a random UUID;
	// set it explicitly when rate-limit state must survive restarts.
	DeviceID string `yaml:"device_id"`
	// ExternalDeviceID is an extra device identifier, omitted when empty.
	ExternalDeviceID string `yaml:"external_device_id"`
	// UserAgent overrides the HTTP User-Agent header.
	UserAgent string `yaml:"user_agent"`

	// Timeout bounds a single HTTP exchange. Default 30s.
	Timeout time.Duration `yaml:"timeout"`
	// RateLimitBackoff is the minimum window recorded on a rate-limit
	// rejection. Default 1h.
	RateLimitBackoff time.Duration `yaml:"rate_limit_backoff"`
	// TooManyBackoff is the minimum window recorded on a
	// too-many-requests rejection. Default 1s.
	TooManyBackoff time.Duration `yaml:"too_many_backoff"`
	// InternalRetryDelay spaces internal-error retries. Default 0:
	// retry immediately.
	InternalRetryDelay time.Duration `yaml:"internal_retry_delay"`

	// Transport performs the raw exchange. Default: HTTP against BaseURL.
	Transport transport.Transport `yaml:"-"`
	// Storage persists rate-limit backoff per device. Default: in-memory.
	Storage storage.TokenStorage `yaml:"-"`
	// Resolver handles interactive challenges. Nil means challenges
	// surface to the caller as errors.
	Resolver ChallengeResolver `yaml:"-"`
	// OnInvalidCredentials is called, synchronously, for every
	// authorization failure.
	OnInvalidCredentials CredentialsListener `yaml:"-"`
	// Priority spaces calls by method class. Nil means no spacing.
	Priority PriorityBackoff `yaml:"-"`

	// gate overrides the process-wide too-many-requests gate, for tests.
	gate *backoff.Gate
}

const (
	defaultBaseURL = "https://api.vk.com"
	defaultVersion = "5.131"
)

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Version == "" {
		c.Version = defaultVersion
	}
	if c.DeviceID == "" {
		c.DeviceID = uuid.NewString()
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RateLimitBackoff == 0 {
		c.RateLimitBackoff = time.Hour
	}
	if c.TooManyBackoff == 0 {
		c.TooManyBackoff = time.Second
	}
	if c.Transport == nil {
		var opts []transport.HTTPOption
		if c.UserAgent != "" {
			opts = append(opts, transport.WithUserAgent(c.UserAgent))
		}
		c.Transport = transport.NewHTTPTransport(c.BaseURL, c.Timeout, opts...)
	}
	if c.Storage == nil {
		c.Storage = storage.NewMemoryStorage()
	}
	if c.gate == nil {
		c.gate = backoff.SharedGate()
	}
	return c
}
