package vkclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/vietddude/vkclient/api"
	"github.com/vietddude/vkclient/internal/backoff"
	"github.com/vietddude/vkclient/internal/pipeline"
)

// Manager composes the execution pipeline and runs calls through it.
// Construct one per API identity and share it freely across goroutines.
type Manager struct {
	cfg Config

	rateLimit      *backoff.RateLimitToken
	tooManyGate    *backoff.Gate
	validationGate *pipeline.Gate
}

// NewManager creates a Manager. Missing Config fields get defaults.
func NewManager(cfg Config) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:            cfg,
		rateLimit:      backoff.NewRateLimitToken(cfg.Storage, cfg.DeviceID),
		tooManyGate:    cfg.gate,
		validationGate: pipeline.NewGate(),
	}
}

// methodPipeline builds the fixed chain for a method call, innermost
// link first. Outer-to-inner: internal-error retry (only with a
// budget), rate limit, too-many-requests, credentials observer,
// priority throttle, validation (unless opted out), transport.
func (m *Manager) methodPipeline(call *api.MethodCall) pipeline.Chain {
	chain := pipeline.NewMethodChain(m.cfg.Transport, m.identity())
	if !call.SkipValidation() {
		chain = pipeline.WithValidation(chain, m.validationGate, m.cfg.Resolver)
	}
	chain = pipeline.WithPriority(chain, m.cfg.Priority)
	chain = pipeline.WithCredentialsObserver(chain, m.cfg.OnInvalidCredentials)
	chain = pipeline.WithTooManyRetry(chain, m.tooManyGate, m.cfg.TooManyBackoff)
	chain = pipeline.WithRateLimit(chain, m.rateLimit, m.cfg.RateLimitBackoff)
	if call.Retries() > 0 {
		chain = pipeline.WithInternalRetry(chain, m.cfg.InternalRetryDelay)
	}
	return chain
}

// postPipeline builds the reduced chain for uploads: internal-error
// retry around validation around the multipart transport. The method-
// call-only layers (rate limit, too-many, credentials, priority) do not
// apply to raw uploads.
func (m *Manager) postPipeline(call *api.PostCall) pipeline.Chain {
	chain := pipeline.NewPostChain(m.cfg.Transport)
	chain = pipeline.WithValidation(chain, m.validationGate, m.cfg.Resolver)
	if call.Retries() > 0 {
		chain = pipeline.WithInternalRetry(chain, m.cfg.InternalRetryDelay)
	}
	return chain
}

func (m *Manager) identity() pipeline.Identity {
	return pipeline.Identity{
		Version:          m.cfg.Version,
		AccessToken:      m.cfg.AccessToken,
		Lang:             m.cfg.Lang,
		DeviceID:         m.cfg.DeviceID,
		ExternalDeviceID: m.cfg.ExternalDeviceID,
	}
}

// ExecuteRaw runs the call and returns the raw "response" payload.
func (m *Manager) ExecuteRaw(ctx context.Context, call *api.MethodCall) (json.RawMessage, error) {
	inv := &pipeline.Invocation{
		Method:  call.Method(),
		Retries: call.Retries(),
		Call:    call,
	}
	return m.methodPipeline(call).Call(ctx, inv)
}

// Execute runs the call and unmarshals the response payload into v.
// Pass nil to discard the payload.
func (m *Manager) Execute(ctx context.Context, call *api.MethodCall, v any) error {
	raw, err := m.ExecuteRaw(ctx, call)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s response: %w", call.Method(), err)
	}
	return nil
}

// ExecuteBool runs the call and interprets the int-as-bool convention:
// a response of 1 or true is success.
func (m *Manager) ExecuteBool(ctx context.Context, call *api.MethodCall) (bool, error) {
	raw, err := m.ExecuteRaw(ctx, call)
	if err != nil {
		return false, err
	}
	raw = bytes.TrimSpace(raw)
	return bytes.Equal(raw, []byte("1")) || bytes.Equal(raw, []byte("true")), nil
}

// ExecutePost runs an upload call through the reduced pipeline and
// returns the raw response payload.
func (m *Manager) ExecutePost(ctx context.Context, call *api.PostCall) (json.RawMessage, error) {
	inv := &pipeline.Invocation{
		Method:  "upload",
		Retries: call.Retries(),
		Post:    call,
	}
	return m.postPipeline(call).Call(ctx, inv)
}
