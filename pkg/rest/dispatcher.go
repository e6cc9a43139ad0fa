// Package rest implements the signed-request dispatcher shared by all REST
// endpoint wrappers.
package rest

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"nakula/internal/ratelimit"
	"nakula/internal/transport"
	"nakula/pkg/core"
	"nakula/pkg/signer"
)

// APIKeyHeader carries the API key on every request when one is configured.
const APIKeyHeader = "X-MBX-APIKEY"

// Call describes one REST request. Query keeps its order on the wire.
type Call struct {
	Method string
	Path   string
	Query  core.Params
	Body   any
}

// Dispatcher builds, signs and sends REST calls and classifies their responses.
// It is safe for concurrent use; credentials and signer never change after New.
type Dispatcher struct {
	config  *core.Config
	apiKey  string
	signer  signer.Signer
	http    *transport.Client
	limiter *ratelimit.Limiter
	logger  zerolog.Logger
}

// Option is a functional option for configuring the Dispatcher.
type Option func(*Options)

// Options holds configuration options for the Dispatcher.
type Options struct {
	Signer signer.Signer
	Logger zerolog.Logger
}

// WithSigner overrides the signer derived from the config credentials.
func WithSigner(s signer.Signer) Option {
	return func(o *Options) {
		o.Signer = s
	}
}

// WithLogger returns an option that sets the logger for the dispatcher.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// New creates a Dispatcher. Without WithSigner the signer is derived from
// config.Credentials; malformed key material fails here.
func New(config *core.Config, opts ...Option) (*Dispatcher, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	options := &Options{
		Logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(options)
	}

	creds := config.Credentials.Clone()
	s := options.Signer
	if s == nil {
		var err error
		if s, err = signer.FromCredentials(creds); err != nil {
			return nil, err
		}
	}

	var apiKey string
	if creds.HasAPIKey() {
		apiKey = creds.APIKey
	}

	cfg := *config
	cfg.Credentials = creds

	return &Dispatcher{
		config:  &cfg,
		apiKey:  apiKey,
		signer:  s,
		http:    transport.NewClient(config.BaseURL, config.Timeout, options.Logger),
		limiter: ratelimit.New(config.RequestsPerSecond, config.Burst),
		logger:  options.Logger,
	}, nil
}

// LimiterStats counts the requests that went through a client-side limiter.
type LimiterStats = ratelimit.MetricsSnapshot

// LimiterStats reports the client-side limiter counters. They stay zero when
// no rate is configured.
func (d *Dispatcher) LimiterStats() LimiterStats {
	return d.limiter.Metrics()
}

// Close releases the HTTP client.
func (d *Dispatcher) Close() error {
	return d.http.Close()
}

// HasAPIKey reports whether the dispatcher can make keyed calls.
func (d *Dispatcher) HasAPIKey() bool {
	return d.apiKey != ""
}

// CanSign reports whether the dispatcher can make signed calls.
func (d *Dispatcher) CanSign() bool {
	return d.apiKey != "" && d.signer != nil
}

// SendPublic sends call without a signature and decodes the result into out.
// out may be *string or *[]byte for the raw body, nil to discard it, or any
// value sonic can decode into.
func (d *Dispatcher) SendPublic(ctx context.Context, call Call, out any) error {
	req, err := d.build(call, call.Query.Encode())
	if err != nil {
		return err
	}
	return d.send(ctx, req, out)
}

// SendSigned signs the encoded query and appends the signature as the last
// parameter. It fails before any I/O when no API key or signer is configured.
func (d *Dispatcher) SendSigned(ctx context.Context, call Call, out any) error {
	if d.apiKey == "" {
		return core.NewValidationError("APIKey", "signed request requires an API key")
	}
	if d.signer == nil {
		return core.NewValidationError("Signer", "signed request requires a signer")
	}

	query := call.Query.Encode()
	sig, err := d.signer.Sign(query)
	if err != nil {
		return fmt.Errorf("sign %s %s: %w", call.Method, call.Path, err)
	}
	query = appendSignature(query, sig)

	req, err := d.build(call, query)
	if err != nil {
		return err
	}
	return d.send(ctx, req, out)
}

// Public sends an unsigned call and decodes the response as T.
func Public[T any](ctx context.Context, d *Dispatcher, call Call) (T, error) {
	var out T
	err := d.SendPublic(ctx, call, &out)
	return out, err
}

// Signed sends a signed call and decodes the response as T.
func Signed[T any](ctx context.Context, d *Dispatcher, call Call) (T, error) {
	var out T
	err := d.SendSigned(ctx, call, &out)
	return out, err
}

func appendSignature(query, sig string) string {
	if query == "" {
		return "signature=" + sig
	}
	return query + "&signature=" + sig
}

func (d *Dispatcher) build(call Call, rawQuery string) (*transport.Request, error) {
	req := &transport.Request{
		Method:   call.Method,
		Path:     call.Path,
		RawQuery: rawQuery,
		Headers:  make(map[string]string),
	}
	if d.apiKey != "" {
		req.Headers[APIKeyHeader] = d.apiKey
	}
	if call.Body != nil {
		body, err := sonic.Marshal(call.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal body %s %s: %w", call.Method, call.Path, err)
		}
		req.Body = body
	}
	return req, nil
}

func (d *Dispatcher) send(ctx context.Context, req *transport.Request, out any) error {
	op := req.Method + " " + req.Path

	if err := d.limiter.Wait(ctx); err != nil {
		d.logger.Debug().Err(err).
			Str("path", req.Path).
			Int64("denied", d.limiter.Metrics().DeniedRequests).
			Msg("rate limiter wait aborted")
		return &core.TransportError{Op: op, Err: err}
	}

	resp, err := d.http.Do(ctx, req)
	if err != nil {
		return &core.TransportError{Op: op, Err: err}
	}

	if err := classifyResponse(resp, out); err != nil {
		d.logger.Debug().Err(err).
			Str("method", req.Method).
			Str("path", req.Path).
			Int("status", resp.StatusCode).
			Str("used_weight", resp.Headers[usedWeightHeader]).
			Msg("request failed")
		return err
	}
	return nil
}
