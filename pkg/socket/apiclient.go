package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"nakula/internal/ratelimit"
	"nakula/pkg/core"
	"nakula/pkg/rest"
	"nakula/pkg/signer"
)

// Security selects how a request is authenticated.
type Security int

const (
	SecurityNone Security = iota
	SecurityAPIKey
	SecuritySigned
)

// Request is one WebSocket API call.
type Request struct {
	ID       RequestID
	Method   string
	Params   core.Params
	Security Security
}

type envelope struct {
	ID     RequestID    `json:"id"`
	Method string       `json:"method"`
	Params *core.Params `json:"params,omitempty"`
}

type reply struct {
	Status int             `json:"status"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// APIClient sends envelopes over a Connection and correlates replies by id.
// Connection methods (Connect, Disconnect, Close, OnMessage) are promoted.
type APIClient struct {
	*Connection

	apiKey  string
	signer  signer.Signer
	limiter *ratelimit.Limiter
	now     func() time.Time

	mu      sync.Mutex
	pending map[string]chan string
}

// NewAPIClient creates an unopened APIClient. creds may be nil for a client
// that only makes unauthenticated calls.
func NewAPIClient(config Config, creds *core.Credentials, opts ...Option) (*APIClient, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	options := buildOptions(opts)

	creds = creds.Clone()
	s := options.Signer
	if s == nil {
		var err error
		if s, err = signer.FromCredentials(creds); err != nil {
			return nil, err
		}
	}

	c := &APIClient{
		Connection: newConnection(config, options.Logger),
		signer:     s,
		limiter:    ratelimit.New(config.RequestsPerSecond, config.Burst),
		now:        time.Now,
		pending:    make(map[string]chan string),
	}
	if creds.HasAPIKey() {
		c.apiKey = creds.APIKey
	}
	c.OnMessage(c.resolveReply)
	return c, nil
}

// Send sends an unauthenticated envelope and returns the id used. A NoID or
// blank id is replaced by a generated UUID.
func (c *APIClient) Send(ctx context.Context, method string, params core.Params, id RequestID) (RequestID, error) {
	return c.send(ctx, method, cleanParams(params), id)
}

// SendWithAPIKey injects apiKey into params before sending.
func (c *APIClient) SendWithAPIKey(ctx context.Context, method string, params core.Params, id RequestID) (RequestID, error) {
	if c.apiKey == "" {
		return NoID, core.NewValidationError("APIKey", "request requires an API key")
	}
	p := cleanParams(params.Clone().Set("apiKey", c.apiKey))
	return c.send(ctx, method, p, id)
}

// SendSigned injects apiKey and timestamp, cleans the result like Send, signs
// its sorted non-empty parameters and injects signature before sending. The
// timestamp therefore travels as a string, exactly as it was signed.
func (c *APIClient) SendSigned(ctx context.Context, method string, params core.Params, id RequestID) (RequestID, error) {
	if c.apiKey == "" {
		return NoID, core.NewValidationError("APIKey", "signed request requires an API key")
	}
	if c.signer == nil {
		return NoID, core.NewValidationError("Signer", "signed request requires a signer")
	}

	p := cleanParams(params.Clone().
		Set("apiKey", c.apiKey).
		Set("timestamp", c.now().UnixMilli()))

	sig, err := c.signer.Sign(p.Sorted().Encode())
	if err != nil {
		return NoID, fmt.Errorf("sign %s: %w", method, err)
	}
	return c.send(ctx, method, p.Set("signature", sig), id)
}

// Call sends req and waits for the reply carrying the same id. A 2xx reply's
// result is decoded into out like a REST body; other statuses become a
// ClientError or ServerError. The reply is still delivered to listeners.
func (c *APIClient) Call(ctx context.Context, req Request, out any) error {
	id := req.ID.resolve()
	key := id.matchKey()
	ch := make(chan string, 1)

	c.mu.Lock()
	if _, dup := c.pending[key]; dup {
		c.mu.Unlock()
		return core.NewValidationError("id", "request id "+id.String()+" is already awaiting a reply")
	}
	c.pending[key] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
	}()

	var err error
	switch req.Security {
	case SecurityAPIKey:
		_, err = c.SendWithAPIKey(ctx, req.Method, req.Params, id)
	case SecuritySigned:
		_, err = c.SendSigned(ctx, req.Method, req.Params, id)
	default:
		_, err = c.Send(ctx, req.Method, req.Params, id)
	}
	if err != nil {
		return err
	}

	select {
	case text := <-ch:
		return classifyReply(text, out)
	case <-ctx.Done():
		return &core.TransportError{Op: "call " + req.Method, Err: ctx.Err()}
	case <-c.Done():
		return core.ErrConnectionClosed
	}
}

func (c *APIClient) send(ctx context.Context, method string, params core.Params, id RequestID) (RequestID, error) {
	if method == "" {
		return NoID, core.NewValidationError("Method", "method is required")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		c.logger.Debug().Err(err).
			Str("method", method).
			Int64("denied", c.limiter.Metrics().DeniedRequests).
			Msg("rate limiter wait aborted")
		return NoID, &core.TransportError{Op: "send " + method, Err: err}
	}

	id = id.resolve()
	env := envelope{ID: id, Method: method}
	if params != nil {
		env.Params = &params
	}

	data, err := sonic.Marshal(env)
	if err != nil {
		return NoID, fmt.Errorf("marshal envelope %s: %w", method, err)
	}
	if err := c.Connection.Send(string(data)); err != nil {
		return NoID, err
	}

	c.logger.Debug().Str("id", id.String()).Str("method", method).Msg("sent websocket request")
	return id, nil
}

// LimiterStats reports the client-side limiter counters. They stay zero when
// no rate is configured.
func (c *APIClient) LimiterStats() rest.LimiterStats {
	return c.limiter.Metrics()
}

func (c *APIClient) resolveReply(text string) {
	node, err := sonic.GetFromString(text, "id")
	if err != nil {
		return
	}
	raw, err := node.Raw()
	if err != nil {
		return
	}
	// Compare decoded ids: "caf\u00e9" and "café" name the same request.
	var id RequestID
	if err := id.UnmarshalJSON([]byte(raw)); err != nil || id.IsNone() {
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[id.matchKey()]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- text:
	default:
	}
}

func classifyReply(text string, out any) error {
	var r reply
	if err := sonic.UnmarshalString(text, &r); err != nil {
		return core.NewDecodeError(0, text, err)
	}
	status := r.Status
	if status == 0 {
		status = 200
		if len(r.Error) > 0 {
			status = 400
		}
	}
	if status >= 200 && status < 300 {
		return rest.Classify(status, r.Result, out)
	}
	return rest.Classify(status, r.Error, out)
}

// cleanParams drops nil values, keeps strings and lists as they are and
// renders any other value in its string form. Empty strings are kept.
func cleanParams(params core.Params) core.Params {
	if params == nil {
		return nil
	}
	out := make(core.Params, 0, len(params))
	for _, kv := range params {
		switch v := kv.Value.(type) {
		case string:
			out = append(out, kv)
		default:
			if core.IsNil(v) {
				continue
			}
			if core.IsList(v) {
				out = append(out, kv)
				continue
			}
			out = append(out, core.Param{Key: kv.Key, Value: core.FormatValue(v)})
		}
	}
	return out
}
