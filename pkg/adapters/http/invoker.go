package http

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/google/uuid"
)

// Signature headers sent with every call.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderID        = "X-Webhook-ID"
)

// MaxResponseSize bounds the body read from a target.
const MaxResponseSize = 1 << 20

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrTargetStatus     = errors.New("target returned non-2xx status")
)

// Endpoint is the HTTP location of one hook target or validator.
// When Secret is set the payload is signed with HMAC-SHA256.
type Endpoint struct {
	URL    string            `mapstructure:"url" yaml:"url"`
	Secret string            `mapstructure:"secret" yaml:"secret"`
	Header map[string]string `mapstructure:"header" yaml:"header"`
}

// SignatureHeaders is the signature triple attached to a request.
type SignatureHeaders struct {
	Signature string
	Timestamp int64
	ID        string
}

// Sign computes HMAC-SHA256(secret, timestamp + "." + payload).
func Sign(secret string, payload []byte, at time.Time) SignatureHeaders {
	ts := at.Unix()
	return SignatureHeaders{
		Signature: signature(secret, ts, payload),
		Timestamp: ts,
		ID:        uuid.New().String(),
	}
}

// Verify checks a signature produced by Sign. A positive maxAge rejects stale or far-future timestamps.
func Verify(secret string, payload []byte, h SignatureHeaders, maxAge time.Duration, now time.Time) error {
	if h.Signature == "" {
		return fmt.Errorf("%w: signature is missing", ErrInvalidSignature)
	}
	if maxAge > 0 {
		age := now.Sub(time.Unix(h.Timestamp, 0))
		if age > maxAge {
			return fmt.Errorf("%w: timestamp too old: %v", ErrInvalidSignature, age)
		}
		if age < -time.Minute {
			return fmt.Errorf("%w: timestamp is in the future", ErrInvalidSignature)
		}
	}
	expected := signature(secret, h.Timestamp, payload)
	if !hmac.Equal([]byte(expected), []byte(h.Signature)) {
		return fmt.Errorf("%w: signature mismatch", ErrInvalidSignature)
	}
	return nil
}

// ReadSignatureHeaders extracts the signature triple from a request.
func ReadSignatureHeaders(h http.Header) (SignatureHeaders, error) {
	sig := SignatureHeaders{
		Signature: h.Get(HeaderSignature),
		ID:        h.Get(HeaderID),
	}
	raw := h.Get(HeaderTimestamp)
	if sig.Signature == "" || raw == "" {
		return sig, fmt.Errorf("%w: missing signature headers", ErrInvalidSignature)
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return sig, fmt.Errorf("%w: invalid timestamp format", ErrInvalidSignature)
	}
	sig.Timestamp = ts
	return sig, nil
}

func signature(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Invoker calls hook targets and validators as JSON POST requests.
// Targets are resolved through a table of addresses to endpoints.
type Invoker struct {
	mu        sync.RWMutex
	endpoints map[domain.Address]Endpoint
	client    *http.Client
	clock     func() time.Time
}

// InvokerOption configures the Invoker.
type InvokerOption func(*Invoker)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) InvokerOption {
	return func(i *Invoker) {
		if c != nil {
			i.client = c
		}
	}
}

// WithInvokerClock sets the clock used for signature timestamps.
func WithInvokerClock(clock func() time.Time) InvokerOption {
	return func(i *Invoker) {
		if clock != nil {
			i.clock = clock
		}
	}
}

// NewInvoker creates an Invoker over the given endpoints.
func NewInvoker(endpoints map[domain.Address]Endpoint, opts ...InvokerOption) *Invoker {
	i := &Invoker{
		endpoints: make(map[domain.Address]Endpoint, len(endpoints)),
		client:    &http.Client{Timeout: 10 * time.Second},
		clock:     time.Now,
	}
	for addr, ep := range endpoints {
		i.endpoints[addr] = ep
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Register binds an address to an endpoint.
func (i *Invoker) Register(target domain.Address, ep Endpoint) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.endpoints[target] = ep
}

// Resolves reports whether the target has an endpoint.
func (i *Invoker) Resolves(target domain.Address) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.endpoints[target]
	return ok
}

func (i *Invoker) Invoke(ctx context.Context, target domain.Address, payload []byte) ([]byte, error) {
	i.mu.RLock()
	ep, ok := i.endpoints[target]
	i.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no endpoint for %s", domain.ErrInvalidReference, target)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", target, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range ep.Header {
		req.Header.Set(k, v)
	}
	if ep.Secret != "" {
		sig := Sign(ep.Secret, payload, i.clock())
		req.Header.Set(HeaderSignature, sig.Signature)
		req.Header.Set(HeaderTimestamp, strconv.FormatInt(sig.Timestamp, 10))
		req.Header.Set(HeaderID, sig.ID)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call to %s failed: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", target, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s answered %d", ErrTargetStatus, target, resp.StatusCode)
	}
	return body, nil
}
