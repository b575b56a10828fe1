package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/switchyard/internal/logging"
	"github.com/aretw0/switchyard/internal/ownership"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/ports"
)

// DefaultCallTimeout bounds a single call to an external validator.
const DefaultCallTimeout = 5 * time.Second

type unlockKey struct {
	id    domain.TransitionID
	actor domain.Address
}

// Validator is the RuleValidator component. It holds at most one rule per
// transition id and evaluates it without mutating anything.
type Validator struct {
	mu      sync.RWMutex
	rules   map[domain.TransitionID]domain.Rule
	unlocks map[unlockKey]time.Time

	owner       *ownership.Owner
	invoker     ports.Invoker
	clock       func() time.Time
	callTimeout time.Duration
	logger      *slog.Logger
}

// Option configures the Validator.
type Option func(*Validator)

// WithInvoker sets the transport used for oracle, zk and custom rules.
func WithInvoker(inv ports.Invoker) Option {
	return func(v *Validator) {
		v.invoker = inv
	}
}

// WithClock overrides the time source used by timelock rules.
func WithClock(clock func() time.Time) Option {
	return func(v *Validator) {
		v.clock = clock
	}
}

// WithCallTimeout bounds external validator calls.
func WithCallTimeout(d time.Duration) Option {
	return func(v *Validator) {
		v.callTimeout = d
	}
}

// WithLogger configures a logger for the Validator.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// New creates a Validator administered by admin.
func New(admin domain.Address, opts ...Option) *Validator {
	v := &Validator{
		rules:       make(map[domain.TransitionID]domain.Rule),
		unlocks:     make(map[unlockKey]time.Time),
		owner:       ownership.New(admin),
		clock:       time.Now,
		callTimeout: DefaultCallTimeout,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// HandOff transfers the mutation capability to next, once.
func (v *Validator) HandOff(ctx context.Context, caller, next domain.Address) error {
	return v.owner.HandOff(caller, next)
}

// Owner returns the address currently allowed to mutate rules.
func (v *Validator) Owner() domain.Address {
	return v.owner.Current()
}

// SetRule installs rule for id, replacing any previous rule, and activates it.
func (v *Validator) SetRule(ctx context.Context, caller domain.Address, id domain.TransitionID, rule domain.Rule) error {
	if err := v.owner.Require(caller); err != nil {
		return err
	}
	if err := checkRule(rule); err != nil {
		return err
	}

	rule.Active = true
	v.mu.Lock()
	v.rules[id] = rule
	v.mu.Unlock()

	v.logger.Debug("rule set", "transition_id", id, "kind", rule.Kind)
	return nil
}

// Deactivate disables the rule for id, keeping its parameters.
func (v *Validator) Deactivate(ctx context.Context, caller domain.Address, id domain.TransitionID) error {
	if err := v.owner.Require(caller); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if r, ok := v.rules[id]; ok {
		r.Active = false
		v.rules[id] = r
	}
	return nil
}

// SetUnlockTime sets the explicit unlock time of actor for a timelocked id.
func (v *Validator) SetUnlockTime(ctx context.Context, caller domain.Address, id domain.TransitionID, actor domain.Address, at time.Time) error {
	if err := v.owner.Require(caller); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.unlocks[unlockKey{id, actor}] = at
	return nil
}

// UnlockTime returns the explicit unlock time of actor for id, if one was set.
func (v *Validator) UnlockTime(id domain.TransitionID, actor domain.Address) (time.Time, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	at, ok := v.unlocks[unlockKey{id, actor}]
	return at, ok
}

// Rule returns the rule stored for id. ok is false if none was ever set.
func (v *Validator) Rule(id domain.TransitionID) (domain.Rule, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	r, ok := v.rules[id]
	return r, ok
}

// Validate reports whether actor may take transition id with proof.
func (v *Validator) Validate(ctx context.Context, id domain.TransitionID, actor domain.Address, proof []byte) bool {
	return v.Check(ctx, id, actor, proof) == nil
}

// Check is Validate with a reason: nil when valid, otherwise an error
// wrapping domain.ErrValidationFailed.
func (v *Validator) Check(ctx context.Context, id domain.TransitionID, actor domain.Address, proof []byte) error {
	rule, ok := v.Rule(id)
	if !ok || !rule.Active {
		// Unset and inactive rules are fail-open.
		return nil
	}

	var err error
	switch rule.Kind {
	case domain.RuleSignature:
		err = v.checkSignature(rule, actor, proof)
	case domain.RuleTimelock:
		err = v.checkTimelock(rule, id, actor)
	case domain.RuleOracle, domain.RuleCustom, domain.RuleZkProof:
		err = v.checkExternal(ctx, rule, id, actor, proof)
	default:
		err = fmt.Errorf("unknown rule kind %d", rule.Kind)
	}
	if err != nil {
		return fmt.Errorf("%w: %s rule: %v", domain.ErrValidationFailed, rule.Kind, err)
	}
	return nil
}

func (v *Validator) checkSignature(rule domain.Rule, actor domain.Address, proof []byte) error {
	signer, err := RecoverSigner(MessageDigest(actor), proof)
	if err != nil {
		return err
	}
	if signer != rule.Signer {
		return fmt.Errorf("recovered %s, want %s", signer, rule.Signer)
	}
	return nil
}

// checkTimelock keeps two semantics side by side: an explicit per-actor
// unlock time wins, otherwise MinDelay is compared directly with now.
func (v *Validator) checkTimelock(rule domain.Rule, id domain.TransitionID, actor domain.Address) error {
	now := v.clock()
	if at, ok := v.UnlockTime(id, actor); ok {
		if now.Before(at) {
			return fmt.Errorf("locked until %s", at.UTC().Format(time.RFC3339))
		}
		return nil
	}
	if now.Before(rule.MinDelay) {
		return fmt.Errorf("locked until %s", rule.MinDelay.UTC().Format(time.RFC3339))
	}
	return nil
}

func (v *Validator) checkExternal(ctx context.Context, rule domain.Rule, id domain.TransitionID, actor domain.Address, proof []byte) error {
	if v.invoker == nil {
		return fmt.Errorf("%w: no invoker configured", domain.ErrInvalidReference)
	}

	payload, err := json.Marshal(ports.ValidationCall{
		Method:       ports.MethodValidate,
		Kind:         rule.Kind.String(),
		TransitionID: id,
		Actor:        actor,
		Proof:        proof,
		ProofType:    rule.ProofType,
	})
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, v.callTimeout)
	defer cancel()

	resp, err := v.invoker.Invoke(callCtx, rule.Validator, payload)
	if err != nil {
		v.logger.Debug("validator call failed", "transition_id", id, "validator", rule.Validator, "err", err)
		return fmt.Errorf("call %s: %w", rule.Validator, err)
	}
	return decodeVerdict(resp)
}

// decodeVerdict accepts only a JSON boolean true.
func decodeVerdict(resp []byte) error {
	trimmed := bytes.TrimSpace(resp)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty validator response")
	}

	var verdict bool
	if err := json.Unmarshal(trimmed, &verdict); err != nil {
		return fmt.Errorf("non-boolean validator response: %s", truncate(trimmed, 64))
	}
	if !verdict {
		return fmt.Errorf("validator rejected")
	}
	return nil
}

func checkRule(rule domain.Rule) error {
	switch rule.Kind {
	case domain.RuleSignature:
		if rule.Signer.IsZero() {
			return fmt.Errorf("%w: signature rule without signer", domain.ErrInvalidReference)
		}
	case domain.RuleOracle, domain.RuleCustom, domain.RuleZkProof:
		if rule.Validator.IsZero() {
			return fmt.Errorf("%w: %s rule without validator", domain.ErrInvalidReference, rule.Kind)
		}
	case domain.RuleTimelock:
	default:
		return fmt.Errorf("%w: unsupported rule kind %s", domain.ErrInvalidReference, rule.Kind)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
