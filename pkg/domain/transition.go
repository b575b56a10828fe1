package domain

import (
	"fmt"
	"time"
)

// RuleKind tags the variant of a TransitionRule.
type RuleKind uint8

const (
	RuleNone RuleKind = iota
	RuleSignature
	RuleOracle
	RuleTimelock
	RuleZkProof
	RuleCustom
)

var ruleKindNames = map[RuleKind]string{
	RuleNone:      "none",
	RuleSignature: "signature",
	RuleOracle:    "oracle",
	RuleTimelock:  "timelock",
	RuleZkProof:   "zk_proof",
	RuleCustom:    "custom",
}

func (k RuleKind) String() string {
	if n, ok := ruleKindNames[k]; ok {
		return n
	}
	return "unknown"
}

// ParseRuleKind resolves the textual form used in configuration files.
func ParseRuleKind(v string) (RuleKind, bool) {
	for k, n := range ruleKindNames {
		if n == v {
			return k, true
		}
	}
	return RuleNone, false
}

func (k RuleKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *RuleKind) UnmarshalText(text []byte) error {
	parsed, ok := ParseRuleKind(string(text))
	if !ok {
		return fmt.Errorf("unknown rule kind %q", text)
	}
	*k = parsed
	return nil
}

// Rule is the guard configured for a transition id.
// Only the fields relevant to Kind are meaningful; deactivating a rule
// keeps its parameters.
type Rule struct {
	Kind RuleKind `json:"kind"`

	// Signer is the expected recovered address for RuleSignature.
	Signer Address `json:"signer,omitempty"`

	// Validator is the external reference for RuleOracle, RuleZkProof and RuleCustom.
	Validator Address `json:"validator,omitempty"`

	// MinDelay is compared directly against the current time for RuleTimelock
	// when no per-actor unlock time exists.
	MinDelay time.Time `json:"min_delay"`

	// ProofType is forwarded to the verifier for RuleZkProof.
	ProofType string `json:"proof_type,omitempty"`

	Active bool `json:"active"`
}

// SignatureRule builds an active signature rule.
func SignatureRule(signer Address) Rule {
	return Rule{Kind: RuleSignature, Signer: signer, Active: true}
}

// OracleRule builds an active oracle rule.
func OracleRule(validator Address) Rule {
	return Rule{Kind: RuleOracle, Validator: validator, Active: true}
}

// TimelockRule builds an active timelock rule.
func TimelockRule(minDelay time.Time) Rule {
	return Rule{Kind: RuleTimelock, MinDelay: minDelay, Active: true}
}

// ZkProofRule builds an active zero-knowledge verifier rule.
func ZkProofRule(verifier Address, proofType string) Rule {
	return Rule{Kind: RuleZkProof, Validator: verifier, ProofType: proofType, Active: true}
}

// CustomRule builds an active custom validator rule.
func CustomRule(validator Address) Rule {
	return Rule{Kind: RuleCustom, Validator: validator, Active: true}
}

// Phase selects when a hook runs relative to the commit.
type Phase uint8

const (
	PhasePre Phase = iota
	PhasePost
)

func (p Phase) String() string {
	if p == PhasePre {
		return "pre"
	}
	return "post"
}

// ParsePhase accepts "pre" or "post".
func ParsePhase(v string) (Phase, bool) {
	switch v {
	case "pre":
		return PhasePre, true
	case "post":
		return PhasePost, true
	}
	return PhasePre, false
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	parsed, ok := ParsePhase(string(text))
	if !ok {
		return fmt.Errorf("unknown hook phase %q", text)
	}
	*p = parsed
	return nil
}
