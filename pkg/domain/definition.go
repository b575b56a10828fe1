package domain

import "time"

// Definition is a complete workflow setup that can be replayed through the
// registration surface in one go. Configuration files decode into it.
type Definition struct {
	States      []StateID       `json:"states" yaml:"states" mapstructure:"states"`
	Edges       []Edge          `json:"edges" yaml:"edges" mapstructure:"edges"`
	Grants      []RoleGrant     `json:"grants" yaml:"grants" mapstructure:"grants"`
	AdminRoles  []AdminRoleDef  `json:"admin_roles" yaml:"admin_roles" mapstructure:"admin_roles"`
	Transitions []TransitionDef `json:"transitions" yaml:"transitions" mapstructure:"transitions"`
	Hooks       []HookDef       `json:"hooks" yaml:"hooks" mapstructure:"hooks"`
	Unlocks     []UnlockDef     `json:"unlocks" yaml:"unlocks" mapstructure:"unlocks"`
	Initial     StateID         `json:"initial" yaml:"initial" mapstructure:"initial"`
}

// RoleGrant gives Role to Account.
type RoleGrant struct {
	Account Address `json:"account" yaml:"account" mapstructure:"account"`
	Role    Role    `json:"role" yaml:"role" mapstructure:"role"`
}

// AdminRoleDef makes Admin the administering role of Role.
type AdminRoleDef struct {
	Role  Role `json:"role" yaml:"role" mapstructure:"role"`
	Admin Role `json:"admin" yaml:"admin" mapstructure:"admin"`
}

// TransitionDef enables a transition id from a set of states, with its
// optional required role and rule.
type TransitionDef struct {
	ID   TransitionID `json:"id" yaml:"id" mapstructure:"id"`
	From []StateID    `json:"from" yaml:"from" mapstructure:"from"`
	Role Role         `json:"role" yaml:"role" mapstructure:"role"`
	Rule *RuleDef     `json:"rule,omitempty" yaml:"rule,omitempty" mapstructure:"rule"`
}

// RuleDef is the configuration form of Rule.
type RuleDef struct {
	Kind      RuleKind  `json:"kind" yaml:"kind" mapstructure:"kind"`
	Signer    Address   `json:"signer" yaml:"signer" mapstructure:"signer"`
	Validator Address   `json:"validator" yaml:"validator" mapstructure:"validator"`
	MinDelay  time.Time `json:"min_delay" yaml:"min_delay" mapstructure:"min_delay"`
	ProofType string    `json:"proof_type" yaml:"proof_type" mapstructure:"proof_type"`
}

// Rule converts the definition into an active Rule.
func (d RuleDef) Rule() Rule {
	return Rule{
		Kind:      d.Kind,
		Signer:    d.Signer,
		Validator: d.Validator,
		MinDelay:  d.MinDelay,
		ProofType: d.ProofType,
		Active:    true,
	}
}

// HookDef registers Target on (ID, Phase).
type HookDef struct {
	ID     TransitionID `json:"id" yaml:"id" mapstructure:"id"`
	Phase  Phase        `json:"phase" yaml:"phase" mapstructure:"phase"`
	Target Address      `json:"target" yaml:"target" mapstructure:"target"`
}

// UnlockDef sets the per-actor unlock time of a timelocked id.
type UnlockDef struct {
	ID    TransitionID `json:"id" yaml:"id" mapstructure:"id"`
	Actor Address      `json:"actor" yaml:"actor" mapstructure:"actor"`
	At    time.Time    `json:"at" yaml:"at" mapstructure:"at"`
}
