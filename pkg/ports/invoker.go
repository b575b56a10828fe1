package ports

import (
	"context"

	"github.com/aretw0/switchyard/pkg/domain"
)

// Invoker performs a call against an external reference (hook target or validator).
// The payload is one of the JSON call contracts below; the response body is
// returned verbatim.
type Invoker interface {
	Invoke(ctx context.Context, target domain.Address, payload []byte) ([]byte, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, target domain.Address, payload []byte) ([]byte, error)

func (f InvokerFunc) Invoke(ctx context.Context, target domain.Address, payload []byte) ([]byte, error) {
	return f(ctx, target, payload)
}

// ValidationCall is the read-only call contract sent to oracle, custom and zk validators.
// The validator must answer with a JSON boolean.
type ValidationCall struct {
	Method       string              `json:"method"`
	Kind         string              `json:"kind"`
	TransitionID domain.TransitionID `json:"transition_id"`
	Actor        domain.Address      `json:"actor"`
	Proof        []byte              `json:"proof"`
	ProofType    string              `json:"proof_type,omitempty"`
}

// HookCall is the call contract sent to hook targets. The response is ignored.
type HookCall struct {
	Method       string              `json:"method"`
	TransitionID domain.TransitionID `json:"transition_id"`
	Phase        string              `json:"phase"`
	Actor        domain.Address      `json:"actor"`
	Data         []byte              `json:"data"`
}

const (
	MethodValidate = "validate"
	MethodHook     = "execute_hook"
)
