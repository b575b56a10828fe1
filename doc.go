/*
Package switchyard is a finite-state workflow engine with auditable, guarded
transitions.

An administrator registers a graph of states and edges once, enables
transition ids per state, and optionally attaches a required role, a rule
(signature, timelock, oracle, zk proof or custom validator) and ordered hooks
to each id. Any party may then call TransitionTo; the call is accepted only
if every check passes, and it commits atomically.

# Protocol

A transition runs these steps in order and stops at the first failure:

 1. reentrancy gate: a call made while another is running fails with ErrReentrantCall
 2. the workflow is initialized and not paused
 3. the current state is read
 4. the guard-allow entry for (current, id) exists and the target is adjacent
 5. the caller holds the role required for id, if any
 6. the rule of id validates the caller and the supplied proof, if any
 7. pre hooks run; their failures are logged and skipped
 8. pointer, nonce and history are committed together
 9. post hooks run, then the audit record is emitted

Failures in steps 1 to 6 leave nonce, current state and history untouched.

# Usage

	admin := domain.MustAddress("0x...")
	eng, err := switchyard.New(admin)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	err = eng.Apply(ctx, admin, domain.Definition{
		States: []domain.StateID{domain.NewStateID("INITIAL"), domain.NewStateID("PENDING")},
		Edges:  []domain.Edge{{From: domain.NewStateID("INITIAL"), To: domain.NewStateID("PENDING")}},
		Transitions: []domain.TransitionDef{
			{ID: 1, From: []domain.StateID{domain.NewStateID("INITIAL")}},
		},
		Initial: domain.NewStateID("INITIAL"),
	})

	ev, err := eng.TransitionTo(ctx, caller, domain.NewStateID("PENDING"), 1, nil)

Backends for Redis and SQLite live under pkg/adapters, as do the HTTP and
process invokers used to reach hooks and external validators.
*/
package switchyard
