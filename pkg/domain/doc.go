/*
Package domain contains the core domain model of the switchyard workflow engine.

It defines the identifiers (StateID, Role, Address, TransitionID), the
append-only history record, transition rules, hook phases, the audit event
and the sentinel errors shared by every component. This package is kept pure
and free of I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - StateID / Edge: the registered graph.
  - TransitionRecord: one committed transition, indexed by nonce.
  - Rule: the pluggable guard attached to a transition id.
  - TransitionEvent: the wire-stable audit record.
  - LifecycleHooks: operator diagnostics (never part of the transition outcome).
*/
package domain
