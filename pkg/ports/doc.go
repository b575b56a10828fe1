/*
Package ports defines the driven ports (interfaces) for the switchyard engine.

These interfaces decouple the core logic from external implementations, allowing
the engine to work with various storage backends, call targets and lock providers.

# Key Interfaces

  - StateBackend: persists states, edges, guard-allow entries, the pointer and history.
  - Invoker: calls hook targets and external validators by reference.
  - AuditSink: receives the audit record of each committed transition.
  - PauseSwitch: the administrative pause flag.
  - DistributedLocker: serializes writers across replicas.
*/
package ports
