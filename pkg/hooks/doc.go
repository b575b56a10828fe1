// Package hooks keeps the ordered callback lists that run before and after a
// committed transition.
//
// Each (transition id, phase) pair holds at most MaxHooks targets. Targets are
// reached through a ports.Invoker, one at a time, each under its own budget.
package hooks
