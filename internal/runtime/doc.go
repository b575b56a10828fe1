// Package runtime implements the transition engine that composes the state
// store, access controller, rule validator and hook dispatcher.
package runtime
