/*
Package session serializes writers of a workflow instance.

A Manager keeps one reference-counted mutex per instance key and, when a
distributed locker is configured, also holds the matching cross-process lock
while the writer runs.
*/
package session
