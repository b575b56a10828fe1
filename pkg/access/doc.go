/*
Package access implements role-based authorization for transitions.

Every role has exactly one admin role (the zero DefaultAdminRole unless
changed with SetAdminRole); only holders of the admin role may grant or
revoke it. Transitions may require a role; a transition without a
configured role is executable by anyone (fail-open).
*/
package access
