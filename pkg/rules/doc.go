// Package rules holds the per-transition guards evaluated before a commit.
//
// Each transition id carries at most one rule. Signature rules recover a
// secp256k1 signer from an R || S || V proof; timelock rules compare the
// clock with an unlock time; oracle, zk and custom rules ask an external
// reference through a ports.Invoker and accept only a JSON true.
package rules
