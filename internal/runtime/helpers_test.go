package runtime_test

import "github.com/decred/dcrd/dcrec/secp256k1/v4"

func secpKey(raw []byte) *secp256k1.PrivateKey {
	return secp256k1.PrivKeyFromBytes(raw)
}
