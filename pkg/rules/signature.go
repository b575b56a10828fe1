package rules

import (
	"errors"
	"fmt"

	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

// SignatureSize is the minimum proof length for signature rules: R || S || V.
const SignatureSize = 65

const signedMessagePrefix = "\x19Ethereum Signed Message:\n32"

var errShortSignature = errors.New("signature shorter than 65 bytes")

// Keccak256 hashes the concatenation of data.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// MessageDigest is the canonical digest an approver signs to authorize actor:
// keccak256(prefix || keccak256(actor)).
func MessageDigest(actor domain.Address) []byte {
	return Keccak256([]byte(signedMessagePrefix), Keccak256(actor[:]))
}

// PubkeyToAddress derives the account address of a public key.
func PubkeyToAddress(pub *secp256k1.PublicKey) domain.Address {
	var a domain.Address
	uncompressed := pub.SerializeUncompressed()
	copy(a[:], Keccak256(uncompressed[1:])[12:])
	return a
}

// RecoverSigner recovers the address that produced sig over digest.
// sig is R || S || V with V in {0, 1, 27, 28}; trailing bytes are ignored.
func RecoverSigner(digest, sig []byte) (domain.Address, error) {
	if len(sig) < SignatureSize {
		return domain.ZeroAddress, errShortSignature
	}

	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return domain.ZeroAddress, fmt.Errorf("invalid recovery id %d", sig[64])
	}

	compact := make([]byte, SignatureSize)
	compact[0] = 27 + v
	copy(compact[1:], sig[:64])

	pub, _, err := ecdsa.RecoverCompact(compact, digest)
	if err != nil {
		return domain.ZeroAddress, fmt.Errorf("recover signer: %w", err)
	}
	return PubkeyToAddress(pub), nil
}

// SignActor produces the R || S || V proof that authorizes actor under key.
func SignActor(key *secp256k1.PrivateKey, actor domain.Address) []byte {
	compact := ecdsa.SignCompact(key, MessageDigest(actor), false)

	sig := make([]byte, SignatureSize)
	copy(sig, compact[1:])
	sig[64] = compact[0]
	return sig
}
