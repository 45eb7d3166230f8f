// Package useraccount implements the User entity's one-time payout-script
// precompute (txnbin, §3). Address text decoding (Base58Check/Bech32) is an
// external collaborator per spec §1; this package starts from an
// already-decoded pubkey-hash or witness-program payload and builds the
// scriptPubKey bytes the coinbase output assembler needs. It does not cache
// the result; session.User.Txnbin is the field that holds it. Auth backoff
// lives on session.User, not here.
package useraccount

import (
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/ripemd160"
)

// AddressType identifies the payout script shape a User's address decodes to.
type AddressType int

const (
	// AddressLegacy is a P2PKH address (payload: 20-byte pubkey hash).
	AddressLegacy AddressType = iota
	// AddressScript is a P2SH address (payload: 20-byte script hash).
	AddressScript
	// AddressSegwit is a native P2WPKH (20-byte payload) or P2WSH (32-byte
	// payload) address.
	AddressSegwit
)

var (
	// ErrUnsupportedPayloadLen is returned when the payload length doesn't
	// match any script shape this address type supports.
	ErrUnsupportedPayloadLen = errors.New("useraccount: unsupported payload length for address type")
)

// Hash160 computes RIPEMD160(SHA256(data)), the standard Bitcoin script-hash
// function, used here to derive a P2SH-wrapped segwit program's scripthash.
func Hash160(data []byte) [20]byte {
	sum := sha256.Sum256(data)
	h := ripemd160.New()
	h.Write(sum[:])

	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Bitcoin script opcodes used by the payout scripts below.
const (
	opDup         = 0x76
	opHash160     = 0xa9
	opEqualVerify = 0x88
	opCheckSig    = 0xac
	opEqual       = 0x87
	op0           = 0x00
	pushData20    = 0x14
	pushData32    = 0x20
)

// buildP2PKH assembles OP_DUP OP_HASH160 <20> OP_EQUALVERIFY OP_CHECKSIG.
func buildP2PKH(pubkeyHash [20]byte) []byte {
	out := make([]byte, 0, 25)
	out = append(out, opDup, opHash160, pushData20)
	out = append(out, pubkeyHash[:]...)
	out = append(out, opEqualVerify, opCheckSig)
	return out
}

// buildP2SH assembles OP_HASH160 <20> OP_EQUAL.
func buildP2SH(scriptHash [20]byte) []byte {
	out := make([]byte, 0, 23)
	out = append(out, opHash160, pushData20)
	out = append(out, scriptHash[:]...)
	out = append(out, opEqual)
	return out
}

// buildWitnessV0 assembles OP_0 <push(payload)> for either P2WPKH (20 bytes)
// or P2WSH (32 bytes) payloads.
func buildWitnessV0(payload []byte) []byte {
	push := byte(pushData20)
	if len(payload) == 32 {
		push = pushData32
	}
	out := make([]byte, 0, 2+len(payload))
	out = append(out, op0, push)
	out = append(out, payload...)
	return out
}

// ComputeTxnbin builds the scriptPubKey bytes (the User's "txnbin") for the
// given address type and decoded payload. Computed once per User and cached
// on the entity; never recomputed on the hot share-accounting path.
func ComputeTxnbin(addrType AddressType, payload []byte) ([]byte, error) {
	switch addrType {
	case AddressLegacy:
		if len(payload) != 20 {
			return nil, ErrUnsupportedPayloadLen
		}
		var h [20]byte
		copy(h[:], payload)
		return buildP2PKH(h), nil
	case AddressScript:
		if len(payload) != 20 {
			return nil, ErrUnsupportedPayloadLen
		}
		var h [20]byte
		copy(h[:], payload)
		return buildP2SH(h), nil
	case AddressSegwit:
		if len(payload) != 20 && len(payload) != 32 {
			return nil, ErrUnsupportedPayloadLen
		}
		return buildWitnessV0(payload), nil
	default:
		return nil, ErrUnsupportedPayloadLen
	}
}
