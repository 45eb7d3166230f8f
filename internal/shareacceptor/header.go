package shareacceptor

import (
	"github.com/stratacore/poolcore/internal/poolhash"
	"github.com/stratacore/poolcore/internal/workbase"
)

// assembleVersion applies a BIP320-style rolling version mask: bits outside
// clientMask keep the workbase's base version; bits inside clientMask take
// the miner's submitted value, provided the miner's mask is itself a subset
// of what it subscribed for.
func assembleVersion(baseVersionLE, clientMaskLE, submittedLE [4]byte, hasVersionBits bool) [4]byte {
	if !hasVersionBits {
		return baseVersionLE
	}
	var out [4]byte
	for i := 0; i < 4; i++ {
		out[i] = (baseVersionLE[i] &^ clientMaskLE[i]) | (submittedLE[i] & clientMaskLE[i])
	}
	return out
}

// buildCoinbase concatenates coinbase1 + extranonce1 + nonce2 + coinbase2,
// the standard Stratum coinbase assembly.
func buildCoinbase(wb *workbase.WorkBase, extranonce1, nonce2 []byte) []byte {
	out := make([]byte, 0, len(wb.Coinbase1)+len(extranonce1)+len(nonce2)+len(wb.Coinbase2))
	out = append(out, wb.Coinbase1...)
	out = append(out, extranonce1...)
	out = append(out, nonce2...)
	out = append(out, wb.Coinbase2...)
	return out
}

// assembleHeader builds the full share header per §4.9 step 5 and returns
// its little-endian double-SHA-256 hash along with the serialized coinbase
// (needed if the share turns out to be a candidate block).
func assembleHeader(
	wb *workbase.WorkBase,
	extranonce1, nonce2 []byte,
	ntimeLE, nonceLE [4]byte,
	clientMaskLE, submittedMaskLE [4]byte,
	hasVersionBits bool,
) (hashLE [32]byte, coinbase []byte) {
	coinbase = buildCoinbase(wb, extranonce1, nonce2)
	coinbaseHash := poolhash.DoubleSha256(coinbase)
	merkleRoot := poolhash.ComputeMerkleRoot(coinbaseHash, wb.MerkleBranches)

	version := assembleVersion(wb.VersionLE, clientMaskLE, submittedMaskLE, hasVersionBits)

	h := poolhash.Header{
		VersionLE:    version,
		PrevHashLE:   wb.PrevHashLE,
		MerkleRootLE: merkleRoot,
		NtimeLE:      ntimeLE,
		NBitsLE:      wb.NBitsLE,
		NonceLE:      nonceLE,
	}
	return h.HashLE(), coinbase
}
