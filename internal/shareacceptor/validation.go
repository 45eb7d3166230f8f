package shareacceptor

import (
	"encoding/hex"
	"strings"
)

// SubmitParams is the parsed mining.submit parameter list (§4.9): params[0:5]
// are mandatory, params[5] (version-mask hex) is optional.
type SubmitParams struct {
	Workername     string
	JobID          string // decimal job id, matching workbase.WorkBase.ID's string form
	Nonce2Hex      string
	NtimeHex       string
	NonceHex       string
	VersionMaskHex string // "" if not supplied
	HasVersionMask bool
}

func validHex(s string) bool {
	if len(s) == 0 || len(s)%2 != 0 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// validateShape implements §4.9 step 2: parameter shape validation.
func validateShape(p SubmitParams) error {
	if p.Workername == "" {
		return errInvalidParamsf("workername must not be empty")
	}
	if strings.Contains(p.Workername, "/") {
		return errInvalidParamsf("workername must not contain '/'")
	}
	if p.JobID == "" {
		return errInvalidParamsf("job_id must not be empty")
	}
	if len(p.NonceHex) < 8 || !validHex(p.NonceHex) {
		return errInvalidParamsf("nonce must be hex and at least 8 characters")
	}
	if !validHex(p.NtimeHex) {
		return errInvalidParamsf("ntime must be valid hex")
	}
	if !validHex(p.Nonce2Hex) {
		return errInvalidParamsf("nonce2 must be valid hex")
	}
	if p.HasVersionMask && !validHex(p.VersionMaskHex) {
		return errInvalidParamsf("version mask must be valid hex")
	}
	return nil
}

// le4 decodes a hex string into a 4-byte little-endian array, left-padding
// with zero bytes if shorter and truncating the high-order bytes if longer.
// Callers only reach this after validHex has already verified the input, so
// malformed input never reaches here in the accept pipeline.
func le4(s string) [4]byte {
	b, _ := hex.DecodeString(s)
	var out [4]byte
	copy(out[:], b)
	return out
}

// beFromLE4 interprets a 4-byte little-endian array as an unsigned integer.
func beFromLE4(le [4]byte) uint32 {
	return uint32(le[0]) | uint32(le[1])<<8 | uint32(le[2])<<16 | uint32(le[3])<<24
}

// decodeHexString decodes s, returning a nil slice (not an error) for an
// empty string so an absent nonce2 behaves as zero-length rather than
// panicking downstream.
func decodeHexString(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}
