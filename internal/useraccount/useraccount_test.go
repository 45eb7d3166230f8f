package useraccount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTxnbinLegacy(t *testing.T) {
	payload := make([]byte, 20)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	script, err := ComputeTxnbin(AddressLegacy, payload)
	require.NoError(t, err)
	require.Len(t, script, 25)
	assert.Equal(t, byte(opDup), script[0])
	assert.Equal(t, byte(opHash160), script[1])
	assert.Equal(t, byte(pushData20), script[2])
	assert.Equal(t, payload, script[3:23])
	assert.Equal(t, byte(opEqualVerify), script[23])
	assert.Equal(t, byte(opCheckSig), script[24])
}

func TestComputeTxnbinScript(t *testing.T) {
	payload := make([]byte, 20)
	script, err := ComputeTxnbin(AddressScript, payload)
	require.NoError(t, err)
	require.Len(t, script, 23)
	assert.Equal(t, byte(opHash160), script[0])
	assert.Equal(t, byte(opEqual), script[len(script)-1])
}

func TestComputeTxnbinSegwitV0Pubkeyhash(t *testing.T) {
	payload := make([]byte, 20)
	script, err := ComputeTxnbin(AddressSegwit, payload)
	require.NoError(t, err)
	assert.Equal(t, []byte{op0, pushData20}, script[:2])
	assert.Len(t, script, 22)
}

func TestComputeTxnbinSegwitV0Scripthash(t *testing.T) {
	payload := make([]byte, 32)
	script, err := ComputeTxnbin(AddressSegwit, payload)
	require.NoError(t, err)
	assert.Equal(t, []byte{op0, pushData32}, script[:2])
	assert.Len(t, script, 34)
}

func TestComputeTxnbinRejectsBadPayloadLength(t *testing.T) {
	_, err := ComputeTxnbin(AddressLegacy, make([]byte, 10))
	assert.ErrorIs(t, err, ErrUnsupportedPayloadLen)
}

func TestHash160IsDeterministicAndTwentyBytes(t *testing.T) {
	a := Hash160([]byte("some redeem script bytes"))
	b := Hash160([]byte("some redeem script bytes"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 20)
}
