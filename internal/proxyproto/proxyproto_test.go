package proxyproto

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func v2Header(family byte, payload []byte) []byte {
	buf := make([]byte, 16+len(payload))
	copy(buf, v2Magic)
	buf[12] = 0x21 // version 2, command PROXY
	buf[13] = family
	binary.BigEndian.PutUint16(buf[14:16], uint16(len(payload)))
	copy(buf[16:], payload)
	return buf
}

func tcp4Payload(srcIP [4]byte, srcPort uint16, dstIP [4]byte, dstPort uint16) []byte {
	buf := make([]byte, 12)
	copy(buf[0:4], srcIP[:])
	copy(buf[4:8], dstIP[:])
	binary.BigEndian.PutUint16(buf[8:10], srcPort)
	binary.BigEndian.PutUint16(buf[10:12], dstPort)
	return buf
}

func TestPeekV2TCP4FullHeader(t *testing.T) {
	payload := tcp4Payload([4]byte{203, 0, 113, 10}, 40000, [4]byte{127, 0, 0, 1}, 3333)
	buf := v2Header(0x11, payload) // family=1 (INET), proto=1 (STREAM)

	r := Peek(buf)
	assert.True(t, r.Parsed)
	assert.Equal(t, "203.0.113.10", r.Address)
	assert.Equal(t, 40000, r.Port)
	assert.Equal(t, 28, r.Discard)
}

func TestPeekV2IncompletePayloadIsPending(t *testing.T) {
	full := v2Header(0x11, tcp4Payload([4]byte{1, 2, 3, 4}, 1, [4]byte{5, 6, 7, 8}, 2))
	r := Peek(full[:20]) // header + partial payload only
	assert.True(t, r.Pending)
	assert.False(t, r.Parsed)
	assert.Equal(t, 28, r.Discard)
}

func TestPeekV2MagicOnlyPartiallyBufferedIsPending(t *testing.T) {
	r := Peek(v2Magic[:6])
	assert.True(t, r.Pending)
	assert.False(t, r.Parsed)
}

func TestPeekV2UnknownFamilyNotParsedButDiscarded(t *testing.T) {
	buf := v2Header(0x00, []byte{})
	r := Peek(buf)
	assert.False(t, r.Parsed)
	assert.Equal(t, 16, r.Discard)
}

func TestPeekV1Complete(t *testing.T) {
	buf := []byte("PROXY TCP4 198.51.100.1 198.51.100.2 35000 3333\r\nrest")
	r := Peek(buf)
	assert.True(t, r.Parsed)
	assert.Equal(t, "198.51.100.1", r.Address)
	assert.Equal(t, 35000, r.Port)
	assert.Equal(t, len("PROXY TCP4 198.51.100.1 198.51.100.2 35000 3333\r\n"), r.Discard)
}

func TestPeekV1NoCRLFYetIsPending(t *testing.T) {
	r := Peek([]byte("PROXY TCP4 198.51"))
	assert.True(t, r.Pending)
	assert.False(t, r.Parsed)
	assert.Equal(t, 0, r.Discard)
}

func TestPeekV1UnknownFamilyNotParsed(t *testing.T) {
	buf := []byte("PROXY UNKNOWN\r\n")
	r := Peek(buf)
	assert.False(t, r.Parsed)
	assert.Equal(t, len(buf), r.Discard)
}

func TestPeekV1InvalidIPNotParsed(t *testing.T) {
	buf := []byte("PROXY TCP4 not-an-ip 198.51.100.2 35000 3333\r\n")
	r := Peek(buf)
	assert.False(t, r.Parsed)
	assert.Equal(t, len(buf), r.Discard)
}

func TestPeekNoHeaderPrefix(t *testing.T) {
	buf := []byte(`{"id":1,"method":"mining.subscribe","params":[]}` + "\n")
	r := Peek(buf)
	assert.False(t, r.Pending)
	assert.False(t, r.Parsed)
	assert.Equal(t, 0, r.Discard)
}
