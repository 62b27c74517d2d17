package checksum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateValidateRoundTrip(t *testing.T) {
	bodies := [][]byte{
		[]byte("start|0|hello.txt|"),
		[]byte("data|0|"),
		[]byte(""),
		[]byte("x"),
		{0xff, 0x00, 0xab, 0x12, 0x34},
	}

	for _, body := range bodies {
		ck := Generate(body)
		assert.Len(t, ck, 4, "checksum field should be 4 hex characters")

		frame := append(append([]byte{}, body...), ck...)
		assert.True(t, Validate(frame), "frame with freshly generated checksum must validate")
	}
}

func TestValidateRejectsCorruption(t *testing.T) {
	body := []byte("data|100|payload|")
	ck := Generate(body)
	frame := append(append([]byte{}, body...), ck...)

	corrupted := append([]byte{}, frame...)
	corrupted[5] ^= 0xff

	assert.False(t, Validate(corrupted))
}

func TestValidateRejectsTruncatedFrame(t *testing.T) {
	assert.False(t, Validate([]byte("ab")))
	assert.False(t, Validate(nil))
}

func TestGenerateOddLengthBody(t *testing.T) {
	// Odd-length body exercises the zero-padding branch of the one's
	// complement sum.
	body := []byte("end|15|")
	ck := Generate(body)
	frame := append(append([]byte{}, body...), ck...)
	assert.True(t, Validate(frame))
}
