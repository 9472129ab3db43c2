package epgsql

import (
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMD5Digest(t *testing.T) {
	t.Parallel()

	salt := []byte{0x01, 0x02, 0x03, 0x04}

	inner := md5.Sum([]byte("secret" + "postgres")) //nolint:gosec
	outer := md5.Sum(append([]byte(hex.EncodeToString(inner[:])), salt...)) //nolint:gosec
	expected := "md5" + hex.EncodeToString(outer[:])

	assert.Equal(t, expected, md5Digest("postgres", "secret", salt))
}

func TestMD5DigestSaltSensitive(t *testing.T) {
	t.Parallel()

	first := md5Digest("postgres", "secret", []byte{0x01, 0x02, 0x03, 0x04})
	second := md5Digest("postgres", "secret", []byte{0x04, 0x03, 0x02, 0x01})

	assert.NotEqual(t, first, second)
	assert.Len(t, first, 35)
	assert.Equal(t, "md5", first[:3])
}
