package epgsql

import (
	"crypto/md5" //nolint:gosec
	"encoding/hex"
)

// md5Digest computes the response to a MD5 password challenge. The digest is
// formed as "md5" followed by the hex encoded md5 of the inner credentials
// digest concatenated with the challenge salt:
//
//	"md5" + hex(md5(hex(md5(password + username)) + salt))
//
// https://www.postgresql.org/docs/current/protocol-flow.html#PROTOCOL-FLOW-START-UP
func md5Digest(username, password string, salt []byte) string {
	inner := md5.Sum([]byte(password + username)) //nolint:gosec
	encoded := hex.EncodeToString(inner[:])

	outer := md5.Sum(append([]byte(encoded), salt...)) //nolint:gosec
	return "md5" + hex.EncodeToString(outer[:])
}
