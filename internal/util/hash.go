package util

import (
	"crypto/md5"
	"encoding/hex"
)

// MD5Hex is used as the content key of cached agenda reports; it is not a
// security boundary.
func MD5Hex(b []byte) string {
	x := md5.Sum(b)
	return hex.EncodeToString(x[:])
}
