package events

import (
	"encoding/hex"
	"math/big"
	"strconv"
)

// FormatAmount renders a base-unit amount, treating nil as zero.
func FormatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// FormatID renders a 32-byte identifier as 0x-prefixed hex.
func FormatID(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}

// FormatTime renders a unix timestamp.
func FormatTime(ts int64) string {
	return strconv.FormatInt(ts, 10)
}
