package events

import (
	"strconv"

	"github.com/holiman/uint256"
)

func formatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func formatAsset(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}
