package sites

import (
	"fmt"
	"strings"
)

// bv/av id cipher as published by the community writeups.
const bvTable = "fZodR9XQDSUm21yCkr6zBqiveYah8bt4xsWpHnJE7jL5VG3guMTKNPAwcF"

var bvPositions = [6]int{11, 10, 3, 8, 4, 6}

const (
	bvXor int64 = 177451812
	bvAdd int64 = 8728348608
)

// bvidToAid converts a BV-style id (including the "BV" prefix, 12 chars) to
// the numeric av id.
func bvidToAid(bvid string) (int64, error) {
	if len(bvid) != 12 || !strings.HasPrefix(bvid, "BV") {
		return 0, fmt.Errorf("malformed bvid %q", bvid)
	}
	var r, p int64 = 0, 1
	for i := 0; i < 6; i++ {
		idx := strings.IndexByte(bvTable, bvid[bvPositions[i]])
		if idx < 0 {
			return 0, fmt.Errorf("bvid %q has character outside the alphabet", bvid)
		}
		r += int64(idx) * p
		p *= 58
	}
	return (r - bvAdd) ^ bvXor, nil
}

// aidToBvid converts a numeric av id to its BV counterpart.
func aidToBvid(aid int64) string {
	v := (aid ^ bvXor) + bvAdd
	out := []byte("BV1  4 1 7  ")
	p := int64(1)
	for i := 0; i < 6; i++ {
		out[bvPositions[i]] = bvTable[(v/p)%58]
		p *= 58
	}
	return string(out)
}
