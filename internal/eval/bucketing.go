package eval

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"

	"github.com/flagstream-io/feature-flag-platform/internal/model"
)

// longScale is the largest value representable in 15 hex digits; dividing by
// it maps the truncated hash onto [0, 1).
const longScale = float64(0xFFFFFFFFFFFFFFF)

// bucketUser computes the deterministic rollout bucket for a user. Seeded
// experiment rollouts hash "seed.value"; everything else hashes
// "key.salt.value". A user value that is neither a string nor an integer
// buckets to 0.
func bucketUser(seed *int64, user *model.User, key, bucketBy, salt string) float64 {
	idHash, ok := bucketableStringValue(user.Attribute(bucketBy))
	if !ok {
		return 0
	}
	if secondary, ok := bucketableStringValue(user.Secondary); ok {
		idHash += "." + secondary
	}

	var prefix string
	if seed != nil {
		prefix = strconv.FormatInt(*seed, 10)
	} else {
		prefix = key + "." + salt
	}

	hash := sha1.Sum([]byte(prefix + "." + idHash))
	hexHash := hex.EncodeToString(hash[:])[:15]
	intVal, err := strconv.ParseInt(hexHash, 16, 64)
	if err != nil {
		return 0
	}
	return float64(intVal) / longScale
}

func bucketableStringValue(v any) (string, bool) {
	switch value := v.(type) {
	case string:
		return value, true
	case int:
		return strconv.Itoa(value), true
	case int64:
		return strconv.FormatInt(value, 10), true
	case float64:
		if value == float64(int64(value)) {
			return strconv.FormatInt(int64(value), 10), true
		}
	}
	return "", false
}
