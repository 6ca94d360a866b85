package payos

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// CanonicalString joins the payload as "k1=v1&k2=v2" over
// alphabetically sorted keys. This is the exact string PayOS signs, so
// value formatting has to match the gateway: nulls become empty, and
// whole numbers carry no decimal part.
func CanonicalString(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+formatValue(data[k]))
	}
	return strings.Join(parts, "&")
}

func formatValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case bool:
		return strconv.FormatBool(value)
	case float64:
		if value == math.Trunc(value) && math.Abs(value) < 1e15 {
			return strconv.FormatInt(int64(value), 10)
		}
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	default:
		return fmt.Sprintf("%v", value)
	}
}

// Sign computes the hex HMAC-SHA256 of the canonical payload string.
func Sign(data map[string]any, checksumKey string) string {
	mac := hmac.New(sha256.New, []byte(checksumKey))
	mac.Write([]byte(CanonicalString(data)))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares in constant time.
func VerifySignature(data map[string]any, signature, checksumKey string) bool {
	if signature == "" {
		return false
	}
	expected := Sign(data, checksumKey)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
