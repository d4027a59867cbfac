package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"minerva/pkg/errors"
)

// Fingerprint computes a stable 128-bit hash over the canonical form of a
// decoded JSON value. Two payloads that differ only in key order or in
// insignificant numeric precision produce the same fingerprint. The schema
// version salts the hash so a schema bump invalidates stored fingerprints.
func Fingerprint(v interface{}, schemaVersion string) string {
	var b strings.Builder
	b.WriteString(schemaVersion)
	b.WriteByte('|')
	writeCanonical(&b, v)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

// FingerprintRaw decodes raw JSON and fingerprints it. Numbers are decoded
// as json.Number to avoid float64 round-tripping before normalization.
func FingerprintRaw(raw json.RawMessage, schemaVersion string) (string, error) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return "", errors.Wrap(err, "decode payload for fingerprint")
	}

	return Fingerprint(v, schemaVersion), nil
}

// writeCanonical renders a value in canonical form: object keys sorted
// lexicographically, numbers normalized to at most 8 fractional digits,
// times as ISO-8601 UTC, and non-finite numbers as null.
func writeCanonical(b *strings.Builder, v interface{}) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		b.WriteString(strconv.FormatBool(val))
	case string:
		data, _ := json.Marshal(val)
		b.Write(data)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			b.WriteString("null")
			return
		}
		writeNumber(b, f)
	case float64:
		writeNumber(b, val)
	case int:
		b.WriteString(strconv.Itoa(val))
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
	case time.Time:
		b.WriteByte('"')
		b.WriteString(val.UTC().Format(time.RFC3339))
		b.WriteByte('"')
	case []interface{}:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			data, _ := json.Marshal(k)
			b.Write(data)
			b.WriteByte(':')
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	default:
		// Fall back to encoding/json for anything exotic
		data, err := json.Marshal(val)
		if err != nil {
			b.WriteString("null")
			return
		}
		b.Write(data)
	}
}

func writeNumber(b *strings.Builder, f float64) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		b.WriteString("null")
		return
	}

	// Round to 8 fractional digits, then render with trailing zeros trimmed
	rounded := math.Round(f*1e8) / 1e8
	b.WriteString(strconv.FormatFloat(rounded, 'f', -1, 64))
}
