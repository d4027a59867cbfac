package cache

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_KeyOrderAndPrecision(t *testing.T) {
	a, err := FingerprintRaw(json.RawMessage(`{"b":1,"a":[2.000000001]}`), SchemaVersion)
	require.NoError(t, err)

	b, err := FingerprintRaw(json.RawMessage(`{"a":[2.00000000099],"b":1}`), SchemaVersion)
	require.NoError(t, err)

	assert.Equal(t, a, b, "key order and sub-1e-8 precision must not change the fingerprint")
	assert.Len(t, a, 32, "fingerprint is a truncated 128-bit hex digest")
}

func TestFingerprint_DistinguishesValues(t *testing.T) {
	a, err := FingerprintRaw(json.RawMessage(`{"price":100.5}`), SchemaVersion)
	require.NoError(t, err)

	b, err := FingerprintRaw(json.RawMessage(`{"price":100.6}`), SchemaVersion)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestFingerprint_SchemaSalt(t *testing.T) {
	raw := json.RawMessage(`{"price":100.5}`)

	a, err := FingerprintRaw(raw, "v1")
	require.NoError(t, err)

	b, err := FingerprintRaw(raw, "v2")
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "schema version salts the fingerprint")
}

func TestFingerprint_NonFiniteNumbers(t *testing.T) {
	withNaN := Fingerprint(map[string]interface{}{"v": math.NaN()}, SchemaVersion)
	withNull := Fingerprint(map[string]interface{}{"v": nil}, SchemaVersion)

	assert.Equal(t, withNull, withNaN, "non-finite numbers canonicalize to null")
}

func TestFingerprint_NestedStructures(t *testing.T) {
	a := Fingerprint(map[string]interface{}{
		"outer": map[string]interface{}{"z": 1.0, "a": []interface{}{"x", 2.0}},
	}, SchemaVersion)
	b := Fingerprint(map[string]interface{}{
		"outer": map[string]interface{}{"a": []interface{}{"x", 2.0}, "z": 1.0},
	}, SchemaVersion)

	assert.Equal(t, a, b)
}
