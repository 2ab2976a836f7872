package flow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// HashInputs and HashParams both produce a 256-bit hash, as a lowercase
// hex string, of a JSON-like map. Serialization is canonical: keys
// sorted lexicographically at every object level, no whitespace, numbers
// in their shortest round-trippable form, strings exactly as given.
// Stability across platforms and process restarts is the entire point —
// the hash is the cache key.
func HashInputs(inputs map[string]interface{}) string {
	return hashValue(inputs)
}

func HashParams(params map[string]interface{}) string {
	return hashValue(params)
}

func hashValue(v interface{}) string {
	var buf strings.Builder
	canonicalEncode(&buf, v)
	sum := sha256.Sum256([]byte(buf.String()))
	return hex.EncodeToString(sum[:])
}

// canonicalEncode writes v's canonical JSON-like encoding to buf. It
// mirrors encoding/json's value model (map[string]interface{}, []interface{},
// string, float64/int, bool, nil) since that is what callers decode
// params and resolved inputs into.
func canonicalEncode(buf *strings.Builder, v interface{}) {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		encodeJSONString(buf, val)
	case float64:
		buf.WriteString(formatNumber(val))
	case float32:
		buf.WriteString(formatNumber(float64(val)))
	case int:
		buf.WriteString(strconv.Itoa(val))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			canonicalEncode(buf, elem)
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		encodeCanonicalObject(buf, val)
	default:
		// Fallback for any other concrete type (e.g. user structs passed
		// directly): render via %v inside a JSON string so the hash is
		// still deterministic rather than panicking.
		encodeJSONString(buf, fmt.Sprintf("%v", val))
	}
}

func encodeCanonicalObject(buf *strings.Builder, obj map[string]interface{}) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodeJSONString(buf, k)
		buf.WriteByte(':')
		canonicalEncode(buf, obj[k])
	}
	buf.WriteByte('}')
}

// formatNumber renders a float64 in its shortest round-trippable decimal
// form, matching JSON's number grammar (no trailing ".0" ambiguity
// beyond what strconv already collapses).
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// encodeJSONString writes s as a double-quoted JSON string with the
// standard escapes, so canonical encoding never depends on
// encoding/json's own (library-version-dependent) escaping choices.
func encodeJSONString(buf *strings.Builder, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}
