package flow

import "testing"

func TestHashStableAcrossKeyReordering(t *testing.T) {
	a := map[string]interface{}{"b": 1.0, "a": 2.0}
	b := map[string]interface{}{"a": 2.0, "b": 1.0}
	if HashInputs(a) != HashInputs(b) {
		t.Fatalf("hash differs across map key order: %s != %s", HashInputs(a), HashInputs(b))
	}
}

func TestHashStableAcrossCalls(t *testing.T) {
	m := map[string]interface{}{"x": "y", "n": 3.0}
	h1 := HashParams(m)
	h2 := HashParams(m)
	if h1 != h2 {
		t.Fatalf("hash not stable across calls: %s != %s", h1, h2)
	}
}

func TestHashDistinguishesNullFromMissing(t *testing.T) {
	withNull := map[string]interface{}{"a": nil}
	empty := map[string]interface{}{}
	if HashInputs(withNull) == HashInputs(empty) {
		t.Fatal("explicit null and missing key hashed identically")
	}
}

func TestHashEmptyObject(t *testing.T) {
	h := HashInputs(map[string]interface{}{})
	if h == "" || len(h) != 64 {
		t.Fatalf("expected 64-char hex hash, got %q", h)
	}
}

func TestHashDistinguishesDifferentValues(t *testing.T) {
	a := map[string]interface{}{"k": "v1"}
	b := map[string]interface{}{"k": "v2"}
	if HashInputs(a) == HashInputs(b) {
		t.Fatal("different values hashed identically")
	}
}

func TestHashNestedMapsAndArrays(t *testing.T) {
	a := map[string]interface{}{
		"list": []interface{}{1.0, 2.0, map[string]interface{}{"z": 1.0, "y": 2.0}},
	}
	b := map[string]interface{}{
		"list": []interface{}{1.0, 2.0, map[string]interface{}{"y": 2.0, "z": 1.0}},
	}
	if HashInputs(a) != HashInputs(b) {
		t.Fatal("nested object key order affected hash")
	}
}
