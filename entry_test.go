package epochmap

import "testing"

func TestDirectEntryProbe(t *testing.T) {
	e := makeDirectEntry[int, string](5, "five", 0)
	eq := func(a, b int) bool { return a == b }
	if !e.probe(5, 0, eq) {
		t.Fatal("probe(5) should match")
	}
	if e.probe(6, 0, eq) {
		t.Fatal("probe(6) should not match")
	}
	if e.key() != 5 || e.value() != "five" {
		t.Fatalf("key/value = %v/%v", e.key(), e.value())
	}
}

func TestIndirectEntryProbeTagFilter(t *testing.T) {
	r := newReclaimer()
	p := newPool[pair[int, string]](r, false)
	h := r.getHandle()

	mh := uint64(0x1234_5678_0000_000f)
	e := makeIndirectEntry[int, string](7, "seven", mh, p)
	eq := func(a, b int) bool { return a == b }

	if !e.probe(7, mh, eq) {
		t.Fatal("probe with matching tag and key should match")
	}
	differentTag := mh ^ (1 << 48)
	if e.probe(7, differentTag, eq) {
		t.Fatal("probe with mismatched tag should short-circuit to false")
	}
	if e.probe(8, mh, eq) {
		t.Fatal("probe with matching tag but different key should not match")
	}

	e.release(h, p)
	if stats := p.Stats(); stats.Retired != 1 {
		t.Fatalf("release did not retire the pair: %+v", stats)
	}
}

func TestPreferDirectSelection(t *testing.T) {
	if !preferDirect[int, int]() {
		t.Fatal("two small scalars should prefer direct storage")
	}
	if preferDirect[int, [8]int]() {
		t.Fatal("an oversized value should prefer indirect storage")
	}
	if preferDirect[string, int]() {
		t.Fatal("a pointer-containing key should prefer indirect storage")
	}
}
