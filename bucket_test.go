package epochmap

import "testing"

func eqInt(a, b int) bool { return a == b }

func TestBucketCASPublish(t *testing.T) {
	var b bucket[int, string, directEntry[int, string]]
	b.store(newStableSnapshot[int, string, directEntry[int, string]](nil))

	snap := b.load()
	e := makeDirectEntry[int, string](1, "one", 0)
	newSnap := newStableSnapshot[int, string, directEntry[int, string]](withAppended(snap.entries, e))
	if !b.cas(snap, newSnap) {
		t.Fatal("cas on fresh snapshot should succeed")
	}
	if b.cas(snap, newSnap) {
		t.Fatal("cas against a stale snapshot should fail")
	}

	v, ok := findInList[int, string, directEntry[int, string]](b.load().entries, 1, 0, eqInt)
	if !ok || v != "one" {
		t.Fatalf("findInList = %v, %v", v, ok)
	}
}

func TestWithAppendedReplacedRemoved(t *testing.T) {
	a := []int{1, 2, 3}
	appended := withAppended(a, 4)
	if len(appended) != 4 || appended[3] != 4 {
		t.Fatalf("withAppended = %v", appended)
	}
	if len(a) != 3 {
		t.Fatal("withAppended must not mutate the original slice")
	}

	replaced := withReplacedAt(a, 1, 99)
	if replaced[1] != 99 || a[1] != 2 {
		t.Fatalf("withReplacedAt = %v, original = %v", replaced, a)
	}

	removed := withRemovedAt(a, 1)
	if len(removed) != 2 || removed[0] != 1 || removed[1] != 3 {
		t.Fatalf("withRemovedAt = %v", removed)
	}
	if len(a) != 3 {
		t.Fatal("withRemovedAt must not mutate the original slice")
	}
}

func TestIndexInList(t *testing.T) {
	entries := []directEntry[int, string]{
		makeDirectEntry[int, string](1, "a", 0),
		makeDirectEntry[int, string](2, "b", 0),
	}
	if i := indexInList[int, string, directEntry[int, string]](entries, 2, 0, eqInt); i != 1 {
		t.Fatalf("indexInList(2) = %d, want 1", i)
	}
	if i := indexInList[int, string, directEntry[int, string]](entries, 3, 0, eqInt); i != -1 {
		t.Fatalf("indexInList(3) = %d, want -1", i)
	}
}
