package epochmap

// Set is a concurrent, growable, unordered collection of unique keys,
// implemented as a thin wrapper over Map[K, struct{}] with the value
// side of the API hidden.
type Set[K comparable] struct {
	m *Map[K, struct{}]
}

// NewSet constructs a Set ready for concurrent use.
func NewSet[K comparable](opts ...Option[K, struct{}]) *Set[K] {
	return &Set[K]{m: NewMap[K, struct{}](opts...)}
}

// Contains reports whether k is a member.
func (s *Set[K]) Contains(k K) bool {
	return s.m.Contains(k)
}

// Insert adds k, returning true if it was already a member.
func (s *Set[K]) Insert(k K) bool {
	_, existed := s.m.Insert(k, struct{}{})
	return existed
}

// Remove deletes k, reporting whether it was a member.
func (s *Set[K]) Remove(k K) bool {
	_, existed := s.m.Remove(k)
	return existed
}

// Range calls f for every member, stopping early if f returns false.
func (s *Set[K]) Range(f func(K) bool) {
	s.m.Range(func(k K, _ struct{}) bool { return f(k) })
}

// Size returns the approximate cardinality; concurrent with in-flight
// writes, this count is not linearizable.
func (s *Set[K]) Size() int64 {
	return s.m.Size()
}

// Clear removes every member.
func (s *Set[K]) Clear() {
	s.m.Clear()
}

// Entries returns a slice of the members observed by one Range walk;
// like Range, it is not a whole-set snapshot.
func (s *Set[K]) Entries() []K {
	var out []K
	s.Range(func(k K) bool {
		out = append(out, k)
		return true
	})
	return out
}
