//go:build !epochmap_embedded_hash

package opt

// EmbeddedHash is false by default. No code in this module reads it:
// direct entries store only the key and value in either build, and the
// mixed hash is recomputed from the key when needed (bucket lookup,
// migration copy).
const EmbeddedHash = false
