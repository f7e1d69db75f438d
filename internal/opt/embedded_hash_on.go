//go:build epochmap_embedded_hash

package opt

// EmbeddedHash is true under -tags=epochmap_embedded_hash. No code in
// this module reads it: direct entries store only the key and value in
// either build, and migration copy recomputes the mixed hash per entry.
const EmbeddedHash = true
