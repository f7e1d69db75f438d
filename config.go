package epochmap

import "log/slog"

// config collects the tunables overridable at construction time. Zero
// value is never used directly; NewMap seeds one with the package
// defaults (constants.go) and applies opts on top.
type config[K comparable, V any] struct {
	initialCapacity int
	threshold       int
	spinBound       int
	loadFactor      float64
	logger          *slog.Logger
	hash            func(K) uint64
	avalanching     bool
	forceDirect     bool
	forceIndirect   bool
	privatePool     bool
}

func defaultConfig[K comparable, V any]() config[K, V] {
	return config[K, V]{
		initialCapacity: defaultTableLen,
		threshold:       defaultBucketThreshold,
		spinBound:       defaultSpinBound,
		loadFactor:      defaultLoadFactor,
	}
}

// Option configures a Map or Set at construction time.
type Option[K comparable, V any] func(*config[K, V])

// WithCapacity sets the initial bucket-array length to n, rounded up to
// a power of two. With the default load factor the first migration
// starts once the population exceeds about 0.75*n entries.
func WithCapacity[K comparable, V any](n int) Option[K, V] {
	return func(c *config[K, V]) {
		if n > 0 {
			c.initialCapacity = n
		}
	}
}

// WithMigrationThreshold overrides the per-bucket entry-list length that
// triggers a migration check on insert.
func WithMigrationThreshold[K comparable, V any](n int) Option[K, V] {
	return func(c *config[K, V]) {
		if n > 0 {
			c.threshold = n
		}
	}
}

// WithLoadFactor records f as the configured average-occupancy
// threshold. The table's migration check compares against
// defaultLoadFactor (constants.go); the value set here is not consulted.
func WithLoadFactor[K comparable, V any](f float64) Option[K, V] {
	return func(c *config[K, V]) {
		if f > 0 {
			c.loadFactor = f
		}
	}
}

// WithSpinBound overrides the number of spin iterations attempted on a
// Busy bucket before falling back to a short sleep.
func WithSpinBound[K comparable, V any](n int) Option[K, V] {
	return func(c *config[K, V]) {
		if n > 0 {
			c.spinBound = n
		}
	}
}

// WithKeyHasher installs a custom hash function for K, overriding the
// built-in default (hash.go's defaultHasher). Implies non-avalanching
// unless WithAvalanchingHash is also given, so the fixed post-mix
// bijection is applied by default to any caller-supplied hash.
func WithKeyHasher[K comparable, V any](hash func(K) uint64) Option[K, V] {
	return func(c *config[K, V]) {
		c.hash = hash
	}
}

// WithAvalanchingHash declares that the installed hash function already
// avalanches (spreads input differences across all output bits), so the
// fixed post-mix bijection is skipped.
func WithAvalanchingHash[K comparable, V any]() Option[K, V] {
	return func(c *config[K, V]) {
		c.avalanching = true
	}
}

// WithLogger installs a structured logger the table controller uses to
// report migration lifecycle events. Nil (the default) disables logging.
func WithLogger[K comparable, V any](logger *slog.Logger) Option[K, V] {
	return func(c *config[K, V]) {
		c.logger = logger
	}
}

// WithDirectEntries forces inline (K,V) storage regardless of what
// preferDirect would otherwise choose. Useful for benchmarking the two
// representations against each other on the same key/value types.
func WithDirectEntries[K comparable, V any]() Option[K, V] {
	return func(c *config[K, V]) {
		c.forceDirect, c.forceIndirect = true, false
	}
}

// WithIndirectEntries forces heap-allocated, tagged-pointer storage
// regardless of what preferDirect would otherwise choose.
func WithIndirectEntries[K comparable, V any]() Option[K, V] {
	return func(c *config[K, V]) {
		c.forceIndirect, c.forceDirect = true, false
	}
}

// WithPrivatePool gives this Map its own reclaimer (epoch counter and
// worker-slot registry) instead of sharing the package's process-wide
// one. Worker slots are never released: every Handle a Map creates
// (through GetHandle, or when its internal handle cache needs a new
// one) adds a slot to the reclaimer that Map uses, and each Map keeps
// its own handle cache. With this option those slots, and the Map's
// epoch traffic, stay out of the shared registry.
func WithPrivatePool[K comparable, V any]() Option[K, V] {
	return func(c *config[K, V]) {
		c.privatePool = true
	}
}
