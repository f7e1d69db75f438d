package epochmap

// Tunable defaults. defaultTableLen, defaultBucketThreshold and
// defaultSpinBound are overridable through functional options at
// construction time; the others are fixed.
const (
	// defaultTableLen is the bucket-array length for a Map constructed
	// without a positive WithCapacity, and the length Clear resets to.
	defaultTableLen = 16

	// defaultBucketThreshold is the per-bucket entry-list length that
	// triggers a migration check on insert.
	defaultBucketThreshold = 8

	// defaultLoadFactor is the average-occupancy threshold (entries per
	// bucket) that also triggers migration, sampled cheaply from the
	// table's striped size counters rather than computed exactly.
	defaultLoadFactor = 0.75

	// defaultSpinBound is the number of spin iterations attempted on a
	// Busy bucket or a contended TicketLock before falling back to a
	// short sleep.
	defaultSpinBound = 64

	// defaultRetireLag is the number of epoch advances a retired object
	// must survive before it becomes eligible for reuse.
	defaultRetireLag = 2

	// migrationGrowthFactor is the multiplier applied to the bucket
	// count on each migration.
	migrationGrowthFactor = 2
)
