//go:build !epochmap_cachelinesize_32 && !epochmap_cachelinesize_64 && !epochmap_cachelinesize_128 && !epochmap_cachelinesize_256

package opt

import (
	"unsafe"

	"golang.org/x/sys/cpu"
)

// CacheLineSize is used to pad bucket and epoch-announcement slots so that
// independent workers never share a cache line. Computed from the running
// architecture via golang.org/x/sys/cpu. The build constraint excludes
// this file under the epochmap_cachelinesize_{32,64,128,256} tags, and
// no other file in this package defines CacheLineSize for those tags.
const CacheLineSize = unsafe.Sizeof(cpu.CacheLinePad{})
