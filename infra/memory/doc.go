// Package memory provides the low-level primitives for safe memory
// reclamation. It includes the epoch Collector with its pin/unpin
// guards, the per-participant RetireRing, and the typed Pool that
// retired objects are recycled into.
//
// Memory itself is owned by the Go garbage collector. What this package
// gates is reuse: an object retired under a guard is handed back to its
// pool only once no pinned participant could still hold a reference
// captured before the object was unlinked.
package memory
