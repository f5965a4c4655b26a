// Package container implements the lock-free Stack (Treiber) and Queue
// (two-pointer with sentinel) used across the module.
//
// Every operation pins a memory.Guard for its duration, runs a load/CAS
// retry loop with bounded backoff, and retires unlinked nodes to the
// guard. Nodes are recycled through a per-container pool only after the
// collector proves no pinned goroutine can still observe them, which is
// what keeps the top/head CAS free of ABA without tagged pointers.
package container
