// Package livestorage keeps an in-memory mirror of a host key-value store
// split into the sync, local and managed areas.
//
// A Storage is built per execution context with New and populated with Load.
// Reads are served from the per-area View without touching the host. Set and
// Delete apply locally first and forward the write to the host in call
// order; host failures are reported through the ErrorHandler instead of being
// returned. The managed area is read-only.
//
// Changes reported by the host, whether they come from this context or any
// other, are applied to the views as one batch and then delivered to the
// listeners registered with AddListener. A listener may be limited to one
// area, opt in to a replay during Load, and carry a When predicate compiled
// by the expr, cel or js engine.
//
// Listeners run on the goroutine delivering the change and must not call
// Load or Wait. A listener may call Close; it then returns without waiting
// for forwarded writes.
package livestorage
