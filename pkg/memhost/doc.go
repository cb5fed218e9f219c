// Package memhost provides an in-memory livestorage.Host.
//
// A single Host can back several livestorage.Storage handles, each one acting
// as a separate execution context. Values are deep-copied whenever they cross
// the host boundary, and every write or removal is reported synchronously to
// all subscribers, the writing context included.
//
// Subscriber handlers run while the host holds its notification lock, so a
// handler must not call Write, Remove, SetBatch or Seed on the same Host.
// Writes issued through a livestorage.View are queued and are safe.
package memhost
