// Package registry is the mutable directory of regular users, their
// permissions, and their allowed-sensor scope.
//
// State lives in a mutex-guarded map with write-through persistence to
// SQLite, so admin mutations survive a restart. Every mutation is applied
// as a single atomic step: the row is persisted first and the in-memory
// map updated only on success, so a storage failure never leaves the two
// views disagreeing.
//
// The registry implements auth.Directory, which is how freshly granted
// permissions become visible to subsequent authentications.
package registry
