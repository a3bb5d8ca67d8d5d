// Package gc implements the orphan blob reclaimer.
//
// An orphan is a blob record whose reference count is zero: no file node in
// any tenant references its content. Orphans appear when the last reference
// to a hash is dropped, or when a crash lands between a blob write and its
// metadata commit.
//
// The reclaimer is safe to run concurrently with writers. Each orphan's
// record is removed through a conditional delete (only while refcount is
// still zero), and the bytes are deleted only after the record is gone. A
// writer racing the sweep either re-increments the record first (the record
// survives and the bytes stay) or arrives after the delete, finds the blob
// absent, and writes it again.
package gc
