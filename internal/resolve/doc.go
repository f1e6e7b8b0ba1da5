// Package resolve turns a raw record stream into linked objects in one
// forward pass.
//
// A Pass owns two maps for its lifetime:
//   - the reference map, kind -> id -> *ir.Entity, filled as entity records
//     arrive
//   - the arena, kind -> id -> *Resolved, appended to as link records resolve
//
// Every role a link names is looked up in one of them, as declared in the
// RoleTable: roles targeting an entity kind use the reference map, self
// roles (reply_to) use the arena. Lookups only see what was inserted
// earlier in the pass. There is no lookahead and no cycle support, so
// producers MUST emit referenced records before the records that reference
// them.
//
// Resolution of one link is all-or-nothing. A single dangling role turns
// the whole record into a missing-reference error; the failed record never
// enters the arena, so records that reply to it fail the same way. The pass
// itself never aborts.
//
// Nothing is shared between passes, and a pass is not safe for concurrent
// use. To use more cores, resolve independent sources in parallel (see
// package pipeline).
package resolve
