// Package checkpoint persists change-feed resumption cursors.
//
// A checkpoint is the cursor the next changes request should use: the seed
// date before the first page, then each resumptionToken the server returns.
// Storing it lets a harvester stop at any point and resume without
// re-reading pages it has already consumed.
//
// Two stores are provided: RedisStore for cursors shared between processes
// and MemoryStore for tests and one-shot runs.
//
// Key format:
//
//	pure:checkpoint:<name>
//
// Example:
//
//	pure:checkpoint:experts.umn.edu:persons-sync
package checkpoint
