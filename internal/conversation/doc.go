// Package conversation holds the chat domain types and the in-memory
// conversation cache.
//
// # Types
//
// Agent, Conversation, and Message mirror the directory services' JSON
// shapes. Role is a closed enum (user, assistant, system).
//
// # Store
//
// The Store is an arena keyed by opaque thread keys:
//
//   - real thread ids, assigned by the completion service
//   - provisional local keys (see NewLocalKey), used before a thread has
//     been acknowledged
//
// One exchange writes to a given key at a time, so the only operation that
// needs atomicity with respect to concurrent readers is Promote, which
// renames a provisional key to its real id in a single locked mutation.
package conversation
