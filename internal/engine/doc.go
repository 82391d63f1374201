// Package engine drives incremental chat exchanges and the surrounding
// conversation lifecycle.
//
// # Exchange lifecycle
//
// One exchange is a single submit-to-terminal-outcome cycle:
//
//	idle -> submitting -> streaming -> completed | aborted | failed -> idle
//
// Submit inserts the user message and an empty assistant placeholder
// optimistically, issues the completion request, and applies decoded
// payloads to the store strictly in decode order. A conversation without a
// thread id starts under a provisional local key; when the service assigns
// a real id, the store entry is renamed atomically (promotion) and the
// directory is refreshed.
//
// At most one exchange is in flight per agent; a second submission for the
// same agent is dropped, not queued. Different agents' exchanges run
// concurrently and independently.
//
// # Cancellation
//
// The Controller hands out one cancellation token per exchange. Stop is
// cooperative: the payload already in hand is finished, no further network
// read is issued, and the assistant message gets a stop marker appended
// exactly once. An abort is recognized by the token's cause, not by error
// text.
//
// # Observers
//
// Frontends subscribe to a per-agent update stream. For each exchange a
// subscriber sees zero or more delta updates followed by exactly one
// terminal update.
//
// # Cascades
//
// Deleting an agent or conversation keeps the caches consistent and
// reselects the active pointers (first remaining agent in original order,
// first remaining conversation of the same agent).
package engine
