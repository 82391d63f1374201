// Package sse decodes incremental text-event streams as produced by the
// chat completion service: "data:"-framed events separated by blank lines,
// terminated by a [DONE] sentinel payload.
package sse
