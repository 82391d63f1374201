// Package api implements the HTTP clients for the three backend services
// the engine depends on:
//
//   - the chat completion service (POST /chat, streaming event response)
//   - the conversation directory (threads and stored messages)
//   - the agent directory (persona CRUD)
//
// All three live behind one base URL. Failures follow a fixed taxonomy:
// transport problems surface as wrapped errors from net/http, and non-2xx
// statuses surface as *HTTPError carrying the parsed detail field.
package api
