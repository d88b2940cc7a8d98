// Package memory forwards conversation memories to an external store.
//
// Barnabee does not keep long-term conversational memory itself; the
// memory_log function hands entries to a separate service over HTTP.
// Failures are surfaced to the caller, which degrades them into an
// apologetic reply rather than failing the conversation. The client
// satisfies the execution engine's memory sink contract.
package memory
