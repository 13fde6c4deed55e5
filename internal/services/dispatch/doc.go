// Package dispatchsvc is the transport-independent dispatch service shared by
// the gRPC and HTTP servers.
//
// It owns the keyed dispatch engine for Message values, stamps published
// messages with sortable IDs, maps engine results to sentinel errors, and runs
// one buffered writer per subscription so a slow client can never stall the
// dispatcher: when a subscriber's buffer is full the message is dropped for
// that subscriber and counted.
//
// Keys listed in the journal configuration are bound to the delivery journal
// at startup; their messages are read back through Journal rather than
// Subscribe.
package dispatchsvc
