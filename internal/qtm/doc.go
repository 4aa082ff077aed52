// Package qtm drives the QTM real-time protocol over one connection.
//
// Ownership boundary:
// - transport pump between the byte stream and decoded messages
// - command/reply serialization and reply deadlines
// - frame streaming lifecycle
//
// The package does not dial, reconnect, or supervise. The owner dials,
// hands the connection to NewChannel, and closes it when the session is
// no longer usable.
package qtm
