// Package protocol owns the QTM-RT wire contract primitives.
//
// Ownership boundary:
// - packet type and event enumerations
// - message construction and inspection rules
// - server error surfacing
package protocol
