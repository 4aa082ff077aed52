// Package bridge republishes live QTM rigid-body tracking over HTTP.
//
// Ownership boundary:
//   - connection supervision against one QTM host (dial, greet, stream,
//     reconnect)
//   - rigid-body discovery from the 6DOF parameter set
//   - the latest-frame state served by the HTTP API
//
// The bridge holds exactly one QTM connection at a time. Everything it
// serves is derived from the most recent frame; history is the consumer's
// problem.
package bridge
