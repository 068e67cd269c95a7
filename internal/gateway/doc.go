// Package gateway implements the per-connection session state machine.
//
// A session starts Unauthenticated and accepts exactly one {api_key}
// message; authentication failure closes it. Once Authenticated, each
// inbound message is classified by its top-level key (sensor_data or
// admin) and run through the pipeline: rate limiter, then authorisation,
// then the validator or registry. Failures surface as single-field
// {"error": ...} responses; only authentication failure terminates the
// connection.
//
// The gateway is transport-agnostic: it consumes raw JSON frames and
// returns the frame to send back, leaving socket ownership to the api
// package. Messages on one connection are processed strictly in receipt
// order because each session is driven by a single read loop.
package gateway
