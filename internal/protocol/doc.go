// Package protocol groups the cross-context wire contract.
//
// Ownership boundary:
// - frame: fixed binary header primitives
// - tlv: payload field primitives
// - schema: required fields per message type
// - wire: behavior relay messages in JSON envelope and framed form
package protocol
