// Package document runs the lifecycle shared by proposals and master
// service agreements:
//
//	draft -> sent -> signed | rejected -> archived
//
// Any state but archived may be archived. Signing and rejection happen
// through the client portal with a bearer token bound to the contact the
// document was sent to.
package document
