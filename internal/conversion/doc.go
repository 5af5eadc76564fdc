// Package conversion turns a qualified lead into a client and a project,
// once per lead, reusing an existing client when the normalised email
// matches.
package conversion
