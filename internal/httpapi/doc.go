// Package httpapi is the thin HTTP surface over the agencyops engines.
//
// Handlers bind the request, call one engine operation and render the
// result in the {success, message, data} envelope. Errors are rendered from
// their apperr code:
//
//	VALIDATION    422
//	NOT_FOUND     404
//	PRECONDITION  409
//	TRANSIENT     503
//
// Routes under /portal are for client contacts and authenticate with a
// document access token. Routes under /api are for staff; authenticating
// them is the job of whatever sits in front of this server.
package httpapi
