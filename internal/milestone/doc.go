// Package milestone runs billing milestones through
//
//	planned -> active -> complete -> invoiced
//
// with reverts from active to planned and from complete to active. invoiced
// is terminal. Milestones keep a dense zero-based order within their project,
// and invoicing a complete milestone computes GST to the cent.
package milestone
