// Package domain defines the business records shared by the agencyops core:
// leads, clients, projects, documents, milestones, invoices and payments.
//
// Records are plain structs tagged for both JSON and sqlx row mapping. Status
// fields are typed strings; optional references use Ref so that a SQL NULL, an
// empty JSON value, or a joined row delivered as an object or a one-element
// array all collapse into the same "unset or id" value before any component
// sees them.
//
// Money is carried as decimal.Decimal. Monetary rounding rules live in the
// money package, not here.
package domain
