// Package claim implements the claim transaction manager.
//
// Every operation that creates or removes a claim runs inside one storage
// transaction that re-reads the gift rows it is about to write against.
// Availability is computed by the ledger package from those rows, never
// from a snapshot taken before the transaction began. Notifications are
// sent only after a successful commit and can never fail a claim.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package claim
