// Package postgres holds the relational storage plumbing shared by the
// domain stores: connection setup, embedded goose migrations and the WithTx
// transaction helper.
//
// Domain packages (auth, projects, tasks, notes, audit) own their SQL and
// accept a *sql.DB; anything that must be atomic runs through WithTx.
package postgres
