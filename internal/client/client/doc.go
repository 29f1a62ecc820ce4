// Package client bootstraps the local persistence of the cloudchat CLI: it
// opens the SQLite database, applies the embedded goose migrations and wires
// the repositories on top of it.
//
// See Also
//
//   - DB helpers:   InitDatabase, RunMigrations
//   - Repositories: NewRepositories
package client
