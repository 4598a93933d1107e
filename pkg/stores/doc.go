// Package stores provides persistence for deployment records. Each build
// that reaches synthesis is recorded with its outputs so deploys can be
// audited and compared across invocations. The SQLite implementation uses
// embedded migrations and WAL mode.
package stores
