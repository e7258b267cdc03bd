// Package database provides connection pool management for PostgreSQL and TimescaleDB.
//
// The collector keeps two stores:
//   - PostgreSQL: the instrument universe (relational reference data)
//   - TimescaleDB: daily price bars (time-series data)
//
// Both are optional; with database.enabled false the collector writes CSV only.
package database
