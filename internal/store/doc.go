// Package store provides access to the instrument reference data in PostgreSQL.
//
// The instruments table is the collector's universe: one row per listed
// equity, retired via is_active rather than deleted so historical bars
// always join back to a known instrument.
package store
