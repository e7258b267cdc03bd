// Package writer implements batch persistence for collected data.
//
// Writers:
//   - Daily bar writer (TimescaleDB)
//
// Bars are upserted keyed on (stock_code, trade_date): replaying a day's
// collection overwrites matching rows instead of duplicating them.
package writer
