// Package model defines shared data types used across the collector.
//
// Conventions:
//   - Prices, volumes, amounts: int64 as reported by the provider (KRW, shares, millions of KRW)
//   - Rates: float64 percentages
//   - Trading dates: time.Time normalized to midnight UTC (calendar dates, not instants)
//   - IDs: string stock codes, uuid.UUID for run IDs
package model
