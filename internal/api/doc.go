// Package api provides the Kiwoom REST API client for market data requests.
//
// REST endpoints:
//   - Production: https://api.kiwoom.com
//   - Mock: https://mockapi.kiwoom.com
//
// Every data request passes through a shared Pacer that enforces the
// provider's minimum spacing between calls. Requests are sequential;
// the provider enforces strict per-credential rate limits.
package api
