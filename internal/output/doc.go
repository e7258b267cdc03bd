// Package output writes collected bars to CSV datasets and builds run summaries.
//
// Finalize produces one dataset per instrument plus a combined dataset named
// by the run timestamp. Files carry a UTF-8 BOM so spreadsheet tools detect
// the encoding. Finalizing the same run result twice yields identical bytes.
package output
