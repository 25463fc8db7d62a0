// Package diagnostics accumulates monotonic counters describing connection
// health over the life of one streaming session. Counters are recorded at the
// source as events occur and never reset mid-session.
package diagnostics
