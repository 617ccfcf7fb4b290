// Package api contains the HTTP handlers for the orchestrator's REST
// surface: job submission and inspection, live queue statistics,
// performance summaries, and auto-scaling state.
package api
