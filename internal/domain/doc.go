// Package domain contains the core business entities and lifecycle rules of
// the orchestrator: the analysis job state machine, scaling policy types,
// and performance metric value objects. It is independent of any specific
// infrastructure or delivery mechanism.
package domain
