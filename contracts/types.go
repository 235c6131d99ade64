// Package contracts defines the core types and interfaces for the governor.
package contracts

// TaskID uniquely identifies a task definition.
type TaskID string

// ChunkID identifies one checkpointable unit of a chunked task.
type ChunkID string

// DomainTag names the subsystem a task belongs to (e.g., "transcription").
type DomainTag string

// Units is a count of abstract consumption units (tokens, compute credits)
// drawn from the shared rolling-window budget.
type Units int64
