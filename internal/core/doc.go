// Package core saves metadata-driven forms and their child rows.
//
// This package holds the domain logic behind a form session, independent of
// any UI or transport layer. It can be used by web handlers, CLI tools, or
// tests without modification.
//
// # Architecture
//
//   - Metadata: a [MetadataSource] supplies form definitions, cached per
//     form id by the service.
//   - Executor: every statement runs through an [Executor]. Statements use
//     bracket-quoted identifiers and @name parameters; concrete executors
//     live in the executor package.
//   - Service: the entry point. It opens sessions, applies edits, queues
//     child rows and saves.
//   - Orchestrator: saves a parent row, then its queued child rows one at a
//     time, then reloads the child rows from the host.
//
// # Save Sequence
//
// A save runs these steps:
//
//  1. The parent statement runs. An insert records the new id at once.
//  2. The {sourceid} placeholder in queued child statements is replaced
//     with the parent id.
//  3. Child statements run in queue order. Each waits for the previous one.
//  4. Committed child forms are reloaded and the queue is cleared.
//
// A failure stops the sequence. Committed entries stay marked; saving again
// resumes at the entry that failed. Nothing is rolled back.
//
// # Events
//
// Each session publishes [Event] values: busy toggles around every
// statement, save state transitions, child saves and deletes, and clone
// warnings. Slow subscribers miss events rather than blocking the save.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError]:
//
//   - ORC001-ORC003: Save sequence errors
//   - SES001-SES007: Session errors
//   - VAL001-VAL005: Field value errors
//   - EXE001-EXE006: Statement errors returned by the host
package core
