// Package core provides the business logic for bulk member imports.
//
// This package contains all domain logic independent of any UI or transport
// layer. It is used by the web handlers, the CLI and tests without
// modification.
//
// # Pipeline
//
// An import moves through five stages:
//
//  1. [Ingest] parses a .csv, .xlsx or .xls file into a [SourceTable]
//  2. A [ColumnMapping] assigns source columns to catalog fields; it is a
//     value updated with [ColumnMapping.WithMapping]
//  3. [Transform] turns rows into [NormalizedRecord] values and collects a
//     [ValidationError] for every missing required field
//  4. An [Orchestrator] submits records one at a time to a [Submitter]
//  5. The run ends in an [ImportReport]
//
// A mapping is complete when Full Name is mapped, or both First Name and Last
// Name are. Full Name is split on whitespace: first token, last token, and
// the middle name between them.
//
//	table, err := core.Ingest(data, "members.csv")
//	mapping := core.NewColumnMapping(table.Headers).
//	    WithMapping("Name", core.KeyFullName).
//	    WithMapping("Email", core.KeyEmail)
//	result, err := core.Transform(table, mapping)
//	report := core.NewOrchestrator(sub).Run(ctx, result.Records, core.ImportPolicy{}, nil)
//
// # Submission
//
// Records are submitted strictly in order, never concurrently, with a pause
// between submissions. A rejected record is recorded in the report and the
// run continues. A run that cannot start (no submitter, failed [Pinger]
// preflight) produces a report where every record counts as failed.
// [Orchestrator.Stream] exposes the outcomes as a single-use iterator.
//
// Runs are not cancellable once started. ImportPolicy flags are recorded in
// the report but no duplicate lookup is performed.
//
// # Service
//
// [Service] wraps the pipeline for the server: it runs imports in the
// background (bounded by an [ImportLimiter]), broadcasts progress via
// [Service.SubscribeProgress], stores reports in an optional [Store] and
// manages saved mapping presets.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - FILE001-FILE007: File errors (size, format, headers, workbook)
//   - MAP001-MAP004: Mapping errors (incomplete, unknown column or field)
//   - VAL001: Validation errors
//   - SUB001-SUB004: Submission errors from the member service
//   - IMP001-IMP004: Import run errors (busy, expired, history disabled)
package core
