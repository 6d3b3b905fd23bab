// Package types provides the records that flow between pipeline stages.
//
// Every record except Obligation is an append-only artifact: stages write
// them to line-delimited JSON streams and never mutate them in place. JSON
// field names are snake_case and stable across releases because resume
// logic reads streams written by earlier runs.
package types
