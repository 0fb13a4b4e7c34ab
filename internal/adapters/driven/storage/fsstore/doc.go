// Package fsstore provides a filesystem-backed implementation of the record
// and index driven ports.
//
// Records live as one JSON file per entity at
// {data_root}/{entity_type}/{stable_id}.json, each wrapped in a self-describing
// envelope (source, fetch time, payload checksum). Indexes live alongside the
// records as {entity_type}/_index.json. The layout is the tool's public output
// format: downstream consumers read the files directly, so the store never
// writes anything a reader could observe half-finished.
//
// # Write Discipline
//
// Every write goes to a temporary file in the target directory, is fsynced,
// and is then renamed over the destination. A crash leaves at most an orphaned
// temporary file, which the store sweeps on open. Writers for the same stable
// ID serialise on a hashed mutex shard; when writes race, the record with the
// latest fetch time wins.
//
// # Thread Safety
//
// All operations are safe for concurrent use.
package fsstore
