// Package dirstore keeps a keyed collection of storable values in a flat
// directory, one file per key.
//
// Layout:
//
//	<dir>/
//	  alice        <- value for key "alice"
//	  bob          <- value for key "bob"
//	  .lock        <- hidden, never restored
//	  archive/     <- sub-directory, never restored
//
// The directory listing is the index: there is no manifest. A file's name
// is its key and its contents are whatever the value type's Store method
// wrote.
//
// Restore is all-or-nothing. The first file that cannot be opened or
// decoded aborts the whole call and the error names that file. A missing
// directory is not an error; it restores as an empty storage.
//
// Store walks keys in sorted order and stops at the first failure. Files
// written before the failure stay on disk. By default each file is
// truncated and rewritten in place; WithAtomicWrites switches to
// write-temp-then-rename.
//
// A Storage is not safe for concurrent use, and nothing coordinates two
// processes sharing a directory. Callers serialize access themselves.
package dirstore
