// Package watcher reports changes to a single file, typically the catalog
// being served or re-ingested.
//
// fsnotify watches the file's parent directory so editors that save by
// writing a temp file and renaming it over the original are still seen.
// When fsnotify cannot be initialized (some network mounts and container
// volumes) the watcher falls back to polling the file's size and mtime.
//
// Bursts of events are debounced into one event per window:
//
//	CREATE + MODIFY = CREATE
//	CREATE + DELETE = nothing
//	MODIFY + DELETE = DELETE
//	DELETE + CREATE = MODIFY (file was replaced)
package watcher
