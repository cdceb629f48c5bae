// Package preflight validates that catalogmatch can run before a batch is
// started: the data directory is writable, the catalog is ingested with
// an embedder matching the configured one, and the language model and
// cache are reachable.
//
//	checker := preflight.New(cfg)
//	results := checker.RunAll(ctx)
//	if checker.HasCriticalFailures(results) {
//	    // refuse to run
//	}
package preflight
