// Package logging provides structured slog logging for catalogmatch with an
// optional size-rotated log file under ~/.catalogmatch/logs/.
//
// Batch runs log to stderr only unless --debug is set. The MCP server mode
// logs to file only, because stdout carries the JSON-RPC stream.
package logging
