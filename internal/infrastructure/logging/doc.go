// Package logging provides structured logging built on log/slog.
//
// The Logger wrapper adds service and version attributes to every record
// and maps the string level/format settings from config.yaml onto slog
// handlers. Use Default() only during early startup before configuration
// is available.
package logging
