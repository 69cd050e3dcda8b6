// Package logging configures log/slog for unithost binaries.
//
// Both binaries log JSON to stderr, tagged with the module ("unithostd" or
// "unithost") and the build version. Debug level adds source locations.
//
//	logging.SetDefaultStructuredLoggerWithLevel("unithostd", version, cfg.LogLevel)
//	slog.Info("unit installed", "unit", id, "duration", d.String())
//
// Level names are case-insensitive (debug, info, warn/warning, error); unknown
// names fall back to info. SetDefaultStructuredLogger reads LOG_LEVEL.
//
// Lifecycle logs use a stable set of keys so one unit can be followed across
// install, update and uninstall:
//
//	unit        unit identifier
//	operation   install, update, uninstall or env
//	requestID   X-Request-Id of the management call that started it
//	error       the wrapped error, logged with "error", err
//
// NewLogLogger adapts the default handler for APIs that only take a
// *log.Logger, such as http.Server.ErrorLog.
package logging
