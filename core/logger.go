package core

// Logger reports application events to an external monitoring service.
// Implementations accept, in addition to the message, any of:
// an error, a map[string]interface{} of extra data, a user value for attribution.
type Logger interface {
	Enable(enabled bool)
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Critical(msg string, args ...interface{})
}
