package core

// Logger is the app-wide leveled logger.
// Implementations may inspect args for well-known types (an error to report,
// a user.User to attribute the event to).
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
