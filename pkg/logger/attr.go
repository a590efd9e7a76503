package logger

import (
	"log/slog"
	"time"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// UserID records the user identifier under the key "user_id".
// An empty id yields an empty Attr.
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

// TabID records the originating tab identifier under the key "tab_id".
func TabID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("tab_id", id)
}

// SessionID records the server side session identifier under the key "session_id".
func SessionID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("session_id", id)
}

// Reason records why a session transition happened under the key "reason".
func Reason[T ~string](reason T) slog.Attr {
	return slog.String("reason", string(reason))
}

// MessageType records a broadcast message type under the key "message_type".
func MessageType[T ~string](typ T) slog.Attr {
	return slog.String("message_type", string(typ))
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}
