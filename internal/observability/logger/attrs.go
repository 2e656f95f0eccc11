package logger

import "log/slog"

// Common attribute keys for consistent logging across the application

func UserID(id string) slog.Attr {
	return slog.String("user_id", id)
}

func Username(name string) slog.Attr {
	return slog.String("username", name)
}

func RoleName(name string) slog.Attr {
	return slog.String("role", name)
}

func Module(module string) slog.Attr {
	return slog.String("module", module)
}

func Action(action string) slog.Attr {
	return slog.String("action", action)
}

func Source(source string) slog.Attr {
	return slog.String("source", source)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func Operation(op string) slog.Attr {
	return slog.String("operation", op)
}

func Count(n int64) slog.Attr {
	return slog.Int64("count", n)
}
