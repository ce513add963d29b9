package slogx

import (
	"fmt"
	"log/slog"
	"strconv"
)

// MaxByteString bounds how much of a payload ByteString logs.
const MaxByteString = 4 << 10

// Error returns an "error" attribute. Errors implementing slog.LogValuer are
// logged as their structured value, everything else by message.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	if lv, ok := err.(slog.LogValuer); ok {
		return slog.Any("error", lv)
	}
	return slog.String("error", err.Error())
}

// ByteString logs a payload as text. Payloads longer than MaxByteString are cut
// and annotated with the number of dropped bytes.
func ByteString(key string, value []byte) slog.Attr {
	if len(value) <= MaxByteString {
		return slog.String(key, string(value))
	}
	dropped := len(value) - MaxByteString
	return slog.String(key, string(value[:MaxByteString])+"... ("+strconv.Itoa(dropped)+" more bytes)")
}

// Stringer logs the String form of value. A nil value logs as "<nil>".
func Stringer(key string, value fmt.Stringer) slog.Attr {
	if value == nil {
		return slog.String(key, "<nil>")
	}
	return slog.String(key, value.String())
}

// KeyLoggerName is the attribute key carrying the logger name.
const KeyLoggerName = "logger"

// LoggerName names the component a logger belongs to.
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}
