package logging

import "log/slog"

// Common field names for consistent logging across components.
const (
	FieldWebsiteID = "website_id"
	FieldSessionID = "session_id"
	FieldEventType = "event_type"
	FieldIP        = "ip"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
	FieldQuery     = "query"
	FieldService   = "service"
)

// Service returns a slog attribute identifying the emitting component.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// WebsiteID returns a slog attribute for the website ID.
func WebsiteID(id string) slog.Attr {
	return slog.String(FieldWebsiteID, id)
}

// SessionID returns a slog attribute for the session ID.
func SessionID(id string) slog.Attr {
	return slog.String(FieldSessionID, id)
}

// EventType returns a slog attribute for the event type.
func EventType(t string) slog.Attr {
	return slog.String(FieldEventType, t)
}

// IP returns a slog attribute for the IP address.
func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// Query returns a slog attribute for an analytics query type.
func Query(query string) slog.Attr {
	return slog.String(FieldQuery, query)
}
