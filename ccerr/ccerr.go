// Package ccerr defines the closed set of error kinds surfaced by the
// ingestion and aggregation pipeline.
package ccerr

import "fmt"

// Kind identifies the category of a pipeline error.
type Kind int

const (
	KindIO Kind = iota
	KindJSON
	KindNoDataDirectory
	KindUnknownModel
	KindInvalidDate
	KindInvalidTimezone
	KindInvalidTokenLimit
	KindParse
	KindNetwork
	KindConfig
	KindInvalidArgument
	KindDuplicateEntry
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindJSON:
		return "json"
	case KindNoDataDirectory:
		return "no_data_directory"
	case KindUnknownModel:
		return "unknown_model"
	case KindInvalidDate:
		return "invalid_date"
	case KindInvalidTimezone:
		return "invalid_timezone"
	case KindInvalidTokenLimit:
		return "invalid_token_limit"
	case KindParse:
		return "parse"
	case KindNetwork:
		return "network"
	case KindConfig:
		return "config"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindDuplicateEntry:
		return "duplicate_entry"
	default:
		return "unknown"
	}
}

// Error is the concrete error type carried across package boundaries. It
// keeps enough structured context (file, model) to format a precise
// message without forcing every caller to pack everything into a string.
type Error struct {
	Kind    Kind
	Message string
	File    string
	Model   string
	Wrapped error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindParse:
		return fmt.Sprintf("parse %s: %s", e.File, e.Message)
	case KindUnknownModel:
		return fmt.Sprintf("unknown model: %s", e.Model)
	default:
		if e.Message != "" {
			return e.Message
		}
		if e.Wrapped != nil {
			return e.Wrapped.Error()
		}
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Wrapped }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Wrapped: err, Message: err.Error()}
}

func UnknownModel(model string) *Error {
	return &Error{Kind: KindUnknownModel, Model: model}
}

func InvalidArgument(message string) *Error {
	return &Error{Kind: KindInvalidArgument, Message: message}
}

func InvalidTimezone(tz string) *Error {
	return &Error{Kind: KindInvalidTimezone, Message: fmt.Sprintf("invalid timezone: %s", tz)}
}

func InvalidDate(text string) *Error {
	return &Error{Kind: KindInvalidDate, Message: fmt.Sprintf("invalid date: %s", text)}
}

func Parse(file string, err error) *Error {
	return &Error{Kind: KindParse, File: file, Message: err.Error(), Wrapped: err}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
