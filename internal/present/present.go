// Package present turns errors into the text shown to users. It is the only
// place that decides wording; callers never format errors themselves.
package present

import (
	"errors"
	"html"
	"strings"

	"github.com/local/convertdesk/internal/filetype"
	"github.com/local/convertdesk/internal/pageset"
	"github.com/local/convertdesk/internal/preview"
	"github.com/local/convertdesk/internal/tasks"
)

const maxServerMessage = 300

// Message returns user-facing text for err. Cancellations yield "" and must
// not be shown as a failure.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var ve *filetype.ValidationError
	if errors.As(err, &ve) {
		return fileMessage(ve)
	}
	switch {
	case tasks.IsCancelled(err):
		return ""
	case errors.Is(err, preview.ErrSuperseded):
		return ""
	case errors.Is(err, preview.ErrPageLimit):
		return "This document has too many pages for the editor. " + detail(err)
	case errors.Is(err, preview.ErrUnreadable):
		return "The file could not be opened. Make sure it is a valid, unprotected PDF."
	case errors.Is(err, pageset.ErrTooFew):
		return "Not enough items: " + detail(err)
	case errors.Is(err, pageset.ErrDuplicate):
		return "The same item was added twice."
	}

	var te *tasks.Error
	if errors.As(err, &te) {
		switch te.Kind {
		case tasks.KindValidation:
			return te.Message
		case tasks.KindTransport:
			return "Could not reach the conversion service. Check your connection and try again."
		case tasks.KindTimeout:
			return "The conversion is taking too long. Please try again later."
		case tasks.KindServer:
			if te.Message != "" {
				return truncate(te.Message)
			}
			return "The conversion failed."
		}
	}
	return "Something went wrong. Please try again."
}

func fileMessage(ve *filetype.ValidationError) string {
	name := ve.Name
	if name == "" {
		name = "The file"
	}
	switch {
	case errors.Is(ve.Reason, filetype.ErrEmpty):
		return name + " is empty."
	case errors.Is(ve.Reason, filetype.ErrTooLarge):
		return name + " is too large (" + ve.Detail + ")."
	case errors.Is(ve.Reason, filetype.ErrUnsupported) && ve.Detail != "":
		return name + " is not supported here (" + ve.Detail + ")."
	default:
		return name + " is not supported here."
	}
}

// HTML is Message escaped for insertion into a page.
func HTML(err error) string {
	return html.EscapeString(Message(err))
}

// detail is the part of a wrapped sentinel message after the sentinel text.
func detail(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		msg = msg[i+2:]
	}
	if msg == "" {
		return ""
	}
	return strings.ToUpper(msg[:1]) + msg[1:] + "."
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > maxServerMessage {
		return string(r[:maxServerMessage]) + "…"
	}
	return s
}
