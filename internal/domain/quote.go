// Package domain contains core business entities and rules.
package domain

import (
	"strings"
	"time"
)

// Quote is a stored quotable text entry.
// This is a domain entity - it has no knowledge of storage formats.
type Quote struct {
	// Text is the quotable content. Never empty.
	Text string

	// Author is the attribution. May be empty.
	Author string

	// Theme is the category tag used for grouping. Never empty.
	Theme string

	// Used is set once the quote has been selected in the current rotation.
	Used bool
}

// QuoteSet is the ordered collection of quotes, persisted as a whole.
// Identity is positional for the duration of one operation.
type QuoteSet []Quote

// NewQuote creates an unused quote after validating its required fields.
// Surrounding whitespace is trimmed; an empty author is accepted.
func NewQuote(text, author, theme string) (Quote, error) {
	q := Quote{
		Text:   strings.TrimSpace(text),
		Author: strings.TrimSpace(author),
		Theme:  strings.TrimSpace(theme),
	}

	if err := q.Validate(); err != nil {
		return Quote{}, err
	}

	return q, nil
}

// Validate checks that a new quote has text and a theme.
func (q Quote) Validate() error {
	if q.Text == "" {
		return NewValidationError("text", "must not be empty")
	}

	if q.Theme == "" {
		return NewValidationError("theme", "must not be empty")
	}

	return nil
}

// FormatMessage renders a quote as the text that gets published:
//
//	"Be water" - Bruce Lee
func FormatMessage(q Quote) string {
	return `"` + q.Text + `" - ` + q.Author
}

// Append returns the set with q added at the end, unused.
func (s QuoteSet) Append(q Quote) QuoteSet {
	q.Used = false
	return append(s, q)
}

// Clone returns a copy that can be mutated without affecting s.
func (s QuoteSet) Clone() QuoteSet {
	if s == nil {
		return nil
	}

	out := make(QuoteSet, len(s))
	copy(out, s)

	return out
}

// FilterTheme returns the quotes tagged with theme, in order.
func (s QuoteSet) FilterTheme(theme string) QuoteSet {
	out := make(QuoteSet, 0, len(s))
	for _, q := range s {
		if q.Theme == theme {
			out = append(out, q)
		}
	}

	return out
}

// CountUnused returns how many quotes are still eligible for unthemed selection.
func (s QuoteSet) CountUnused() int {
	n := 0
	for _, q := range s {
		if !q.Used {
			n++
		}
	}

	return n
}

// PublishReceipt confirms a message was accepted by the external platform.
type PublishReceipt struct {
	// ID is the identifier assigned by the platform.
	ID string

	// Text is the message as accepted.
	Text string

	// PublishedAt is when the publisher received confirmation.
	PublishedAt time.Time
}
