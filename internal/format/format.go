// ABOUTME: Pure text helpers for canonical questions, status banners and replies
// ABOUTME: Strips trigger keywords and quoted blocks, truncates long questions

package format

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Defaults used when the corresponding Options field is empty.
const (
	DefaultTrigger        = "archer"
	DefaultQuoteDelimiter = "- - - - - - - - - - - - - - -"
	DefaultSeparator      = " ------"
)

const (
	// truncateAbove is the rune length beyond which status displays truncate.
	truncateAbove = 15
	// truncateTo is the number of runes kept when truncating.
	truncateTo = 12
)

// Options configures a Formatter.
type Options struct {
	// Trigger is the keyword a message must start with. Empty accepts everything.
	Trigger string
	// QuoteDelimiter separates quoted earlier messages from the new text.
	QuoteDelimiter string
	// Separator is the line placed between the question and the note or reply.
	Separator string
}

// Formatter derives canonical text and renders displays.
// The zero value is not usable; construct with New.
type Formatter struct {
	trigger   string
	delimiter string
	separator string
}

// New creates a Formatter. Empty delimiter and separator fall back to the
// defaults; an empty trigger disables trigger handling.
func New(opts Options) *Formatter {
	if opts.QuoteDelimiter == "" {
		opts.QuoteDelimiter = DefaultQuoteDelimiter
	}
	if opts.Separator == "" {
		opts.Separator = DefaultSeparator
	}
	return &Formatter{
		trigger:   opts.Trigger,
		delimiter: opts.QuoteDelimiter,
		separator: opts.Separator,
	}
}

// Trigger returns the configured trigger keyword.
func (f *Formatter) Trigger() string {
	return f.trigger
}

// Canonical returns the text that should be sent to the backend.
func (f *Formatter) Canonical(raw string) string {
	text := strings.TrimSpace(f.lastSegment(raw))
	if f.trigger == "" {
		return text
	}
	for {
		rest, ok := f.cutTrigger(text)
		if !ok {
			return text
		}
		text = rest
	}
}

// Addressed reports whether raw text is meant for the bot, i.e. the text after
// any quoted block starts with the trigger keyword as a whole word. Earlier
// quoted messages are ignored so a reply quoting history still counts.
func (f *Formatter) Addressed(raw string) bool {
	if f.trigger == "" {
		return strings.TrimSpace(raw) != ""
	}
	_, ok := f.cutTrigger(strings.TrimSpace(f.lastSegment(raw)))
	return ok
}

// Status renders a banner for text with a note underneath. When truncate is
// set and text is longer than 15 runes only the first 12 are shown.
func (f *Formatter) Status(text, note string, truncate bool) string {
	runes := []rune(text)
	if truncate && len(runes) > truncateAbove {
		text = string(runes[:truncateTo]) + "..."
	}
	return f.join(text, note)
}

// Reply renders the final answer under the full question.
func (f *Formatter) Reply(text, reply string) string {
	return f.join(text, reply)
}

func (f *Formatter) join(head, tail string) string {
	return head + "\n" + f.separator + "\n" + tail
}

// cutTrigger removes a leading trigger followed by whitespace or the end of
// text and returns the trimmed remainder.
func (f *Formatter) cutTrigger(text string) (string, bool) {
	rest, ok := strings.CutPrefix(text, f.trigger)
	if !ok {
		return text, false
	}
	if r, _ := utf8.DecodeRuneInString(rest); rest != "" && !unicode.IsSpace(r) {
		return text, false
	}
	return strings.TrimSpace(rest), true
}

// lastSegment returns the part of raw after the last quote delimiter.
func (f *Formatter) lastSegment(raw string) string {
	if i := strings.LastIndex(raw, f.delimiter); i >= 0 {
		return raw[i+len(f.delimiter):]
	}
	return raw
}
