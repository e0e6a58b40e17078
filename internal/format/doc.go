// Package format builds the text the relay sends back to chat users.
//
// # Canonical Text
//
// Inbound chat text is reduced to the question actually asked:
//
//  1. Quoted replies are dropped: only the segment after the last quote
//     delimiter is kept.
//  2. Leading trigger keywords ("archer") are removed when they stand as
//     whole words, so "archery" is left alone.
//  3. Surrounding whitespace is trimmed.
//
// Canonical is idempotent, so text that has already been reduced can be
// passed through it again safely.
//
// # Displays
//
// Status displays are the short banners sent while a message waits or is
// being processed. Long questions are truncated so the banner does not echo
// a wall of text back into the chat:
//
//	what is 2+2
//	 ------
//	thinking...
//
// Reply displays always carry the full question followed by the answer.
package format
