// Package dedupe remembers recently seen keys, such as transport event IDs,
// so redelivered events are processed once.
package dedupe
