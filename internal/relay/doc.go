// Package relay adapts a chat transport to the dispatcher.
//
// Inbound messages are resolved once into a Target (an individual
// correspondent or a group channel) and a conversation identity. Liveness
// probes are answered directly; messages that do not start with the trigger
// keyword are dropped; everything else is handed to the dispatcher together
// with a replier that sends back through the same Target.
package relay
