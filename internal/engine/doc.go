// Package engine is the command execution gateway. It runs command lines
// against explicit sessions or against the process-wide active journal,
// records each run, and streams session events to subscribers.
package engine
