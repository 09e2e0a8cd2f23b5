// Package rcpt runs a command and records what happened as a JSON receipt.
package rcpt

// Version is the rcpt release version.
const Version = "0.1.0"
