// Package command implements the ledger reports (balance, register, print and
// friends) and the registry that resolves a command name or alias to one.
package command
