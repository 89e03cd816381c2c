// Package session owns ledger engine instances and hands them out as opaque,
// generation-tagged handles. A handle stays valid until it is closed; after
// that every use is rejected with ErrUseAfterClose, even when its table slot
// has been reused by a newer session.
package session
