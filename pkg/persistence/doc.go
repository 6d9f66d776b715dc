// Package persistence stores the registration token a Core issues to this
// extension, so later sessions can register without user approval.
//
// Three backends implement Keystore: FileStore (a JSON file), BadgerStore (a
// badger database, shared with other data in the same directory) and
// MemoryStore (tests and one-shot tools). A missing token is reported as
// (nil, nil), never as an error.
package persistence
