// Package cli provides the interactive cloudchat command-line client.
//
// It wires configuration, the local account vault, the storage backends and
// the sync engine, and runs a REPL over them. Typical flow: unlock the vault
// with the local password, activate the current account, then chat.
//
// Key features:
//   - Account management: add, switch, remove, import / export
//   - Send text and files, list the chat with transfer progress
//   - Delete and retry messages, download / cancel media
//   - Manual sync and fast polling toggle
//   - Connection test and the shared login log
//
// Incoming messages from other devices are printed as they arrive. Logs go
// to a JSON file in the data directory.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App and runREPL for details.
package cli
