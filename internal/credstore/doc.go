// Package credstore provides durable key/value storage abstractions for
// session credentials.
//
// Supports three storage backends with different security and deployment tradeoffs:
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//   - File: Local filesystem storage with atomic writes and secure permissions;
//     values are base64-encoded, which is reversible and NOT encryption
//   - Mem: In-process storage that does not survive a restart, used when no
//     durable backend is available
//
// Every key handed to a Store is fully qualified by a Namespace so that
// co-installed build variants of the client do not collide.
package credstore
