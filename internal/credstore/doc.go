// Package credstore resolves, reads, writes, and caches credential
// material per platform behind one OS-agnostic contract.
//
// Storage backends per OS:
//   - macOS: the login keychain, via the security(1) helper
//   - Linux: the Secret Service, via secret-tool(1), with a JSON file
//     fallback when the helper is absent or failing
//   - Windows: a JSON file as the primary store plus the Credential
//     Manager as a best-effort mirror
//
// Every expected failure (secret absent, locked store, missing helper,
// malformed payload) is reported as a structured result, never a panic.
// Results are cached: successes for five minutes, errors for ten
// seconds so a locked store is retried quickly once unlocked.
package credstore
