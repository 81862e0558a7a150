// Package profile defines the account model shared across the credential
// core and implements account selection.
//
// Two account variants exist: OAuth profiles tied to a platform secret
// store and subject to session/weekly usage ceilings, and API-key
// profiles that are unlimited once authenticated. Selection is a pure
// function over a snapshot of the pool; callers assemble the snapshot
// (credentials, usage, rate-limit state) beforehand so the logic stays
// deterministic and unit-testable.
package profile
