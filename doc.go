// Package authcore implements the authentication decision and challenge engine
// for a multi-source identity provider: credential verification across local,
// nomis, delius, and azuread backends, retry/lockout bookkeeping, the MFA
// requirement/challenge/resend state machine, and the typed single-use token
// store that also backs password-reset and contact-verification flows.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the [Principal] variants, and the collaborator interfaces callers implement
// ([PersonDirectory], [OverrideStore], [Notifier], [RemoteAuthenticator],
// [CredentialStore], [AccountLocker]). All state the engine owns — retry
// counters and typed tokens — lives in Redis and is mutated only through
// Engine operations.
//
// # What this package must NOT do
//
//   - Render user-facing copy: every failure carries a short machine-readable
//     reason code; presentation is the caller's job.
//   - Deliver email or SMS itself: code delivery goes through [Notifier].
//   - Persist principals: they are read-only views rebuilt per request from
//     source directories plus the local override record.
package authcore
