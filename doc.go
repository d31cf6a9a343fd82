// Package authcore is the credential-and-session authority for a small
// multi-tenant web backend: it authenticates users, issues bearer
// tokens, enforces role-based access, throttles brute-force login
// attempts, and keeps an auditable trail of security-relevant events
// mirrored to an external collector over a best-effort transport.
//
// Authentication:
//   - Auther is the entry point. A login passes the LockoutGuard, the
//     bcrypt password check, the guard again to record the outcome, and
//     the AuditPipeline before the TokenService mints a token pair. An
//     audit write failure fails the whole operation closed.
//   - TokenService mints and verifies two signed token classes: a
//     short-lived access token presented per request and a long-lived
//     refresh token exchanged for new pairs. There is no revocation
//     list; compromise is mitigated by the short access lifetime.
//
// Authorization:
//   - Authorizer maps a verified token's role snapshot to an allow/deny
//     decision. Claims tied to a deactivated account are always denied
//     so deactivation bites on the next request, not at token expiry.
//
// Auditing:
//   - AuditPipeline appends every security-relevant action to an
//     append-only store and hands a subset to a SyslogForwarder that
//     ships line-oriented events to a collector over TCP or UDP. The
//     forwarder runs on a bounded queue and can only ever drop or spill
//     to a local fallback log, never slow down a login.
//   - SuspicionDetector correlates failed logins by source address
//     across accounts and flags bursts the per-account lockout cannot
//     see.
package authcore
