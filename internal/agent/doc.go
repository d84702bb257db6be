// Package agent maintains per-user chain sessions and dispatches function
// calls against them. Sessions are cached by a fingerprint of the signing key
// so that switching the active wallet transparently rebuilds the session, and
// every dispatch failure is folded into a structured result instead of an
// exception crossing the API boundary.
package agent
