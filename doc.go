// Package accounts implements a user-account backend: registration, login,
// email verification, profile CRUD, and administrative account management.
//
// The heart of the package is the account lifecycle Service:
//   - Registration and administrative creation funnel through the same
//     validation and persistence path; accounts start unverified with a
//     single-use verification token, and the verification email is
//     dispatched outside the creation transaction.
//   - Login tracks consecutive failures and engages a lockout once the
//     configured threshold is reached. The counter mutation is a single
//     atomic UPDATE so concurrent attempts can neither under- nor
//     over-count, and every login failure is reported identically to keep
//     account enumeration out of the result surface.
//   - Unlock and password reset are independent administrative actions:
//     resetting a password does not clear a lockout.
//
// Persistence rides on Bun with the shared go-repository-bun handlers; the
// HTTP surface is a JSON controller registered through go-router. Both are
// thin: every invariant lives in the Service.
package accounts
