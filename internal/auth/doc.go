// Package auth mints and verifies the HS256 bearer tokens accepted by the
// graynotify API.
//
// There is no user database: an operator mints a token for a named subject
// (a panel, a script, a person) with `graynotify token`, and the API checks
// signature, expiry and issuer on every request. The subject ends up in the
// audit trail.
package auth
