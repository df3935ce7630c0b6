// Package auth implements credential verification for the Device Tracking Container.
//
// Clients present a JWT; the verifier checks the signature (HS256 shared secret,
// or RS256 against a PEM public key or a JWKS endpoint with refresh) and resolves
// the identity behind it: a subject id and an email address. Everything past that
// point in the system deals only in Identity values.
package auth
