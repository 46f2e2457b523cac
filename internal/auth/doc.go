// Package auth issues and validates the credentials accepted by the API:
// HS256 JWTs for operators and guests, long-lived API keys compared by
// SHA-256 digest, and bcrypt-hashed operator passwords.
package auth
