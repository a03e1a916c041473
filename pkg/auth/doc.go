// Package auth provides the default cipher used to produce the
// authentication token sent at connect time.
//
// The token is AES-256-GCM over the plaintext, with the key derived from
// the pre-shared secret via HKDF-SHA256 and encoded as standard base64.
// The transport only depends on the wire.CipherFunc signature, so owners
// can substitute their own routine.
package auth
