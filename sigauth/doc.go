/*
Package sigauth authorizes mutations with detached compact JWS signatures.

A client never sends its request body in the clear: the body is the JWS
payload, and the server recovers it only after verifying the signature against
the acting user's registered public key. Public keys are PEM encoded SPKI
("PUBLIC KEY") blocks.

Every verification failure is reported as the single generic
models.ErrAuthMismatch, so callers can't learn which step failed. A payload
that verifies and is valid JSON but doesn't fit the operation's schema is a
models.ErrDomainViolation instead.
*/
package sigauth
