// Package storage defines the principal lookup consulted after a caller's
// credential has been verified, plus tenant context helpers.
//
// Implementations live in the memory and postgres subpackages. A principal
// that is unknown to the store is admitted with the identity the verifier
// produced; a principal marked disabled is denied.
package storage
