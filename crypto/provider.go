package crypto

// CryptoProvider is the narrow crypto interface consensus code needs to hash
// a block header the same way regardless of which backend (software,
// HSM-backed dylib shim) a deployment wires in. It returns an error because
// an HSM-backed implementation can genuinely fail to reach its backend.
//
// Signature and script verification are not part of this interface: the
// consensus layer treats verify(script, amount, tx, in_index, flags) as an
// externally supplied pure function, not a built-in primitive.
type CryptoProvider interface {
	SHA3_256(input []byte) ([32]byte, error)
}
