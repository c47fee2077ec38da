// Package digest defines the values that flow through the pipeline and the
// transformation families applied by worker stages.
//
// An Item is the fixed-width little-endian encoding of a sequence index. A
// Func maps an Item to a Digest of fixed length; it must be pure and
// deterministic. The built-in families are:
//
//   - sha512  (crypto/sha512, 64 bytes)
//   - blake3  (lukechampine.com/blake3, 32 bytes)
//   - blake2b (golang.org/x/crypto/blake2b, 32 bytes)
//   - sha3    (golang.org/x/crypto/sha3, SHA3-256, 32 bytes)
//
// Lookup resolves a family name used in configuration.
package digest
