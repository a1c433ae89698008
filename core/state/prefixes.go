package state

import "tally/crypto"

var (
	accountPrefix = []byte("acct/")
	noncePrefix   = []byte("nonce/")
	metaPrefix    = []byte("meta/")
)

// AccountKey returns the storage key of the account at addr.
func AccountKey(addr crypto.Address) []byte {
	return prefixed(accountPrefix, addr[:])
}

// NonceKey returns the storage key of the signer nonce for addr.
func NonceKey(addr crypto.Address) []byte {
	return prefixed(noncePrefix, addr[:])
}

// MetaKey returns the storage key of a named node-level value.
func MetaKey(name string) []byte {
	return prefixed(metaPrefix, []byte(name))
}

func prefixed(prefix, suffix []byte) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return buf
}
