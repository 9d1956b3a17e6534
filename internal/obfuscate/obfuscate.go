// Package obfuscate provides the reversible byte transform applied to
// cached media payloads at rest. It is a repeating-key XOR: enough to
// deter casual inspection of the cache file, and nothing more. The key
// ships with the binary (or the config file), so this is explicitly not
// access control against a motivated reader.
package obfuscate

// DefaultKey is used when no key is configured.
const DefaultKey = "mediagate-at-rest-v1"

// Codec applies and reverses the at-rest transform.
type Codec struct {
	key []byte
}

// New creates a codec with the given key. An empty key falls back to
// DefaultKey so the transform is always total.
func New(key string) *Codec {
	if key == "" {
		key = DefaultKey
	}
	return &Codec{key: []byte(key)}
}

// Obfuscate transforms payload bytes for storage. The input slice is
// not modified.
func (c *Codec) Obfuscate(data []byte) []byte {
	return c.apply(data)
}

// Reveal reverses Obfuscate. Reveal(Obfuscate(b)) == b for any b,
// including the empty slice.
func (c *Codec) Reveal(data []byte) []byte {
	return c.apply(data)
}

// apply XORs data against the repeating key. XOR is its own inverse,
// so one implementation serves both directions.
func (c *Codec) apply(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ c.key[i%len(c.key)]
	}
	return out
}
