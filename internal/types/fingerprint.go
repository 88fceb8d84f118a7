package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ResourceFingerprint is the content-addressable key used by both the
// Idempotency Store and the Cache Port (spec §3.2's cache-coherence
// invariant: the same key space for both means a cached Document and an
// in-flight acquisition for the same work always collide on the same
// identity). It is H(url, options-subset) where options-subset excludes
// fields that don't change the extracted content (concurrency, timeouts).
type ResourceFingerprint string

// Fingerprint computes the ResourceFingerprint for one URL under opts.
func Fingerprint(rawURL string, opts Options) ResourceFingerprint {
	h := sha256.New()
	fmt.Fprintf(h, "url=%s;format=%s;stealth=%s;chunk=%t:%d:%d",
		rawURL, opts.OutputFormat, opts.StealthPreset,
		opts.Chunking.Enabled, opts.Chunking.MaxChunkSize, opts.Chunking.Overlap)
	return ResourceFingerprint(hex.EncodeToString(h.Sum(nil)))
}

func (f ResourceFingerprint) String() string { return string(f) }
