// Sign/verify and autoverify, per spec.md §4.7 and §6.6 (signatures
// keyed by variable identifier under a .sig directory). Content hashing
// follows the teacher's runtime/scrubber.Scrubber.Fingerprint use of
// keyed BLAKE2b-256 (golang.org/x/crypto/blake2b); the signature itself
// uses stdlib crypto/hmac+sha256 for the "hmac" algorithm and stdlib
// crypto/ed25519 for the "ed25519" algorithm — both are standard-library
// primitives, but the content-addressing digest that ties a signature to
// its artifact is the pack's own blake2b convention.
package security

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"
)

// Algorithm enumerates supported `/sign ... with <algo>` algorithms.
type Algorithm string

const (
	AlgoHMAC    Algorithm = "hmac-sha256"
	AlgoEd25519 Algorithm = "ed25519"
)

// Signature is the artifact persisted alongside a signed variable's
// content, matching spec.md §6.6's `.sig.json` / `.sig.content` pair.
type Signature struct {
	Algorithm Algorithm
	SignedBy  string
	Hash      string // content hash (blake2b-256 hex)
	Sig       []byte // raw signature bytes
}

// ContentHash computes the content-addressed digest used both to bind a
// signature to its content and to detect drift on /verify.
func ContentHash(content []byte) string {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(fmt.Sprintf("blake2b.New256 failed: %v", err))
	}
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// Sign produces a Signature for content under identity, using key material
// appropriate to algo (an HMAC shared secret, or an ed25519 private key).
func Sign(algo Algorithm, identity string, content []byte, key []byte) (*Signature, error) {
	hash := ContentHash(content)
	switch algo {
	case AlgoHMAC:
		mac := hmac.New(sha256.New, key)
		mac.Write([]byte(hash))
		return &Signature{Algorithm: algo, SignedBy: identity, Hash: hash, Sig: mac.Sum(nil)}, nil
	case AlgoEd25519:
		if len(key) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("sign: ed25519 private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
		}
		sig := ed25519.Sign(ed25519.PrivateKey(key), []byte(hash))
		return &Signature{Algorithm: algo, SignedBy: identity, Hash: hash, Sig: sig}, nil
	default:
		return nil, fmt.Errorf("sign: unsupported algorithm %q", algo)
	}
}

// VerifyResult is the structured `/verify @var` return value (§4.7).
type VerifyResult struct {
	Verified bool
	Hash     string
	Error    string
}

// Verify recomputes content's digest and checks it against sig, using the
// same key material that was used to sign.
func Verify(sig *Signature, content []byte, key []byte) VerifyResult {
	if sig == nil {
		return VerifyResult{Verified: false, Error: "no signature recorded"}
	}
	hash := ContentHash(content)
	if hash != sig.Hash {
		return VerifyResult{Verified: false, Hash: hash, Error: "content hash mismatch"}
	}
	switch sig.Algorithm {
	case AlgoHMAC:
		mac := hmac.New(sha256.New, key)
		mac.Write([]byte(hash))
		if hmac.Equal(mac.Sum(nil), sig.Sig) {
			return VerifyResult{Verified: true, Hash: hash}
		}
		return VerifyResult{Verified: false, Hash: hash, Error: "signature mismatch"}
	case AlgoEd25519:
		if len(key) != ed25519.PublicKeySize {
			return VerifyResult{Verified: false, Hash: hash, Error: "invalid public key length"}
		}
		if ed25519.Verify(ed25519.PublicKey(key), []byte(hash), sig.Sig) {
			return VerifyResult{Verified: true, Hash: hash}
		}
		return VerifyResult{Verified: false, Hash: hash, Error: "signature mismatch"}
	default:
		return VerifyResult{Verified: false, Hash: hash, Error: fmt.Sprintf("unsupported algorithm %q", sig.Algorithm)}
	}
}

// defaultVerifyTemplate is prepended to command templates that interpolate
// a signed, autoverified variable (§4.7).
const defaultVerifyTemplate = "# The following variables have been cryptographically signed and verified: %s\n" +
	"# Their content has not been altered since signing.\n"

// AutoverifyEnvVar is the env var name set on executors for autoverified
// invocations (§4.7): MLLD_VERIFY_VARS=<name,...>.
const AutoverifyEnvVar = "MLLD_VERIFY_VARS"

// AutoverifyInstructions returns the env value and prepended instructions
// block for a command template that interpolates the given signed variable
// names, or ("", "") if names is empty.
func AutoverifyInstructions(policy *Policy, names []string) (envValue string, instructions string) {
	if policy == nil || !policy.Autoverify || len(names) == 0 {
		return "", ""
	}
	joined := ""
	for i, n := range names {
		if i > 0 {
			joined += ","
		}
		joined += n
	}
	tmpl := policy.VerifyTemplate
	if tmpl == "" {
		tmpl = fmt.Sprintf(defaultVerifyTemplate, joined)
	}
	return joined, tmpl
}

// sigRecord is the on-disk shape of a Signature's metadata half, written
// to <dir>/<name>.sig.json (§6.6). The signed content itself is written
// alongside as <dir>/<name>.sig.content, so verification can re-hash it
// without holding the value in memory.
type sigRecord struct {
	Algorithm Algorithm `json:"algorithm"`
	SignedBy  string    `json:"signedBy"`
	Hash      string    `json:"hash"`
	Sig       string    `json:"sig"` // hex-encoded
}

// Store persists Signature artifacts under a `.sig` directory, keyed by
// variable identifier, matching spec.md §6.6's on-disk layout. A nil
// *Store (the zero value used by unit tests exercising Sign/Verify in
// memory only) is never dereferenced here; callers that want persistence
// construct one explicitly via NewStore.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir (conventionally ".sig" beneath
// the interpreter's execution directory).
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Save writes sig and content to <dir>/<name>.sig.json and
// <dir>/<name>.sig.content.
func (s *Store) Save(name string, sig *Signature, content []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("security: sig store mkdir %s: %w", s.dir, err)
	}
	rec := sigRecord{Algorithm: sig.Algorithm, SignedBy: sig.SignedBy, Hash: sig.Hash, Sig: hex.EncodeToString(sig.Sig)}
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("security: sig store marshal %s: %w", name, err)
	}
	if err := os.WriteFile(s.jsonPath(name), raw, 0o644); err != nil {
		return fmt.Errorf("security: sig store write %s: %w", name, err)
	}
	if err := os.WriteFile(s.contentPath(name), content, 0o644); err != nil {
		return fmt.Errorf("security: sig store write %s: %w", name, err)
	}
	return nil
}

// Load reads back the Signature and content previously saved under name.
func (s *Store) Load(name string) (*Signature, []byte, error) {
	raw, err := os.ReadFile(s.jsonPath(name))
	if err != nil {
		return nil, nil, fmt.Errorf("security: sig store read %s: %w", name, err)
	}
	var rec sigRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, nil, fmt.Errorf("security: sig store parse %s: %w", name, err)
	}
	sigBytes, err := hex.DecodeString(rec.Sig)
	if err != nil {
		return nil, nil, fmt.Errorf("security: sig store decode %s: %w", name, err)
	}
	content, err := os.ReadFile(s.contentPath(name))
	if err != nil {
		return nil, nil, fmt.Errorf("security: sig store read content %s: %w", name, err)
	}
	return &Signature{Algorithm: rec.Algorithm, SignedBy: rec.SignedBy, Hash: rec.Hash, Sig: sigBytes}, content, nil
}

func (s *Store) jsonPath(name string) string    { return filepath.Join(s.dir, name+".sig.json") }
func (s *Store) contentPath(name string) string { return filepath.Join(s.dir, name+".sig.content") }
