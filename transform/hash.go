package transform

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/kbukum/streamkit/errors"
)

// HashAlgorithm names a digest function.
type HashAlgorithm string

const (
	MD5        HashAlgorithm = "md5"
	SHA1       HashAlgorithm = "sha1"
	SHA256     HashAlgorithm = "sha256"
	SHA512     HashAlgorithm = "sha512"
	BLAKE2b256 HashAlgorithm = "blake2b-256"
	XXH64      HashAlgorithm = "xxh64"
)

// factory returns the constructor for alg.
func (alg HashAlgorithm) factory() (func() hash.Hash, error) {
	switch alg {
	case MD5:
		return md5.New, nil
	case SHA1:
		return sha1.New, nil
	case SHA256:
		return sha256.New, nil
	case SHA512:
		return sha512.New, nil
	case BLAKE2b256:
		return func() hash.Hash {
			h, _ := blake2b.New256(nil) // only fails for oversized keys
			return h
		}, nil
	case XXH64:
		return func() hash.Hash { return xxhash.New() }, nil
	default:
		return nil, errors.InvalidArgument("hash", "unsupported algorithm "+string(alg))
	}
}

// HashStage passes bytes through unchanged while computing their digest.
type HashStage struct {
	alg  HashAlgorithm
	newH func() hash.Hash
	sum  []byte
}

// Hash returns a pass-through stage computing alg over the stream.
func Hash(alg HashAlgorithm) (*HashStage, error) {
	newH, err := alg.factory()
	if err != nil {
		return nil, err
	}
	return &HashStage{alg: alg, newH: newH}, nil
}

// Name returns the algorithm name.
func (s *HashStage) Name() string { return string(s.alg) }

// Apply copies src to dst and stores the digest of every byte copied.
// Each drain starts a fresh digest.
func (s *HashStage) Apply(_ context.Context, dst io.Writer, src io.Reader) error {
	h := s.newH()
	s.sum = nil
	if _, err := io.Copy(dst, io.TeeReader(src, h)); err != nil {
		return err
	}
	s.sum = h.Sum(nil)
	return nil
}

// Sum returns the digest of the last successful drain, or nil.
func (s *HashStage) Sum() []byte {
	if s.sum == nil {
		return nil
	}
	return append([]byte(nil), s.sum...)
}

// Hex returns Sum as lowercase hex.
func (s *HashStage) Hex() string { return hex.EncodeToString(s.sum) }
