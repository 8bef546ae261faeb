package transform

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/pbkdf2"

	"github.com/kbukum/streamkit/errors"
)

// CipherAlgorithm names a symmetric stream or block cipher.
type CipherAlgorithm string

const (
	// AESCBC is AES in CBC mode with PKCS#7 padding. The key size picks
	// AES-128, AES-192 or AES-256.
	AESCBC CipherAlgorithm = "aes-cbc"
	// ChaCha20 is the unauthenticated ChaCha20 stream cipher.
	ChaCha20 CipherAlgorithm = "chacha20"
)

const (
	aesKeySize  = 32
	chunkSize   = 32 * 1024
	minSaltSize = 8
)

// Key is the material for Encrypt and Decrypt.
type Key struct {
	alg    CipherAlgorithm
	key    []byte
	iv     []byte
	source string
}

// Algorithm returns the cipher the key was built for.
func (k Key) Algorithm() CipherAlgorithm { return k.alg }

// String never prints key bytes.
func (k Key) String() string {
	return fmt.Sprintf("%s key (%d bits, %s)", k.alg, len(k.key)*8, k.source)
}

// KeyFromBytes uses key and iv as given. AES-CBC takes a 16, 24 or 32 byte
// key and a 16 byte IV; ChaCha20 takes a 32 byte key and a 12 or 24 byte nonce.
func KeyFromBytes(alg CipherAlgorithm, key, iv []byte) (Key, error) {
	switch alg {
	case AESCBC:
		switch len(key) {
		case 16, 24, 32:
		default:
			return Key{}, errors.InvalidArgument("key", "aes key must be 16, 24 or 32 bytes")
		}
		if len(iv) != aes.BlockSize {
			return Key{}, errors.InvalidArgument("iv", "aes iv must be 16 bytes")
		}
	case ChaCha20:
		if len(key) != chacha20.KeySize {
			return Key{}, errors.InvalidArgument("key", "chacha20 key must be 32 bytes")
		}
		if len(iv) != chacha20.NonceSize && len(iv) != chacha20.NonceSizeX {
			return Key{}, errors.InvalidArgument("iv", "chacha20 nonce must be 12 or 24 bytes")
		}
	default:
		return Key{}, errors.InvalidArgument("cipher", "unsupported algorithm "+string(alg))
	}
	return Key{
		alg:    alg,
		key:    append([]byte(nil), key...),
		iv:     append([]byte(nil), iv...),
		source: "explicit",
	}, nil
}

// KeyFromPassword derives the key and IV with PBKDF2 over hashAlg.
// The same password, salt, iterations and hash always give the same key.
func KeyFromPassword(alg CipherAlgorithm, password, salt []byte, iterations int, hashAlg HashAlgorithm) (Key, error) {
	if len(password) == 0 {
		return Key{}, errors.InvalidArgument("password", "must not be empty")
	}
	if len(salt) < minSaltSize {
		return Key{}, errors.InvalidArgument("salt", fmt.Sprintf("must be at least %d bytes", minSaltSize))
	}
	if iterations < 1 {
		return Key{}, errors.InvalidArgument("iterations", "must be positive")
	}
	switch hashAlg {
	case SHA1, SHA256, SHA512:
	default:
		return Key{}, errors.InvalidArgument("hash", "key derivation supports sha1, sha256 and sha512")
	}
	newH, _ := hashAlg.factory()

	var keyLen, ivLen int
	switch alg {
	case AESCBC:
		keyLen, ivLen = aesKeySize, aes.BlockSize
	case ChaCha20:
		keyLen, ivLen = chacha20.KeySize, chacha20.NonceSize
	default:
		return Key{}, errors.InvalidArgument("cipher", "unsupported algorithm "+string(alg))
	}

	derived := pbkdf2.Key(password, salt, iterations, keyLen+ivLen, newH)
	return Key{
		alg:    alg,
		key:    derived[:keyLen],
		iv:     derived[keyLen:],
		source: "password",
	}, nil
}

// Encrypt returns a stage replacing plaintext with ciphertext.
func Encrypt(key Key) (Stage, error) {
	switch key.alg {
	case AESCBC:
		return cipherStage{name: "aes-cbc-encrypt", key: key, apply: encryptCBC}, nil
	case ChaCha20:
		return cipherStage{name: "chacha20-encrypt", key: key, apply: xorChaCha20}, nil
	default:
		return nil, errors.InvalidArgument("key", "no cipher key material")
	}
}

// Decrypt returns a stage replacing ciphertext with plaintext.
func Decrypt(key Key) (Stage, error) {
	switch key.alg {
	case AESCBC:
		return cipherStage{name: "aes-cbc-decrypt", key: key, apply: decryptCBC}, nil
	case ChaCha20:
		return cipherStage{name: "chacha20-decrypt", key: key, apply: xorChaCha20}, nil
	default:
		return nil, errors.InvalidArgument("key", "no cipher key material")
	}
}

type cipherStage struct {
	name  string
	key   Key
	apply func(key Key, dst io.Writer, src io.Reader) error
}

func (s cipherStage) Name() string { return s.name }

func (s cipherStage) Apply(_ context.Context, dst io.Writer, src io.Reader) error {
	return s.apply(s.key, dst, src)
}

// encryptCBC encrypts every whole block as soon as it is read and pads the
// tail at EOF, so a block-aligned input gains a full block of padding.
func encryptCBC(key Key, dst io.Writer, src io.Reader) error {
	block, err := aes.NewCipher(key.key)
	if err != nil {
		return err
	}
	mode := cipher.NewCBCEncrypter(block, key.iv)
	bs := block.BlockSize()
	buf := make([]byte, chunkSize)
	n := 0

	for {
		m, rerr := src.Read(buf[n:])
		n += m
		if whole := n - n%bs; whole > 0 && rerr == nil {
			mode.CryptBlocks(buf[:whole], buf[:whole])
			if _, err := dst.Write(buf[:whole]); err != nil {
				return err
			}
			n = copy(buf, buf[whole:n])
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}

	// n may still hold whole blocks read together with EOF.
	whole := n - n%bs
	tail := append([]byte(nil), buf[whole:n]...)
	pad := bs - len(tail)
	for range pad {
		tail = append(tail, byte(pad))
	}
	out := append(buf[:whole:whole], tail...)
	mode.CryptBlocks(out, out)
	_, err = dst.Write(out)
	return err
}

// decryptCBC holds back the last block until EOF so the padding can be
// checked and stripped.
func decryptCBC(key Key, dst io.Writer, src io.Reader) error {
	block, err := aes.NewCipher(key.key)
	if err != nil {
		return err
	}
	mode := cipher.NewCBCDecrypter(block, key.iv)
	bs := block.BlockSize()
	buf := make([]byte, chunkSize)
	n := 0

	for {
		m, rerr := src.Read(buf[n:])
		n += m
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
		ready := n - n%bs
		if ready == n {
			ready -= bs
		}
		if ready > 0 {
			mode.CryptBlocks(buf[:ready], buf[:ready])
			if _, err := dst.Write(buf[:ready]); err != nil {
				return err
			}
			n = copy(buf, buf[ready:n])
		}
	}

	if n == 0 || n%bs != 0 {
		return fmt.Errorf("ciphertext is not a whole number of %d byte blocks", bs)
	}
	mode.CryptBlocks(buf[:n], buf[:n])
	pad := int(buf[n-1])
	if pad == 0 || pad > bs {
		return fmt.Errorf("invalid padding")
	}
	for _, b := range buf[n-pad : n] {
		if int(b) != pad {
			return fmt.Errorf("invalid padding")
		}
	}
	_, err = dst.Write(buf[:n-pad])
	return err
}

// xorChaCha20 is its own inverse.
func xorChaCha20(key Key, dst io.Writer, src io.Reader) error {
	c, err := chacha20.NewUnauthenticatedCipher(key.key, key.iv)
	if err != nil {
		return err
	}
	buf := make([]byte, chunkSize)
	for {
		m, rerr := src.Read(buf)
		if m > 0 {
			c.XORKeyStream(buf[:m], buf[:m])
			if _, err := dst.Write(buf[:m]); err != nil {
				return err
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}
