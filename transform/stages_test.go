package transform

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"

	"github.com/kbukum/streamkit/errors"
)

func payload(size int) []byte {
	rng := rand.New(rand.NewSource(int64(size) + 1))
	b := make([]byte, size)
	rng.Read(b)
	return b
}

// through drains data through the given stages into memory.
func through(t *testing.T, data []byte, stages ...Stage) ([]byte, error) {
	t.Helper()
	p, err := FromReader(bytes.NewReader(data), false)
	require.NoError(t, err)
	for _, s := range stages {
		p = p.Then(s)
	}
	return p.DrainToBytes(context.Background())
}

func mustStage(t *testing.T) func(Stage, error) Stage {
	return func(s Stage, err error) Stage {
		t.Helper()
		require.NoError(t, err)
		return s
	}
}

func mustKey(t *testing.T) func(Key, error) Key {
	return func(k Key, err error) Key {
		t.Helper()
		require.NoError(t, err)
		return k
	}
}

func TestRoundTrips(t *testing.T) {
	must := mustStage(t)
	salt := []byte("pepper-and-salt")

	aesBytes := mustKey(t)(KeyFromBytes(AESCBC, bytes.Repeat([]byte{7}, 32), bytes.Repeat([]byte{9}, 16)))
	aes128 := mustKey(t)(KeyFromBytes(AESCBC, bytes.Repeat([]byte{1}, 16), bytes.Repeat([]byte{2}, 16)))
	aesPassword := mustKey(t)(KeyFromPassword(AESCBC, []byte("correct horse"), salt, 1000, SHA256))
	chachaBytes := mustKey(t)(KeyFromBytes(ChaCha20, bytes.Repeat([]byte{3}, 32), bytes.Repeat([]byte{4}, 12)))
	xchacha := mustKey(t)(KeyFromBytes(ChaCha20, bytes.Repeat([]byte{5}, 32), bytes.Repeat([]byte{6}, 24)))
	chachaPassword := mustKey(t)(KeyFromPassword(ChaCha20, []byte("battery staple"), salt, 1000, SHA512))

	tests := []struct {
		name      string
		forward   Stage
		backward  Stage
		skipEmpty bool
	}{
		{"aes-cbc explicit", must(Encrypt(aesBytes)), must(Decrypt(aesBytes)), false},
		{"aes-128-cbc", must(Encrypt(aes128)), must(Decrypt(aes128)), false},
		{"aes-cbc password", must(Encrypt(aesPassword)), must(Decrypt(aesPassword)), false},
		{"chacha20 explicit", must(Encrypt(chachaBytes)), must(Decrypt(chachaBytes)), false},
		{"xchacha20", must(Encrypt(xchacha)), must(Decrypt(xchacha)), false},
		{"chacha20 password", must(Encrypt(chachaPassword)), must(Decrypt(chachaPassword)), false},
		{"gzip default", must(Compress(Gzip, DefaultLevel)), must(Decompress(Gzip)), true},
		{"gzip best", must(Compress(Gzip, 9)), must(Decompress(Gzip)), true},
		{"zstd default", must(Compress(Zstd, DefaultLevel)), must(Decompress(Zstd)), true},
		{"zstd 19", must(Compress(Zstd, 19)), must(Decompress(Zstd)), true},
		{"lz4 fast", must(Compress(LZ4, DefaultLevel)), must(Decompress(LZ4)), true},
		{"lz4 9", must(Compress(LZ4, 9)), must(Decompress(LZ4)), true},
		{"base64", Base64Encode(), Base64Decode(), false},
	}
	sizes := []int{0, 1, 15, 16, 17, 4096, 100_000}

	for _, tc := range tests {
		for _, size := range sizes {
			if size == 0 && tc.skipEmpty {
				continue
			}
			t.Run(fmt.Sprintf("%s/%d", tc.name, size), func(t *testing.T) {
				plain := payload(size)
				encoded, err := through(t, plain, tc.forward)
				require.NoError(t, err)
				if size > 16 {
					assert.NotEqual(t, plain, encoded)
				}
				decoded, err := through(t, encoded, tc.backward)
				require.NoError(t, err)
				assert.True(t, bytes.Equal(plain, decoded), "round trip changed the payload")
			})
		}
	}
}

func TestRoundTrip_Chained(t *testing.T) {
	must := mustStage(t)
	key := mustKey(t)(KeyFromPassword(AESCBC, []byte("secret"), []byte("0123456789abcdef"), 2000, SHA1))
	plain := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog\n", 2000))

	packed, err := through(t, plain, must(Compress(Zstd, 3)), must(Encrypt(key)), Base64Encode())
	require.NoError(t, err)
	unpacked, err := through(t, packed, Base64Decode(), must(Decrypt(key)), must(Decompress(Zstd)))
	require.NoError(t, err)
	assert.Equal(t, plain, unpacked)
}

func TestAESCBC_PaddingLength(t *testing.T) {
	key := mustKey(t)(KeyFromBytes(AESCBC, make([]byte, 32), make([]byte, 16)))
	enc, _ := Encrypt(key)
	for _, size := range []int{0, 1, 15, 16, 31, 32, 33} {
		out, err := through(t, payload(size), enc)
		require.NoError(t, err)
		want := (size/16 + 1) * 16
		assert.Equal(t, want, len(out), "size %d", size)
	}
}

func TestAESCBC_WrongPasswordFails(t *testing.T) {
	salt := []byte("fixed-salt-value")
	right := mustKey(t)(KeyFromPassword(AESCBC, []byte("right"), salt, 1000, SHA256))
	wrong := mustKey(t)(KeyFromPassword(AESCBC, []byte("wrong"), salt, 1000, SHA256))
	enc, _ := Encrypt(right)
	dec, _ := Decrypt(wrong)

	plain := payload(1000)
	cipherText, err := through(t, plain, enc)
	require.NoError(t, err)

	out, err := through(t, cipherText, dec)
	if err == nil {
		assert.NotEqual(t, plain, out, "wrong key must not reproduce the plaintext")
		return
	}
	assert.True(t, errors.IsCode(err, errors.ErrCodeStageFailure), "got %v", err)
}

func TestAESCBC_TruncatedCiphertext(t *testing.T) {
	key := mustKey(t)(KeyFromBytes(AESCBC, make([]byte, 16), make([]byte, 16)))
	enc, _ := Encrypt(key)
	dec, _ := Decrypt(key)
	cipherText, err := through(t, payload(100), enc)
	require.NoError(t, err)

	_, err = through(t, cipherText[:len(cipherText)-3], dec)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeStageFailure))

	_, err = through(t, nil, dec)
	assert.Error(t, err, "empty ciphertext has no padding block")
}

func TestHash_MatchesReference(t *testing.T) {
	data := payload(10_000)
	md5Sum := md5.Sum(data)
	sha1Sum := sha1.Sum(data)
	sha256Sum := sha256.Sum256(data)
	sha512Sum := sha512.Sum512(data)
	blakeSum := blake2b.Sum256(data)
	xxSum := binary.BigEndian.AppendUint64(nil, xxhash.Sum64(data))

	tests := []struct {
		alg  HashAlgorithm
		want []byte
	}{
		{MD5, md5Sum[:]},
		{SHA1, sha1Sum[:]},
		{SHA256, sha256Sum[:]},
		{SHA512, sha512Sum[:]},
		{BLAKE2b256, blakeSum[:]},
		{XXH64, xxSum},
	}
	for _, tc := range tests {
		t.Run(string(tc.alg), func(t *testing.T) {
			h, err := Hash(tc.alg)
			require.NoError(t, err)
			assert.Nil(t, h.Sum(), "no digest before a drain")

			out, err := through(t, data, h)
			require.NoError(t, err)
			assert.Equal(t, data, out, "hash stage must pass bytes through")
			assert.Equal(t, tc.want, h.Sum())
			assert.Len(t, h.Hex(), 2*len(tc.want))
		})
	}
}

func TestHash_CompressHashDigestsDiffer(t *testing.T) {
	before, _ := Hash(SHA256)
	after, _ := Hash(SHA256)
	gz, _ := Compress(Gzip, DefaultLevel)
	data := []byte(strings.Repeat("streamkit ", 500))

	_, err := through(t, data, before, gz, after)
	require.NoError(t, err)

	want := sha256.Sum256(data)
	assert.Equal(t, want[:], before.Sum())
	assert.NotEqual(t, before.Hex(), after.Hex())
}

func TestInvalidStageArguments(t *testing.T) {
	_, err := Hash("crc32")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))

	_, err = Compress("brotli", 0)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
	_, err = Decompress("brotli")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
	_, err = Compress(Gzip, 10)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
	_, err = Compress(Zstd, 23)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
	_, err = Compress(LZ4, -1)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))

	_, err = Encrypt(Key{})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
	_, err = Decrypt(Key{})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
}

func TestKeyValidation(t *testing.T) {
	salt := []byte("12345678")
	tests := []struct {
		name string
		fn   func() (Key, error)
	}{
		{"aes short key", func() (Key, error) { return KeyFromBytes(AESCBC, make([]byte, 10), make([]byte, 16)) }},
		{"aes short iv", func() (Key, error) { return KeyFromBytes(AESCBC, make([]byte, 32), make([]byte, 8)) }},
		{"chacha short key", func() (Key, error) { return KeyFromBytes(ChaCha20, make([]byte, 16), make([]byte, 12)) }},
		{"chacha bad nonce", func() (Key, error) { return KeyFromBytes(ChaCha20, make([]byte, 32), make([]byte, 16)) }},
		{"unknown cipher", func() (Key, error) { return KeyFromBytes("des", make([]byte, 8), make([]byte, 8)) }},
		{"empty password", func() (Key, error) { return KeyFromPassword(AESCBC, nil, salt, 1000, SHA256) }},
		{"short salt", func() (Key, error) { return KeyFromPassword(AESCBC, []byte("pw"), []byte("123"), 1000, SHA256) }},
		{"zero iterations", func() (Key, error) { return KeyFromPassword(AESCBC, []byte("pw"), salt, 0, SHA256) }},
		{"kdf hash", func() (Key, error) { return KeyFromPassword(AESCBC, []byte("pw"), salt, 1000, MD5) }},
		{"kdf cipher", func() (Key, error) { return KeyFromPassword("rc4", []byte("pw"), salt, 1000, SHA256) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.fn()
			assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument), "got %v", err)
		})
	}
}

func TestKeyFromPassword_Deterministic(t *testing.T) {
	salt := []byte("deterministic-salt")
	a := mustKey(t)(KeyFromPassword(AESCBC, []byte("pw"), salt, 1000, SHA256))
	b := mustKey(t)(KeyFromPassword(AESCBC, []byte("pw"), salt, 1000, SHA256))
	c := mustKey(t)(KeyFromPassword(AESCBC, []byte("pw"), salt, 1001, SHA256))

	assert.Equal(t, a.key, b.key)
	assert.Equal(t, a.iv, b.iv)
	assert.NotEqual(t, a.key, c.key)
	assert.Len(t, a.key, 32)
	assert.Len(t, a.iv, 16)
}

func TestKey_StringHidesMaterial(t *testing.T) {
	k := mustKey(t)(KeyFromBytes(AESCBC, []byte("0123456789abcdef0123456789abcdef"), []byte("fedcba9876543210")))
	s := k.String()
	assert.Contains(t, s, "aes-cbc")
	assert.Contains(t, s, "256 bits")
	assert.NotContains(t, s, "0123456789abcdef")
	assert.Equal(t, AESCBC, k.Algorithm())
}
