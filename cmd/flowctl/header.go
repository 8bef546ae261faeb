package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/transform"
)

const (
	packExt     = "skp"
	headerMagic = "SKP1"
)

// packHeader precedes the ciphertext of a packed file and records how the
// key was derived, so unpack does not depend on the current configuration.
//
// Layout: magic, then cipher, codec and KDF hash as length-prefixed
// strings, the iteration count as a big-endian uint32, and the
// length-prefixed salt.
type packHeader struct {
	Cipher     string
	Codec      string
	KDFHash    string
	Iterations uint32
	Salt       []byte
}

func (h packHeader) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(headerMagic)
	for _, field := range [][]byte{[]byte(h.Cipher), []byte(h.Codec), []byte(h.KDFHash)} {
		if err := writeField(&buf, field); err != nil {
			return nil, err
		}
	}
	_ = binary.Write(&buf, binary.BigEndian, h.Iterations)
	if err := writeField(&buf, h.Salt); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, field []byte) error {
	if len(field) > 255 {
		return errors.InvalidArgument("header", "field longer than 255 bytes")
	}
	buf.WriteByte(byte(len(field)))
	buf.Write(field)
	return nil
}

// readHeader consumes the header from r, leaving r at the ciphertext.
func readHeader(r io.Reader) (packHeader, error) {
	magic := make([]byte, len(headerMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != headerMagic {
		return packHeader{}, errors.InvalidArgument("file", "not a packed file")
	}

	var h packHeader
	fields := []*string{&h.Cipher, &h.Codec, &h.KDFHash}
	for _, f := range fields {
		b, err := readField(r)
		if err != nil {
			return packHeader{}, err
		}
		*f = string(b)
	}
	if err := binary.Read(r, binary.BigEndian, &h.Iterations); err != nil {
		return packHeader{}, errors.InvalidArgument("file", "truncated header")
	}
	salt, err := readField(r)
	if err != nil {
		return packHeader{}, err
	}
	h.Salt = salt
	return h, nil
}

func readField(r io.Reader) ([]byte, error) {
	var n [1]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return nil, errors.InvalidArgument("file", "truncated header")
	}
	b := make([]byte, n[0])
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, errors.InvalidArgument("file", "truncated header")
	}
	return b, nil
}

func (h packHeader) key(password string) (transform.Key, error) {
	return transform.KeyFromPassword(
		transform.CipherAlgorithm(h.Cipher),
		[]byte(password),
		h.Salt,
		int(h.Iterations),
		transform.HashAlgorithm(h.KDFHash),
	)
}

// stage writes the header and then passes its input through unchanged.
func (h packHeader) stage() (transform.Stage, error) {
	b, err := h.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return transform.StageFunc("header", func(_ context.Context, dst io.Writer, src io.Reader) error {
		if _, err := dst.Write(b); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		_, err := io.Copy(dst, src)
		return err
	}), nil
}
