package transform

import (
	"context"
	"encoding/base64"
	"io"
)

// Base64Encode returns a stage replacing bytes with padded standard base64.
func Base64Encode() Stage {
	return StageFunc("base64-encode", func(_ context.Context, dst io.Writer, src io.Reader) error {
		enc := base64.NewEncoder(base64.StdEncoding, dst)
		return copyAndClose(enc, src)
	})
}

// Base64Decode returns a stage replacing standard base64 text with the bytes
// it encodes. Line breaks in the input are ignored.
func Base64Decode() Stage {
	return StageFunc("base64-decode", func(_ context.Context, dst io.Writer, src io.Reader) error {
		_, err := io.Copy(dst, base64.NewDecoder(base64.StdEncoding, src))
		return err
	})
}
