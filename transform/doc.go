// Package transform composes byte-stream stages into a lazy pipe.
//
// A Pipe is built with From and Then and does nothing until a terminal
// (Drain, DrainToFile, DrainToBytes) binds it to a sink. Each stage then runs
// in its own goroutine and adjacent stages are joined by io.Pipe, so memory
// per hop stays bounded whatever the payload size.
//
// # Stages
//
//   - Hash: pass-through digest (MD5, SHA-1, SHA-256, SHA-512, BLAKE2b-256, XXH64)
//   - Encrypt / Decrypt: AES-CBC with PKCS#7 padding, ChaCha20
//   - Compress / Decompress: gzip, zstd, lz4
//   - Base64Encode / Base64Decode
//
// # Usage
//
//	digest, _ := transform.Hash(transform.SHA256)
//	gz, _ := transform.Compress(transform.Gzip, 0)
//	pipe, _ := transform.FromReader(file, true)
//	out, err := pipe.Then(digest).Then(gz).DrainToBytes(ctx)
//	fmt.Println(digest.Hex())
//
// The first failing stage aborts the chain: every other hop is unblocked,
// the owned source and sink are released, and the error names the stage.
package transform
