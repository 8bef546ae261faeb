package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/transform"
)

func newPackCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pack <file>",
		Short: "Hash, compress and encrypt a file",
		Long: `pack streams <file> through the configured hash, compression and cipher
stages into <output>/<file>.` + packExt + `. The key is derived from the password
with PBKDF2 and a fresh random salt. The plaintext digest is printed and logged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := resolvePassword(cmd)
			if err != nil {
				return err
			}
			out := c.outputDir(cmd)
			return c.app.RunTask(cmd.Context(), func(ctx context.Context) error {
				return c.pack(ctx, cmd, args[0], out, password)
			})
		},
	}
	cmd.Flags().String(passwordFlag, "", "encryption password (default $"+passwordEnv+")")
	cmd.Flags().StringP(outputFlag, "o", "", "output folder (default transform.output_dir)")
	return cmd
}

func newUnpackCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unpack <file." + packExt + ">",
		Short: "Decrypt and decompress a packed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := resolvePassword(cmd)
			if err != nil {
				return err
			}
			out := c.outputDir(cmd)
			return c.app.RunTask(cmd.Context(), func(ctx context.Context) error {
				return c.unpack(ctx, cmd, args[0], out, password)
			})
		},
	}
	cmd.Flags().String(passwordFlag, "", "decryption password (default $"+passwordEnv+")")
	cmd.Flags().StringP(outputFlag, "o", "", "output folder (default transform.output_dir)")
	return cmd
}

func resolvePassword(cmd *cobra.Command) (string, error) {
	password, _ := cmd.Flags().GetString(passwordFlag)
	if password == "" {
		password = os.Getenv(passwordEnv)
	}
	if password == "" {
		return "", errors.InvalidArgument(passwordFlag, "set --password or "+passwordEnv)
	}
	return password, nil
}

func (c *cli) pack(ctx context.Context, cmd *cobra.Command, file, out, password string) error {
	tc := c.app.Cfg.Transform

	salt := make([]byte, tc.SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return errors.Internal(fmt.Errorf("generate salt: %w", err))
	}
	hdr := packHeader{
		Cipher:     tc.Cipher,
		Codec:      tc.Compression,
		KDFHash:    tc.KDFHash,
		Iterations: uint32(tc.KDFIterations),
		Salt:       salt,
	}
	key, err := hdr.key(password)
	if err != nil {
		return err
	}

	digest, err := transform.Hash(transform.HashAlgorithm(tc.Hash))
	if err != nil {
		return err
	}
	compress, err := transform.Compress(transform.Codec(tc.Compression), tc.CompressionLevel)
	if err != nil {
		return err
	}
	encrypt, err := transform.Encrypt(key)
	if err != nil {
		return err
	}
	header, err := hdr.stage()
	if err != nil {
		return err
	}

	src, err := c.fs.Open(file)
	if err != nil {
		return err
	}
	pipe, err := transform.FromReader(src, true, c.transformOptions()...)
	if err != nil {
		_ = src.Close()
		return err
	}
	path, err := pipe.Then(digest).Then(compress).Then(encrypt).Then(header).
		DrainToFile(ctx, c.fs, out, filepath.Base(file), packExt)
	if err != nil {
		return err
	}

	c.app.Logger.Info("file packed", logger.Fields(
		"source", file,
		"target", path,
		"cipher", key.String(),
		"compression", tc.Compression,
	))
	return c.announce(ctx, cmd.OutOrStdout(), digest, file)
}

func (c *cli) unpack(ctx context.Context, cmd *cobra.Command, file, out, password string) error {
	name, ok := strings.CutSuffix(filepath.Base(file), "."+packExt)
	if !ok || name == "" {
		return errors.InvalidArgument("file", "expected a ."+packExt+" file")
	}

	src, err := c.fs.Open(file)
	if err != nil {
		return err
	}
	hdr, err := readHeader(src)
	if err != nil {
		_ = src.Close()
		return err
	}

	stages, err := unpackStages(hdr, password)
	if err != nil {
		_ = src.Close()
		return err
	}
	digest, err := transform.Hash(transform.HashAlgorithm(c.app.Cfg.Transform.Hash))
	if err != nil {
		_ = src.Close()
		return err
	}

	pipe, err := transform.FromReader(src, true, c.transformOptions()...)
	if err != nil {
		_ = src.Close()
		return err
	}
	for _, s := range stages {
		pipe = pipe.Then(s)
	}
	path, err := pipe.Then(digest).DrainToFile(ctx, c.fs, out, name, "")
	if err != nil {
		return err
	}

	c.app.Logger.Info("file unpacked", logger.Fields("source", file, "target", path))
	return c.announce(ctx, cmd.OutOrStdout(), digest, path)
}

func unpackStages(hdr packHeader, password string) ([]transform.Stage, error) {
	key, err := hdr.key(password)
	if err != nil {
		return nil, err
	}
	decrypt, err := transform.Decrypt(key)
	if err != nil {
		return nil, err
	}
	decompress, err := transform.Decompress(transform.Codec(hdr.Codec))
	if err != nil {
		return nil, err
	}
	return []transform.Stage{decrypt, decompress}, nil
}
