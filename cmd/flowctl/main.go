// Command flowctl packs, unpacks and digests files through streamkit
// transform chains, and runs the producer/consumer pipeline demo.
package main

import (
	"context"
	"os"

	"github.com/spf13/afero"
)

func main() {
	root := newRootCommand(&cli{fs: afero.NewOsFs()})
	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
