// Command torrentstreamd is a headless CLI host exercising TorrentAccess
// end to end — the minimal "consumer thread" spec.md's media player would
// otherwise embed.
package main

import (
	"fmt"
	"os"

	"github.com/mindsgn-studio/torrentstream/cmd/torrentstreamd/internal/root"
)

func main() {
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
