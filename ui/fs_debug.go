//go:build debug

package ui

import (
	"io/fs"
	"os"
)

// Assets returns a live filesystem rooted at ui/ (debug: reads from disk
// so template and asset edits show up without recompiling).
func Assets() fs.FS {
	return os.DirFS("ui")
}
