//go:build !debug

package ui

import (
	"embed"
	"io/fs"
)

//go:embed templates static
var assetsFS embed.FS

// Assets returns the page templates and static files (production: baked
// into the binary).
func Assets() fs.FS {
	return assetsFS
}
