// Package theme embeds the default public theme.
package theme

import (
	"embed"
	"io/fs"
)

//go:embed dist
var dist embed.FS

// Root returns the embedded theme with the "dist/" prefix stripped.
func Root() fs.FS {
	sub, err := fs.Sub(dist, "dist")
	if err != nil {
		// dist is embedded at build time; Sub only fails on an invalid name.
		panic(err)
	}
	return sub
}
