// Package paths provides path resolution utilities.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// AppDir is the directory name used under the user's config directory.
const AppDir = "noajax"

// ResolveDataDir resolves where noajax keeps its database and config file.
//
//   - "" -> "<user config dir>/noajax", or "./.noajax" when the user config
//     dir is unknown
//   - "~/x" -> "<home>/x"
//   - anything else is cleaned and returned as-is
func ResolveDataDir(path string) string {
	if path == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			return filepath.Join(dir, AppDir)
		}
		return filepath.Join(".", "."+AppDir)
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return filepath.Clean(path)
}
