package platform

import (
	"strings"
)

// AjaxEndpoint is the path of the platform's native asynchronous endpoint,
// relative to the admin base.
const AjaxEndpoint = "admin-ajax.php"

// DefaultAdminPath is where the administrative back-end is mounted.
const DefaultAdminPath = "/wp-admin/"

// Site holds the settings URL builders and header helpers read from.
type Site struct {
	// BaseURL is the public site URL, e.g. "https://example.com".
	BaseURL string
	// Charset is the site charset announced in Content-Type headers.
	Charset string
	// AdminPath is the mount point of the administrative back-end.
	AdminPath string
	// Admin is true when this process serves the administrative context.
	Admin bool
	// BlogID identifies the site in a multi-site setup.
	BlogID int
}

func (s Site) withDefaults() Site {
	if s.Charset == "" {
		s.Charset = "UTF-8"
	}
	if s.AdminPath == "" {
		s.AdminPath = DefaultAdminPath
	}
	if s.BlogID == 0 {
		s.BlogID = 1
	}
	return s
}

// HomeURL joins path onto the site base URL with exactly one slash between
// them. The trailing slash of path is preserved.
func (s Site) HomeURL(path string) string {
	base := strings.TrimRight(s.BaseURL, "/")
	if path == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(path, "/")
}

// rawAdminURL builds the unfiltered admin URL for path.
func (s Site) rawAdminURL(path string) string {
	admin := "/" + strings.Trim(s.AdminPath, "/") + "/"
	return s.HomeURL(admin + strings.TrimLeft(path, "/"))
}
