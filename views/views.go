// Package views embeds the HTML templates and static assets served by the
// web layer.
package views

import "embed"

// Templates holds every page template. Each page is parsed together with
// layout.html at startup.
//
//go:embed templates/*.html
var Templates embed.FS

// Static holds the stylesheet and other assets served under /static/.
//
//go:embed static
var Static embed.FS
