// Package assets holds files bundled into the binary.
package assets

import (
	_ "embed"
)

// DefaultStylesheet is the stylesheet shipped in every generated book as
// style/default.css. It targets small greyscale e-ink screens.
//
//go:embed default.css
var DefaultStylesheet []byte
