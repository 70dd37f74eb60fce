// Package logo contains logos that can be used with a framebuffer console.
package logo

//go:generate go run gophercore/tools/makelogo -var-name bootLogo -align center -out boot_logo_gen.go boot_logo.png

import "image/color"

// availableLogos tracks the compiled-in logo images. Each generated logo
// file appends itself to this list from an init block; see the go:generate
// directive above and tools/makelogo.
var availableLogos []*Image

// Alignment defines the supported horizontal alignments for a console logo.
type Alignment uint8

const (
	// AlignLeft aligns the logo to the left side of the console.
	AlignLeft Alignment = iota

	// AlignCenter aligns the logo to the center of the console.
	AlignCenter

	// AlignRight aligns the logo to the right side of the console.
	AlignRight
)

// Image describes an 8bpp image with
type Image struct {
	// The width and height of the logo in pixels.
	Width  uint32
	Height uint32

	// Align specifies the horizontal alignment for the logo.
	Align Alignment

	// TransparentIndex defines a color index that will be treated as
	// transparent when drawing the logo.
	TransparentIndex uint8

	// The palette for the logo. The console remaps the palette
	// entries to the end of its own palette.
	Palette []color.RGBA

	// The logo data comprises of Width*Height bytes where each byte
	// represents an index in the logo palette.
	Data []uint8
}

// BestFit returns the logo whose height is the largest one not exceeding a
// tenth of the console height, so the logo never dominates the display.
// When no logo is small enough the first (smallest) available logo is
// returned; when no logos are compiled in, BestFit returns nil.
func BestFit(consoleWidth, consoleHeight uint32) *Image {
	if len(availableLogos) == 0 {
		return nil
	}

	best := availableLogos[0]
	maxHeight := consoleHeight / 10
	for _, l := range availableLogos[1:] {
		if l.Height <= maxHeight && l.Height > best.Height {
			best = l
		}
	}
	return best
}
