// makelogo converts a png, jpg or gif image into a Go source file that
// registers the image as an 8bpp boot logo with the kernel's logo registry
// (device/video/console/logo). The logo package's go:generate directive
// invokes it whenever the boot logo artwork changes.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"go/format"
	"image"
	"image/color"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// maxColors bounds the palette: the console remaps logo palette entries to
// the end of its own 256-entry palette, and reserves this many slots.
const maxColors = 16

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[makelogo] error: %s\n", err.Error())
	os.Exit(1)
}

// buildPalette collects the distinct colors used by img into a palette
// whose first entry is always the transparent color.
func buildPalette(img image.Image, transColor color.RGBA) ([]color.RGBA, map[color.RGBA]int, error) {
	var (
		palette         []color.RGBA
		colorToPalIndex = make(map[color.RGBA]int)
	)

	palette = append(palette, transColor)
	colorToPalIndex[palette[0]] = 0

	bounds := img.Bounds()
	for y := 0; y < bounds.Size().Y; y++ {
		for x := 0; x < bounds.Size().X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			c := color.RGBA{R: uint8(r), G: uint8(g), B: uint8(b)}
			if _, exists := colorToPalIndex[c]; exists {
				continue
			}

			colorToPalIndex[c] = len(colorToPalIndex)
			palette = append(palette, c)
		}
	}

	if got := len(palette); got > maxColors {
		return nil, nil, fmt.Errorf("logo should not contain more than %d colors; got %d", maxColors, got)
	}

	return palette, colorToPalIndex, nil
}

// genLogoFile renders the generated Go source: an Image literal plus the
// init block that appends it to the logo registry.
func genLogoFile(img image.Image, transColor color.RGBA, logoVar, align string) ([]byte, error) {
	var (
		buf         bytes.Buffer
		bounds      = img.Bounds()
		logoVarName = fmt.Sprintf("%s%dx%d", logoVar, bounds.Size().X, bounds.Size().Y)
	)

	palette, colorToPalIndex, err := buildPalette(img, transColor)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(&buf, `// Code generated by makelogo. DO NOT EDIT.

package logo

import "image/color"

var %s = Image{
Width: %d,
Height: %d,
Align: %s,
TransparentIndex: 0,
`, logoVarName, bounds.Size().X, bounds.Size().Y, align)

	fmt.Fprint(&buf, "Palette: []color.RGBA{\n")
	for _, c := range palette {
		fmt.Fprintf(&buf, "{R: %d, G: %d, B: %d},\n", c.R, c.G, c.B)
	}
	fmt.Fprint(&buf, "},\n")

	fmt.Fprint(&buf, "Data: []uint8{\n")

	pixelIndex := 0
	for y := 0; y < bounds.Size().Y; y++ {
		for x := 0; x < bounds.Size().X; x, pixelIndex = x+1, pixelIndex+1 {
			if pixelIndex != 0 && pixelIndex%16 == 0 {
				buf.WriteByte('\n')
			}

			r, g, b, _ := img.At(x, y).RGBA()
			colorIndex := colorToPalIndex[color.RGBA{R: uint8(r), G: uint8(g), B: uint8(b)}]

			fmt.Fprintf(&buf, "0x%x, ", colorIndex)
		}
	}
	fmt.Fprint(&buf, "\n},\n}\n\n")

	fmt.Fprintf(&buf, "func init() {\navailableLogos = append(availableLogos, &%s)\n}\n", logoVarName)

	return format.Source(buf.Bytes())
}

// parseTransColor parses an RRGGBB hex triplet.
func parseTransColor(s string) (color.RGBA, error) {
	var c color.RGBA
	if len(s) != 6 {
		return c, fmt.Errorf("invalid transparent color %q; expected an RRGGBB hex triplet", s)
	}
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return c, fmt.Errorf("invalid transparent color %q: %v", s, err)
	}
	return c, nil
}

func runTool() error {
	trans := flag.String("trans", "ff00ff", "the transparent color as an RRGGBB hex triplet")
	logoVar := flag.String("var-name", "bootLogo", "the name prefix for the variable containing the logo data")
	align := flag.String("align", "center", "the horizontal alignment for the logo (left, center or right)")
	output := flag.String("out", "-", "a file to write the generated logo or - to output to STDOUT")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "makelogo: convert a png/jpg or gif image to a 8bpp console logo\n\n")
		fmt.Fprint(os.Stderr, "Usage: makelogo [options] image\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		exit(errors.New("missing image file argument"))
	}

	switch *align {
	case "left":
		*align = "AlignLeft"
	case "center":
		*align = "AlignCenter"
	case "right":
		*align = "AlignRight"
	default:
		exit(errors.New("invalid alignment specification; supported values are: left, center or right"))
	}

	transColor, err := parseTransColor(*trans)
	if err != nil {
		return err
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return err
	}

	logoData, err := genLogoFile(img, transColor, *logoVar, *align)
	if err != nil {
		return err
	}

	switch *output {
	case "-":
		os.Stdout.Write(logoData)
	default:
		fOut, err := os.Create(*output)
		if err != nil {
			return err
		}
		defer fOut.Close()

		fOut.Write(logoData)
	}

	return nil
}

func main() {
	if err := runTool(); err != nil {
		exit(err)
	}
}
