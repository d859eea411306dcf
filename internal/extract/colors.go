package extract

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// MaxColors caps the extracted palette.
const MaxColors = 25

var (
	colorTokenRe = regexp.MustCompile(`(?i)#(?:[0-9a-f]{3}){1,2}\b` +
		`|rgba?\(\s*\d+\s*,\s*\d+\s*,\s*\d+\s*(?:,\s*[0-9.]+\s*)?\)` +
		`|hsla?\(\s*\d+(?:\.\d+)?\s*,\s*\d+(?:\.\d+)?%\s*,\s*\d+(?:\.\d+)?%\s*(?:,\s*[0-9.]+\s*)?\)`)
	numberRe = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// Colors scans blob for hex, rgb() and hsl() tokens and returns up to
// MaxColors canonical "#rrggbb" values in first-seen order.
func Colors(blob string) []string {
	palette := newOrderedSet(MaxColors, false)
	for _, loc := range colorTokenRe.FindAllStringIndex(blob, -1) {
		if palette.full() {
			break
		}
		// "&#039;" style entities are not colours.
		if loc[0] > 0 && blob[loc[0]-1] == '&' {
			continue
		}
		if hex, ok := Canonicalize(blob[loc[0]:loc[1]]); ok {
			palette.add(hex)
		}
	}
	return palette.list()
}

// ColorTokens returns every raw colour token in blob without canonicalizing.
func ColorTokens(blob string) []string {
	return colorTokenRe.FindAllString(blob, -1)
}

// Canonicalize converts a single colour token to lowercase "#rrggbb". Alpha
// channels are ignored.
func Canonicalize(token string) (string, bool) {
	token = strings.ToLower(strings.TrimSpace(token))
	switch {
	case strings.HasPrefix(token, "#"):
		c, err := colorful.Hex(token)
		if err != nil {
			return "", false
		}
		return c.Hex(), true
	case strings.HasPrefix(token, "rgb"):
		parts := numberRe.FindAllString(token, -1)
		if len(parts) < 3 {
			return "", false
		}
		c := colorful.Color{
			R: channel(parts[0], 255),
			G: channel(parts[1], 255),
			B: channel(parts[2], 255),
		}
		return c.Hex(), true
	case strings.HasPrefix(token, "hsl"):
		parts := numberRe.FindAllString(token, -1)
		if len(parts) < 3 {
			return "", false
		}
		h, _ := strconv.ParseFloat(parts[0], 64)
		c := colorful.Hsl(math.Mod(h, 360), channel(parts[1], 100), channel(parts[2], 100))
		return c.Clamped().Hex(), true
	default:
		return "", false
	}
}

// RGBString renders a canonical or raw colour token in rgb() notation.
func RGBString(token string) (string, bool) {
	hex, ok := Canonicalize(token)
	if !ok {
		return "", false
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return "", false
	}
	r, g, b := c.RGB255()
	return fmt.Sprintf("rgb(%d, %d, %d)", r, g, b), true
}

// channel parses raw and normalizes it to [0,1] against scale.
func channel(raw string, scale float64) float64 {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return math.Max(0, math.Min(v, scale)) / scale
}
