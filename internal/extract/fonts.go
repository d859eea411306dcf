package extract

import (
	"regexp"
	"strings"
)

// MaxFonts caps the extracted font list.
const MaxFonts = 30

var (
	googleFontsRe  = regexp.MustCompile(`fonts\.googleapis\.com/css2?\?([^"'>\s)]+)`)
	fontFaceRe     = regexp.MustCompile(`(?is)@font-face\s*\{[^}]*\}`)
	fontFaceNameRe = regexp.MustCompile(`(?i)font-family\s*:\s*([^;}]+)`)
	fontFamilyRe   = regexp.MustCompile(`(?i)font-family\s*:\s*([^;!}\n]+)`)
)

var genericFamilies = map[string]struct{}{
	"inherit": {}, "initial": {}, "unset": {}, "revert": {}, "revert-layer": {},
	"serif": {}, "sans-serif": {}, "monospace": {}, "cursive": {}, "fantasy": {},
	"system-ui": {}, "ui-serif": {}, "ui-sans-serif": {}, "ui-monospace": {},
	"ui-rounded": {}, "emoji": {}, "math": {}, "fangsong": {},
}

// Fonts merges Google Fonts families found in markup and css, @font-face
// declarations and first-choice font-family values from css, then observed
// DOM families. The result is case-insensitively deduplicated and capped.
func Fonts(css, markup string, observed []string) []string {
	fonts := newOrderedSet(MaxFonts, true)
	add := func(name string) {
		name = cleanFamily(name)
		if len([]rune(name)) <= 2 {
			return
		}
		if _, generic := genericFamilies[strings.ToLower(name)]; generic {
			return
		}
		fonts.add(name)
	}

	for _, name := range GoogleFontFamilies(markup + "\n" + css) {
		add(name)
	}
	for _, block := range fontFaceRe.FindAllString(css, -1) {
		if m := fontFaceNameRe.FindStringSubmatch(block); m != nil {
			add(m[1])
		}
	}
	for _, name := range DeclaredFamilies(css) {
		add(name)
	}
	for _, name := range observed {
		add(name)
	}
	return fonts.list()
}

// GoogleFontFamilies parses family parameters from fonts.googleapis.com URLs,
// covering both the css "A|B" form and repeated css2 family parameters.
func GoogleFontFamilies(text string) []string {
	var out []string
	for _, m := range googleFontsRe.FindAllStringSubmatch(text, -1) {
		query := strings.ReplaceAll(m[1], "&amp;", "&")
		for _, param := range strings.Split(query, "&") {
			value, ok := strings.CutPrefix(param, "family=")
			if !ok {
				continue
			}
			for _, family := range strings.Split(value, "|") {
				family, _, _ = strings.Cut(family, ":")
				family = strings.ReplaceAll(family, "+", " ")
				family = strings.ReplaceAll(family, "%20", " ")
				if family = strings.TrimSpace(family); family != "" {
					out = append(out, family)
				}
			}
		}
	}
	return out
}

// DeclaredFamilies returns the first-choice family of every font-family
// declaration in css, skipping generic keywords.
func DeclaredFamilies(css string) []string {
	var out []string
	for _, m := range fontFamilyRe.FindAllStringSubmatch(css, -1) {
		first, _, _ := strings.Cut(m[1], ",")
		name := cleanFamily(first)
		if name == "" {
			continue
		}
		if _, generic := genericFamilies[strings.ToLower(name)]; generic {
			continue
		}
		out = append(out, name)
	}
	return out
}

func cleanFamily(name string) string {
	name = strings.ReplaceAll(name, "&quot;", "")
	name = strings.TrimSpace(name)
	name = strings.Trim(name, `"'`)
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "var(") || strings.HasPrefix(name, "-") {
		return ""
	}
	return name
}
