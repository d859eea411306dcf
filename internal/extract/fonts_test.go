package extract

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFontsFontFaceAndGoogleFonts(t *testing.T) {
	t.Parallel()

	css := `@font-face{font-family:"Brand Sans";}`
	markup := `<link href="https://fonts.googleapis.com/css?family=Roboto|Open+Sans" rel="stylesheet">`

	fonts := Fonts(css, markup, nil)
	require.Subset(t, fonts, []string{"Brand Sans", "Roboto", "Open Sans"})
	require.Len(t, fonts, 3)
}

func TestFontsGoogleCSS2(t *testing.T) {
	t.Parallel()

	markup := `<link href="https://fonts.googleapis.com/css2?family=Playfair+Display:wght@400;700&amp;family=Lato&amp;display=swap">`
	require.Equal(t, []string{"Playfair Display", "Lato"}, GoogleFontFamilies(markup))
}

func TestFontsGenericDeclarations(t *testing.T) {
	t.Parallel()

	css := `body{font-family: inherit} h1{font-family: 'Inter', sans-serif}
	code{font-family: monospace} p{font-family:var(--body-font), serif} nav{font-family: system-ui}`
	require.Equal(t, []string{"Inter"}, Fonts(css, "", nil))
}

func TestFontsMergesObservedAndDedupes(t *testing.T) {
	t.Parallel()

	fonts := Fonts(`h1{font-family:"Inter"}`, "", []string{"inter", "UI", "Arial", "arial", ""})
	require.Equal(t, []string{"Inter", "Arial"}, fonts)
}

func TestFontsCapped(t *testing.T) {
	t.Parallel()

	var observed []string
	for i := 0; i < 45; i++ {
		observed = append(observed, fmt.Sprintf("Family %02d", i))
	}
	fonts := Fonts("", "", observed)
	require.Len(t, fonts, MaxFonts)
	require.Equal(t, "Family 00", fonts[0])
}
