package extract

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestColorsCanonicalFirstSeenOrder(t *testing.T) {
	t.Parallel()

	blob := `body{color:#FFF;background:rgb(255, 0, 0)} a{border-color:hsl(120, 100%, 50%)} i{color:#ffffff}`
	require.Equal(t, []string{"#ffffff", "#ff0000", "#00ff00"}, Colors(blob))
}

func TestColorsSkipsEntitiesAndJunk(t *testing.T) {
	t.Parallel()

	blob := `It&#039;s here. rgb(12, 34) #ggg #abcd`
	require.Empty(t, Colors(blob))
}

func TestColorsCapped(t *testing.T) {
	t.Parallel()

	blob := ""
	for i := 0; i < 60; i++ {
		blob += fmt.Sprintf(" rgb(%d, 10, 10)", i)
	}
	colors := Colors(blob)
	require.Len(t, colors, MaxColors)
	require.Equal(t, "#000a0a", colors[0])

	again := Colors(blob + " " + colors[3])
	require.Equal(t, colors, again)
}

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"#abc":                      "#aabbcc",
		"#12AB9F":                   "#12ab9f",
		"rgb(10, 20, 30)":           "#0a141e",
		"rgba(0, 0, 0, 0)":          "#000000",
		"RGB(300, 0, 0)":            "#ff0000",
		"hsl(0, 100%, 50%)":         "#ff0000",
		"hsla(240, 100%, 50%, 0.3)": "#0000ff",
	}
	for in, want := range tests {
		got, ok := Canonicalize(in)
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}

	_, ok := Canonicalize("rebeccapurple")
	require.False(t, ok)
}

func TestCanonicalizeRGBRoundTrip(t *testing.T) {
	t.Parallel()

	for _, c := range []string{"#abc", "#12ab9f", "rgb(1, 2, 3)", "rgba(255, 255, 255, 0.5)", "hsl(200, 50%, 40%)", "#000", "#fefefe"} {
		canon, ok := Canonicalize(c)
		require.True(t, ok, c)
		rgb, ok := RGBString(c)
		require.True(t, ok, c)
		back, ok := Canonicalize(rgb)
		require.True(t, ok, rgb)
		require.Equal(t, canon, back, c)
	}
}
