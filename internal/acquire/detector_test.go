package acquire

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitelens/internal/scrape"
)

func TestHeuristicShouldPromote(t *testing.T) {
	t.Parallel()

	richText := strings.Repeat("Plenty of server rendered prose about widgets. ", 20)
	tests := []struct {
		name   string
		markup string
		want   bool
	}{
		{name: "empty body", markup: "  ", want: true},
		{name: "react root", markup: `<html><body><div id="root"></div>` + richText + `</body></html>`, want: true},
		{name: "noscript banner", markup: `<html><body><noscript>You need to enable JavaScript to run this app.</noscript>` + richText + `</body></html>`, want: true},
		{name: "script heavy", markup: `<html><body><script>` + strings.Repeat("x", 800) + `</script><p>hi</p></body></html>`, want: true},
		{name: "thin text", markup: `<html><body><p>Loading</p></body></html>`, want: true},
		{name: "server rendered", markup: `<html><body><main>` + richText + `</main></body></html>`, want: false},
	}

	detector := NewHeuristic(0, 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := detector.ShouldPromote(scrape.AcquisitionResult{Markup: tt.markup})
			require.Equal(t, tt.want, got)
		})
	}
}

func TestHeuristicIgnoresPlaceholder(t *testing.T) {
	t.Parallel()

	require.False(t, NewHeuristic(0, 0).ShouldPromote(Placeholder("https://example.com")))
}

func TestVisibleTextSkipsScripts(t *testing.T) {
	t.Parallel()

	got := visibleText(`<html><head><title>t</title></head><body><script>var x=1</script><p>Hello</p><style>p{}</style></body></html>`)
	require.Equal(t, "Hello ", got)
}
