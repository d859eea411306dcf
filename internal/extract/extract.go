package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/sitelens/internal/scrape"
)

// Document runs every extractor over acq. Colour tokens observed by the
// strategy come first so computed styles win the palette cap. Only CSS text
// is scanned for colours, never the whole markup, so hrefs like "#add" and
// element ids stay out of the palette.
func Document(acq scrape.AcquisitionResult) (scrape.ExtractedDocument, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(acq.Markup))
	if err != nil {
		return scrape.ExtractedDocument{}, fmt.Errorf("parse markup: %w", err)
	}

	blob := strings.Join(acq.ColorTokens, "\n") + "\n" + acq.InlineCSS + "\n" + styleText(doc)
	return scrape.ExtractedDocument{
		Metadata:     Metadata(doc, acq.URL),
		Colors:       Colors(blob),
		Fonts:        Fonts(acq.InlineCSS, acq.Markup, acq.FontFamilies),
		Technologies: Technologies(doc, acq.Markup, acq.InlineCSS),
		Content:      Content(doc, acq.URL),
	}, nil
}

// styleText returns the contents of <style> elements and style attributes.
func styleText(doc *goquery.Document) string {
	var b strings.Builder
	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		b.WriteString(s.Text())
		b.WriteString("\n")
	})
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		b.WriteString(s.AttrOr("style", ""))
		b.WriteString(";\n")
	})
	return b.String()
}
