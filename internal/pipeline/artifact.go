package pipeline

import (
	"github.com/JakeFAU/sitelens/internal/download"
	"github.com/JakeFAU/sitelens/internal/extract"
	"github.com/JakeFAU/sitelens/internal/scrape"
)

// Metadata fallbacks written to the artifact and the findings record.
const (
	DefaultTitle       = "No Title"
	DefaultDescription = "No description found."
)

// ArtifactKey is the object-store key of a job's result document.
func ArtifactKey(jobID string) string {
	return jobID + "/result.json"
}

// BuildResult assembles the durable artifact. When assets were attempted the
// image list carries the re-hosted URLs of the persisted ones; when the download
// phase never ran it carries the discovered candidates.
func BuildResult(
	acq scrape.AcquisitionResult,
	doc scrape.ExtractedDocument,
	assets []scrape.AssetRecord,
	candidates []string,
	scores scrape.DesignIntelligence,
) scrape.Result {
	images := make([]scrape.URLRef, 0, len(candidates))
	if assets != nil {
		for _, rec := range download.Persisted(assets) {
			images = append(images, scrape.URLRef{URL: rec.PersistedURL})
		}
	} else {
		for _, src := range candidates {
			images = append(images, scrape.URLRef{URL: src})
		}
	}

	return scrape.Result{
		URL:                acq.URL,
		Metadata:           finalMetadata(doc.Metadata),
		Colors:             nonNil(doc.Colors),
		Fonts:              nonNil(doc.Fonts),
		Images:             images,
		CSSFiles:           refs(acq.Stylesheets),
		JSFiles:            refs(extract.Scripts(acq.Markup, acq.URL)),
		HTML:               acq.Markup,
		Links:              extract.FlatLinks(doc.Content.Links, acq.URL),
		Technologies:       nonNil(doc.Technologies),
		DesignIntelligence: scores,
		Content:            doc.Content,
		Strategy:           acq.Strategy,
		AcquisitionFailed:  acq.Placeholder,
	}
}

func finalMetadata(meta scrape.Metadata) scrape.Metadata {
	if meta.Title == "" {
		meta.Title = DefaultTitle
	}
	if meta.Description == "" {
		meta.Description = DefaultDescription
	}
	meta.Keywords = nonNil(meta.Keywords)
	return meta
}

func refs(urls []string) []scrape.URLRef {
	out := make([]scrape.URLRef, 0, len(urls))
	for _, u := range extract.Unique(urls) {
		out = append(out, scrape.URLRef{URL: u})
	}
	return out
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
