// Package scrape defines core types shared across the acquisition, extraction
// and persistence subsystems.
package scrape

import (
	"time"
)

// JobStatus represents the lifecycle state of a scrape job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusScraping  JobStatus = "scraping"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Mode selects which acquisition strategy a run starts with.
type Mode string

// Supported acquisition modes.
const (
	ModeFast Mode = "fast"
	ModeDeep Mode = "deep"
	ModeAuto Mode = "auto"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeFast, ModeDeep, ModeAuto:
		return true
	default:
		return false
	}
}

// Job is the record persisted for each submitted scrape request.
type Job struct {
	ID          string     `json:"id"`
	URL         string     `json:"url"`
	Mode        Mode       `json:"mode"`
	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	TotalAssets int        `json:"total_assets"`
	ErrorText   string     `json:"error_text,omitempty"`
	ArtifactURL string     `json:"artifact_url,omitempty"`
}

// JobFields carries the optional columns written alongside a status change.
type JobFields struct {
	At          time.Time
	TotalAssets int
	ErrorText   string
	ArtifactURL string
}

// AcquisitionResult is the raw bundle produced by exactly one acquisition
// strategy. It is treated as immutable once returned.
type AcquisitionResult struct {
	URL          string
	Strategy     string
	Markup       string
	InlineCSS    string
	ImageURLs    []string
	FontFamilies []string
	FontFiles    []string
	ColorTokens  []string
	Stylesheets  []string
	Partial      bool
	Placeholder  bool
}

// Metadata is the document-level metadata block.
type Metadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Favicon     string   `json:"favicon"`
}

// Image is an <img> element found in the markup.
type Image struct {
	Src string `json:"src"`
	Alt string `json:"alt"`
}

// Links holds classified anchors. Every accepted href lands in exactly one list.
type Links struct {
	Internal   []string `json:"internal"`
	External   []string `json:"external"`
	Social     []string `json:"social"`
	TotalCount int      `json:"total_count"`
}

// Headings groups heading text by level.
type Headings struct {
	H1 []string `json:"h1"`
	H2 []string `json:"h2"`
	H3 []string `json:"h3"`
	H4 []string `json:"h4"`
	H5 []string `json:"h5"`
	H6 []string `json:"h6"`
}

// Content is the textual structure of the page.
type Content struct {
	Headings   Headings `json:"headings"`
	Paragraphs []string `json:"paragraphs"`
	Summary    string   `json:"summary"`
	Links      Links    `json:"links"`
	Images     []Image  `json:"images"`
}

// ExtractedDocument is derived deterministically from an AcquisitionResult.
type ExtractedDocument struct {
	Metadata     Metadata `json:"metadata"`
	Colors       []string `json:"colors"`
	Fonts        []string `json:"fonts"`
	Technologies []string `json:"technologies"`
	Content      Content  `json:"content"`
}

// AssetRecord describes one attempted asset materialization. PersistedURL is
// empty when the attempt failed.
type AssetRecord struct {
	SourceURL    string `json:"source_url"`
	PersistedURL string `json:"persisted_url,omitempty"`
	Key          string `json:"key,omitempty"`
	ContentType  string `json:"content_type,omitempty"`
	Bytes        int64  `json:"bytes,omitempty"`
}

// Succeeded reports whether the asset was persisted.
func (a AssetRecord) Succeeded() bool {
	return a.PersistedURL != ""
}

// Severity classifies a LogEntry.
type Severity string

// Supported log severities.
const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"
)

// LogEntry is one append-only line of a job's log.
type LogEntry struct {
	JobID     string    `json:"job_id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// DesignIntelligence holds the derived scores.
type DesignIntelligence struct {
	VisualCohesion    string `json:"visualCohesion"`
	TechnicalMaturity string `json:"technicalMaturity"`
	SEOReadiness      int    `json:"seoReadiness"`
}

// URLRef wraps a URL in the artifact's object form.
type URLRef struct {
	URL string `json:"url"`
}

// Result is the durable JSON artifact persisted per job.
type Result struct {
	URL                string             `json:"url"`
	Metadata           Metadata           `json:"metadata"`
	Colors             []string           `json:"colors"`
	Fonts              []string           `json:"fonts"`
	Images             []URLRef           `json:"images"`
	CSSFiles           []URLRef           `json:"cssFiles"`
	JSFiles            []URLRef           `json:"jsFiles"`
	HTML               string             `json:"html"`
	Links              []string           `json:"links"`
	Technologies       []string           `json:"technologies"`
	DesignIntelligence DesignIntelligence `json:"designIntelligence"`
	Content            Content            `json:"content"`
	Strategy           string             `json:"strategy"`
	AcquisitionFailed  bool               `json:"acquisitionFailed,omitempty"`
}

// Findings is the structured record written to the job store.
type Findings struct {
	JobID        string
	URL          string
	Metadata     Metadata
	Colors       []string
	Fonts        []string
	Technologies []string
	Scores       DesignIntelligence
	RecordedAt   time.Time
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	URL       string
	Mode      Mode
	Submitted int64
}
