// Package acquire obtains a page's markup and raw style/asset signals using
// either a static fetch or a rendered headless-browser pass.
package acquire

import (
	"context"
	"fmt"
	"strings"

	"github.com/JakeFAU/sitelens/internal/budget"
	"github.com/JakeFAU/sitelens/internal/scrape"
)

// DefaultUserAgent is presented by every acquisition strategy and the downloader.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

// Strategy produces an AcquisitionResult for one URL.
type Strategy interface {
	Name() string
	Acquire(ctx context.Context, req Request) (scrape.AcquisitionResult, error)
}

// Request carries the per-run inputs shared by all strategies.
type Request struct {
	JobID    string
	URL      string
	Mode     scrape.Mode
	Governor *budget.Governor
	Logs     scrape.LogSink
}

func (r Request) log(severity scrape.Severity, format string, args ...any) {
	if r.Logs == nil {
		return
	}
	r.Logs.Append(r.JobID, fmt.Sprintf(format, args...), severity)
}

func (r Request) governor() *budget.Governor {
	if r.Governor == nil {
		return budget.Start(budget.Config{}, nil)
	}
	return r.Governor
}

// srcsetURLs returns the URL part of every srcset candidate. A URL runs to
// the next whitespace, so commas inside data: URLs do not split candidates;
// descriptors run to the next comma. data: candidates are dropped.
func srcsetURLs(srcset string) []string {
	var out []string
	rest := srcset
	for {
		rest = strings.TrimLeft(rest, " \t\n\r\f,")
		if rest == "" {
			return out
		}
		end := strings.IndexAny(rest, " \t\n\r\f")
		if end < 0 {
			end = len(rest)
		}
		raw := rest[:end]
		rest = rest[end:]

		url := strings.TrimRight(raw, ",")
		if url == raw {
			// Skip the descriptors of this candidate.
			if i := strings.IndexByte(rest, ','); i >= 0 {
				rest = rest[i+1:]
			} else {
				rest = ""
			}
		}
		if url != "" && !strings.HasPrefix(strings.ToLower(url), "data:") {
			out = append(out, url)
		}
	}
}
