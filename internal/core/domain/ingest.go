package domain

import "time"

// PageStatus is the outcome of processing one crawled page
type PageStatus string

const (
	PageIndexed PageStatus = "indexed"
	PageSkipped PageStatus = "skipped" // fetched but produced no valid chunks
	PageFailed  PageStatus = "failed"  // fetch failed
)

// PageReport records what happened to one visited URL
type PageReport struct {
	URL    string     `json:"url"`
	Title  string     `json:"title,omitempty"`
	Status PageStatus `json:"status"`
	Chunks int        `json:"chunks"`
	Reason string     `json:"reason,omitempty"`
}

// IngestResult summarises one ingestion run
type IngestResult struct {
	Seed      string        `json:"seed"`
	Visited   []string      `json:"visited"`
	Pages     []PageReport  `json:"pages"`
	Chunks    int           `json:"chunks"`
	RecordIDs []string      `json:"record_ids,omitempty"`
	Complete  bool          `json:"complete"`
	DryRun    bool          `json:"dry_run,omitempty"`
	Took      time.Duration `json:"took"`
}

// Count returns the number of pages with the given status
func (r *IngestResult) Count(status PageStatus) int {
	n := 0
	for _, p := range r.Pages {
		if p.Status == status {
			n++
		}
	}
	return n
}

// CrawlStats summarises one traversal
type CrawlStats struct {
	Visited []string `json:"visited"`
	Fetched int      `json:"fetched"`
	Failed  int      `json:"failed"`

	// Failures maps each URL that could not be fetched to the reason
	Failures map[string]string `json:"failures,omitempty"`
}
