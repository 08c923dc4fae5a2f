package indexer

// Failure records one document that could not be ingested and why. The rest
// of the run is unaffected.
type Failure struct {
	Path  string `json:"path"`
	Cause string `json:"cause"`
}

// Report summarizes one ingest run.
type Report struct {
	DocsProcessed int       `json:"docs_processed"`
	DocsFailed    int       `json:"docs_failed"`
	ChunksWritten int       `json:"chunks_written"`
	Failures      []Failure `json:"failures,omitempty"`
	DurationMS    int64     `json:"duration_ms"`
}
