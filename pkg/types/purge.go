package types

// Wire keys of the purge_cache request body
const (
	PurgeKeyEverything = "purge_everything"
	PurgeKeyFiles      = "files"
)

// Purge kinds used in logs, metrics and audit events
const (
	PurgeKindFull      = "full"
	PurgeKindSelective = "selective"
)

// PurgeRequest is either a full-zone purge or a selective purge of Files.
// Files are opaque strings: duplicates are allowed and nothing is validated locally.
type PurgeRequest struct {
	Everything bool
	Files      []string
}

// FullPurge returns a request that purges the entire zone
func FullPurge() PurgeRequest {
	return PurgeRequest{Everything: true}
}

// SelectivePurge returns a request that purges the given URLs
func SelectivePurge(urls []string) PurgeRequest {
	return PurgeRequest{Files: urls}
}

// Kind returns PurgeKindFull or PurgeKindSelective
func (r PurgeRequest) Kind() string {
	if r.Everything {
		return PurgeKindFull
	}
	return PurgeKindSelective
}

// Params returns the request body. Exactly one of purge_everything or files is set.
func (r PurgeRequest) Params() map[string]any {
	if r.Everything {
		return map[string]any{PurgeKeyEverything: true}
	}
	files := r.Files
	if files == nil {
		files = []string{}
	}
	return map[string]any{PurgeKeyFiles: files}
}
