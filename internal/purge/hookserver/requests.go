package hookserver

import (
	"github.com/edgecomet/cfpurge/pkg/types"
)

// SwitchThemeRequest is the optional body of POST /hooks/switch-theme
type SwitchThemeRequest struct {
	Theme string `json:"theme"`
}

// CachePurgedRequest is the optional body of POST /hooks/cache-purged
type CachePurgedRequest struct {
	Source string `json:"source"`
}

// TransitionPostStatusRequest is the body of POST /hooks/transition-post-status
type TransitionPostStatusRequest struct {
	OldStatus string               `json:"old_status"`
	NewStatus string               `json:"new_status"`
	Post      types.ChangedContent `json:"post"`
}

// ScheduledDeleteRequest is the body of POST /hooks/scheduled-delete
type ScheduledDeleteRequest struct {
	Posts []types.ChangedContent `json:"posts"`
}

// ContentChangedRequest is the body of POST /hooks/content-changed
type ContentChangedRequest struct {
	Hook string               `json:"hook"`
	Post types.ChangedContent `json:"post"`
}

// PurgeResponse reports whether the purge was accepted by the provider.
// Hooks always answer 202 so the host pipeline never fails on a purge.
type PurgeResponse struct {
	Purged bool `json:"purged"`
}

// MenuNode is the admin bar entry for the one-click purge
type MenuNode struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Href  string   `json:"href"`
	Meta  MenuMeta `json:"meta"`
}

type MenuMeta struct {
	Title string `json:"title"`
}

// StatusResponse is returned by GET /status
type StatusResponse struct {
	DaemonID      string  `json:"daemon_id"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	ZoneID        string  `json:"zone_id,omitempty"`
	ZoneCached    bool    `json:"zone_cached"`
}
