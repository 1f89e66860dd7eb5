// Package triggers maps host events to purge actions. The functions are pure:
// they decide what to purge and leave execution to the caller.
package triggers

import (
	"github.com/edgecomet/cfpurge/pkg/types"
)

// Trigger names, used as metric labels and audit fields
const (
	SwitchThemeTrigger          = "switch_theme"
	CachePurgedTrigger          = "cache_purged"
	ManualPurgeTrigger          = "manual_purge"
	TransitionPostStatusTrigger = "transition_post_status"
	ScheduledDeleteTrigger      = "scheduled_delete"
)

// Content hooks that also purge the changed item
const (
	HookSavePost         = "save_post"
	HookDeletedPost      = "deleted_post"
	HookTrashedPost      = "trashed_post"
	HookEditPost         = "edit_post"
	HookDeleteAttachment = "delete_attachment"
)

var contentHooks = map[string]bool{
	HookSavePost:         true,
	HookDeletedPost:      true,
	HookTrashedPost:      true,
	HookEditPost:         true,
	HookDeleteAttachment: true,
}

// Action is the purge a trigger asks for: the whole zone, or the URLs
// affected by each of Contents.
type Action struct {
	Trigger  string
	Full     bool
	Contents []types.ChangedContent
}

func full(trigger string) (Action, bool) {
	return Action{Trigger: trigger, Full: true}, true
}

// SwitchTheme purges the whole zone.
func SwitchTheme() (Action, bool) {
	return full(SwitchThemeTrigger)
}

// CachePurged purges the whole zone when another cache layer reports a flush.
// source names the reporting subsystem and is informational only.
func CachePurged(source string) (Action, bool) {
	return full(CachePurgedTrigger)
}

// ManualPurge purges the whole zone on an admin request.
func ManualPurge() (Action, bool) {
	return full(ManualPurgeTrigger)
}

// TransitionPostStatus purges the item on every status change, and on saves
// of published content. A save that keeps a non-public status produces no action.
func TransitionPostStatus(oldStatus, newStatus string, content types.ChangedContent) (Action, bool) {
	if oldStatus == newStatus && newStatus != types.StatusPublish {
		return Action{}, false
	}
	return Action{
		Trigger:  TransitionPostStatusTrigger,
		Contents: []types.ChangedContent{content},
	}, true
}

// ScheduledDelete purges every item removed by the deletion sweep.
func ScheduledDelete(contents []types.ChangedContent) (Action, bool) {
	if len(contents) == 0 {
		return Action{}, false
	}
	return Action{
		Trigger:  ScheduledDeleteTrigger,
		Contents: contents,
	}, true
}

// ContentChanged purges the item for the supplementary content hooks.
// Unknown hooks produce no action.
func ContentChanged(hook string, content types.ChangedContent) (Action, bool) {
	if !contentHooks[hook] {
		return Action{}, false
	}
	return Action{
		Trigger:  hook,
		Contents: []types.ChangedContent{content},
	}, true
}

// IsContentHook reports whether hook is accepted by ContentChanged.
func IsContentHook(hook string) bool {
	return contentHooks[hook]
}
