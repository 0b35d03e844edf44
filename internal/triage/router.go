package triage

import (
	"github.com/nhle/mail-triage/internal/mailbox"
	"github.com/nhle/mail-triage/internal/model"
)

// Action is the primary mailbox action chosen for a message.
type Action string

const (
	ActionNone          Action = "none"
	ActionFlag          Action = "flag"
	ActionLeaveUnread   Action = "leave_unread"
	ActionArchive       Action = "archive"
	ActionJunk          Action = "junk"
	ActionCategory      Action = "category"
	ActionNotifications Action = "notifications"
)

// Rating thresholds.
const (
	FlagThreshold  = 7
	LeaveThreshold = 4
)

// Decision is a routing choice before it is applied.
type Decision struct {
	Action Action

	// Folder is the move destination; nil for Archive/Junk means the
	// folder is unavailable and the message is marked Seen instead.
	Folder *mailbox.Folder

	Category string

	// FlagAfterMove flags the message inside the category folder.
	FlagAfterMove bool
}

// Decide maps a verdict to an action. Without a rating nothing happens,
// even when a category was returned. Otherwise a known category with a
// folder takes precedence over the rating.
func Decide(v model.Verdict, folders FolderSet, categoriesEnabled bool) Decision {
	if !v.HasRating() {
		return Decision{Action: ActionNone}
	}
	if categoriesEnabled && v.Category != "" {
		if f, ok := folders.Category(v.Category); ok && f != nil {
			return Decision{
				Action:        ActionCategory,
				Folder:        f,
				Category:      v.Category,
				FlagAfterMove: *v.Rating >= FlagThreshold,
			}
		}
	}
	return decideByRating(v, folders)
}

// decideByRating expects v to carry a rating.
func decideByRating(v model.Verdict, folders FolderSet) Decision {
	switch r := *v.Rating; {
	case r >= FlagThreshold:
		return Decision{Action: ActionFlag}
	case r >= LeaveThreshold:
		return Decision{Action: ActionLeaveUnread}
	case r >= 1:
		return Decision{Action: ActionArchive, Folder: folders.Archived}
	case r == 0:
		return Decision{Action: ActionJunk, Folder: folders.Junk}
	default:
		return Decision{Action: ActionNone}
	}
}
