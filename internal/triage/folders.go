package triage

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nhle/mail-triage/internal/mailbox"
	"github.com/nhle/mail-triage/internal/model"
)

// Folder names created under INBOX when missing.
const (
	FolderJunk          = "Junk"
	FolderSpam          = "Spam"
	FolderArchived      = "Archived"
	FolderNotifications = "Notifications"
)

// FolderSet holds the destinations resolved for one cycle. A nil entry
// means the folder could neither be found nor created.
type FolderSet struct {
	Junk          *mailbox.Folder
	Archived      *mailbox.Folder
	Notifications *mailbox.Folder

	// Categories maps category name to its folder.
	Categories map[string]*mailbox.Folder
}

// Category returns the folder for name. Exact names win over a
// case-insensitive match. ok is false when the category is unknown.
func (fs FolderSet) Category(name string) (*mailbox.Folder, bool) {
	if f, ok := fs.Categories[name]; ok {
		return f, true
	}
	for key, f := range fs.Categories {
		if strings.EqualFold(key, name) {
			return f, true
		}
	}
	return nil, false
}

// ResolveFolders finds or creates every destination. Failures are logged
// with their consequence and leave the entry nil.
func ResolveFolders(ctx context.Context, sess mailbox.Session, categories []model.CategoryConfig, log zerolog.Logger) FolderSet {
	fs := FolderSet{Categories: make(map[string]*mailbox.Folder)}

	fs.Junk = findOrCreate(ctx, sess, log, FolderJunk, FolderJunk, FolderSpam)
	if fs.Junk == nil {
		log.Warn().Msg("could not find or create Junk folder; items rated 0 will be marked as read instead")
	}

	fs.Archived = findOrCreate(ctx, sess, log, FolderArchived, FolderArchived)
	if fs.Archived == nil {
		log.Warn().Msg("could not find or create Archived folder; items rated 1-3 will be marked as read instead")
	}

	fs.Notifications = findOrCreate(ctx, sess, log, FolderNotifications, FolderNotifications)
	if fs.Notifications == nil {
		log.Warn().Msg("could not find or create Notifications folder; notification alerts will be left in inbox")
	}

	for _, c := range categories {
		name := c.Folder()
		f := findSubfolder(ctx, sess, log, name)
		if f == nil {
			created, err := sess.CreateFolder(ctx, name)
			if err != nil {
				log.Warn().Err(err).Str("category", c.Name).Str("folder", name).
					Msg("could not create category folder; messages in this category will use rating-based routing")
			} else {
				log.Info().Str("category", c.Name).Str("folder", created.Name).Msg("created category folder")
				f = created
			}
		}
		fs.Categories[c.Name] = f
	}

	return fs
}

// findOrCreate tries each top-level name, then each name as an INBOX
// child, and finally creates create under INBOX.
func findOrCreate(ctx context.Context, sess mailbox.Session, log zerolog.Logger, create string, names ...string) *mailbox.Folder {
	for _, name := range names {
		f, err := sess.Folder(ctx, name)
		if err != nil {
			log.Debug().Err(err).Str("folder", name).Msg("folder lookup failed")
			continue
		}
		if f != nil {
			return f
		}
	}
	for _, name := range names {
		if f := findSubfolder(ctx, sess, log, name); f != nil {
			return f
		}
	}

	f, err := sess.CreateFolder(ctx, create)
	if err != nil {
		log.Debug().Err(err).Str("folder", create).Msg("folder creation failed")
		return nil
	}
	log.Info().Str("folder", f.Name).Msg("created folder")
	return f
}

func findSubfolder(ctx context.Context, sess mailbox.Session, log zerolog.Logger, name string) *mailbox.Folder {
	f, err := sess.Subfolder(ctx, name)
	if err != nil {
		log.Debug().Err(err).Str("folder", name).Msg("subfolder lookup failed")
		return nil
	}
	return f
}
