// Package triage runs one pass over the inbox: resolve folders, classify
// unread messages newest-first and apply the resulting mailbox actions.
package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nhle/mail-triage/internal/classify"
	"github.com/nhle/mail-triage/internal/mailbox"
	"github.com/nhle/mail-triage/internal/model"
)

// Classifier produces a verdict for one message.
type Classifier interface {
	Classify(ctx context.Context, view model.MessageView) (classify.Result, error)
}

// Journal records routing decisions.
type Journal interface {
	RecordDecision(ctx context.Context, d model.Decision) error
}

// Settings controls one cycle.
type Settings struct {
	EmailCount    int
	MaxBodyLength int
	IncludeRead   bool

	// Triggers are case-sensitive subject substrings that bypass
	// classification.
	Triggers []string

	CategoriesEnabled bool
	Categories        []model.CategoryConfig
}

// SettingsFromConfig derives Settings from the application configuration.
func SettingsFromConfig(cfg *model.AppConfig) Settings {
	s := Settings{
		EmailCount:        cfg.Email.EmailCount,
		MaxBodyLength:     cfg.Email.MaxBodyLength,
		IncludeRead:       cfg.Email.IncludeReadEmails,
		Triggers:          cfg.Email.NotificationTriggers,
		CategoriesEnabled: cfg.Categories.Enabled,
	}
	if s.CategoriesEnabled {
		s.Categories = cfg.Categories.EnabledItems()
	}
	return s
}

// Outcome counts what one cycle did.
type Outcome struct {
	CycleID        string
	Examined       int
	Processed      int
	Bypassed       int
	Classified     int
	ParseFailures  int
	ProviderErrors int
	ReadErrors     int
	FetchErrors    int
	Actions        map[Action]int
}

// Runner executes cycles. It holds no state between runs.
type Runner struct {
	dialer     mailbox.Dialer
	classifier Classifier
	journal    Journal
	settings   Settings
	log        zerolog.Logger
	now        func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithJournal records every routed message.
func WithJournal(j Journal) Option {
	return func(r *Runner) { r.journal = j }
}

// WithClock overrides the time source used for journal entries.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a Runner.
func NewRunner(d mailbox.Dialer, c Classifier, s Settings, log zerolog.Logger, opts ...Option) *Runner {
	r := &Runner{
		dialer:     d,
		classifier: c,
		settings:   s,
		log:        log,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one cycle. Only connection, authentication, INBOX and
// enumeration failures are returned; per-message problems are logged and
// counted in the Outcome. The session is always closed.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	out := Outcome{CycleID: uuid.NewString(), Actions: make(map[Action]int)}
	log := r.log.With().Str("cycle_id", out.CycleID).Logger()

	sess, err := r.dialer.Dial(ctx)
	if err != nil {
		return out, fmt.Errorf("connecting to mailbox: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn().Err(err).Msg("disconnecting from mailbox")
		}
	}()

	total, err := sess.OpenInbox(ctx)
	if err != nil {
		return out, fmt.Errorf("opening inbox: %w", err)
	}

	var categories []model.CategoryConfig
	if r.settings.CategoriesEnabled {
		categories = r.settings.Categories
	}
	folders := ResolveFolders(ctx, sess, categories, log)

	log.Info().
		Int("total", total).
		Int("limit", r.settings.EmailCount).
		Bool("include_read", r.settings.IncludeRead).
		Msg("processing inbox")

	for seq := total; seq >= 1 && out.Processed < r.settings.EmailCount; seq-- {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		sum, err := sess.Fetch(ctx, uint32(seq))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, ctxErr
			}
			if mailbox.IsCommandError(err) {
				out.FetchErrors++
				log.Warn().Err(err).Int("seq", seq).Msg("server refused to fetch message; skipping")
				continue
			}
			return out, fmt.Errorf("fetching message %d: %w", seq, err)
		}
		if sum == nil {
			continue
		}
		out.Examined++

		if !r.settings.IncludeRead && (sum.HasFlag(mailbox.FlagSeen) || sum.HasFlag(mailbox.FlagFlagged)) {
			continue
		}

		mlog := log.With().Uint32("uid", sum.UID).Str("subject", sum.Subject).Logger()
		mlog.Info().
			Int("n", out.Processed+1).
			Int("of", r.settings.EmailCount).
			Str("from", sum.From).
			Msg("processing message")

		if r.bypass(ctx, sess, sum, folders, mlog) {
			out.Processed++
			out.Bypassed++
			out.Actions[ActionNotifications]++
			r.record(ctx, mlog, out.CycleID, sum, model.Verdict{}, ActionNotifications, folders.Notifications.Name)
			continue
		}

		if err := r.process(ctx, sess, sum, folders, &out, mlog); err != nil {
			return out, err
		}
		out.Processed++
	}

	log.Info().
		Int("examined", out.Examined).
		Int("processed", out.Processed).
		Int("bypassed", out.Bypassed).
		Int("parse_failures", out.ParseFailures).
		Int("provider_errors", out.ProviderErrors).
		Int("fetch_errors", out.FetchErrors).
		Msg("inbox processed")

	return out, nil
}

// bypass moves notification alerts straight to Notifications. It returns
// false when the message still needs classification.
func (r *Runner) bypass(ctx context.Context, sess mailbox.Session, sum *mailbox.Summary, folders FolderSet, log zerolog.Logger) bool {
	if !matchesTrigger(sum.Subject, r.settings.Triggers) {
		return false
	}
	if folders.Notifications == nil {
		log.Info().Msg("notification detected but Notifications folder is unavailable; classifying instead")
		return false
	}

	if _, err := sess.Move(ctx, sum.UID, folders.Notifications); err != nil {
		log.Warn().Err(err).Msg("failed to move notification; classifying instead")
		return false
	}

	log.Info().Str("folder", folders.Notifications.Name).Msg("moved notification alert")
	return true
}

func matchesTrigger(subject string, triggers []string) bool {
	for _, t := range triggers {
		if t != "" && strings.Contains(subject, t) {
			return true
		}
	}
	return false
}

// process classifies and routes one message. It only returns an error
// when ctx is done.
func (r *Runner) process(ctx context.Context, sess mailbox.Session, sum *mailbox.Summary, folders FolderSet, out *Outcome, log zerolog.Logger) error {
	body, _, err := sess.FetchText(ctx, sum.UID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		out.ReadErrors++
		log.Error().Err(err).Msg("reading message body")
		return nil
	}

	view := model.NewMessageView(sum.Subject, sum.From, sum.Date, body, r.settings.MaxBodyLength)

	res, err := r.classifier.Classify(ctx, view)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		out.ProviderErrors++
		log.Error().Err(err).Msg("completion provider failed; message left untouched")
		r.record(ctx, log, out.CycleID, sum, model.Verdict{}, ActionNone, "provider error: "+err.Error())
		return nil
	}
	out.Classified++

	if res.Status != classify.StatusOK {
		out.ParseFailures++
		log.Error().
			Str("status", res.Status.String()).
			Str("response", model.Truncate(res.Raw, 200)).
			Msg("could not parse rating from model response; message left untouched")
	} else {
		log.Info().Int("rating", *res.Verdict.Rating).Str("category", res.Verdict.Category).Msg("message rated")
	}

	decision := Decide(res.Verdict, folders, r.settings.CategoriesEnabled)
	action, detail := r.apply(ctx, sess, sum.UID, decision, res.Verdict, folders, log)
	out.Actions[action]++
	if res.Status != classify.StatusOK && detail == "" {
		detail = "unparseable response: " + res.Status.String()
	}
	r.record(ctx, log, out.CycleID, sum, res.Verdict, action, detail)

	return nil
}

// apply performs a decision, falling back as documented when a mutation
// fails. It returns the action that took effect and a short detail.
func (r *Runner) apply(ctx context.Context, sess mailbox.Session, uid uint32, d Decision, v model.Verdict, folders FolderSet, log zerolog.Logger) (Action, string) {
	switch d.Action {
	case ActionCategory:
		destUID, err := sess.Move(ctx, uid, d.Folder)
		if err != nil {
			log.Warn().Err(err).Str("category", d.Category).
				Msg("failed to move to category folder; falling back to rating-based action")
			action, detail := r.apply(ctx, sess, uid, decideByRating(v, folders), v, folders, log)
			return action, joinDetail("category move failed", detail)
		}
		log.Info().Str("category", d.Category).Str("folder", d.Folder.Name).Msg("moved to category folder")

		if !d.FlagAfterMove {
			return ActionCategory, d.Folder.Name
		}
		if err := sess.FlagIn(ctx, d.Folder, destUID, mailbox.FlagFlagged); err != nil {
			log.Warn().Err(err).Str("folder", d.Folder.Name).Msg("failed to flag message in category folder")
			return ActionCategory, joinDetail(d.Folder.Name, "flag failed")
		}
		log.Info().Str("folder", d.Folder.Name).Msg("marked as important in category folder")
		return ActionCategory, joinDetail(d.Folder.Name, "flagged")

	case ActionFlag:
		if err := sess.AddFlags(ctx, uid, mailbox.FlagFlagged); err != nil {
			log.Error().Err(err).Msg("failed to flag message")
			return ActionFlag, "flag failed"
		}
		log.Info().Msg("marked as important (flagged)")
		return ActionFlag, ""

	case ActionLeaveUnread:
		log.Info().Msg("left unread")
		return ActionLeaveUnread, ""

	case ActionArchive, ActionJunk:
		return d.Action, r.moveOrMarkSeen(ctx, sess, uid, d, log)

	default:
		return ActionNone, ""
	}
}

// moveOrMarkSeen moves to the decision's folder or marks the message Seen
// when the folder is missing or the move fails.
func (r *Runner) moveOrMarkSeen(ctx context.Context, sess mailbox.Session, uid uint32, d Decision, log zerolog.Logger) string {
	detail := "folder unavailable"
	if d.Folder != nil {
		_, err := sess.Move(ctx, uid, d.Folder)
		if err == nil {
			log.Info().Str("action", string(d.Action)).Str("folder", d.Folder.Name).Msg("moved message")
			return d.Folder.Name
		}
		log.Warn().Err(err).Str("folder", d.Folder.Name).Msg("move failed; marking as read instead")
		detail = "move failed"
	}

	if err := sess.AddFlags(ctx, uid, mailbox.FlagSeen); err != nil {
		log.Error().Err(err).Msg("failed to mark message as read")
		return joinDetail(detail, "mark read failed")
	}
	log.Info().Str("action", string(d.Action)).Msg("marked as read")
	return joinDetail(detail, "marked read")
}

func (r *Runner) record(ctx context.Context, log zerolog.Logger, cycleID string, sum *mailbox.Summary, v model.Verdict, action Action, detail string) {
	if r.journal == nil {
		return
	}
	err := r.journal.RecordDecision(ctx, model.Decision{
		CycleID:   cycleID,
		UID:       sum.UID,
		Subject:   sum.Subject,
		Sender:    sum.From,
		Rating:    v.Rating,
		Category:  v.Category,
		Action:    string(action),
		Detail:    detail,
		CreatedAt: r.now(),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("failed to journal decision")
	}
}

func joinDetail(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "; ")
}
