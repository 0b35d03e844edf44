package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mail-triage/internal/classify"
	"github.com/nhle/mail-triage/internal/completion"
	"github.com/nhle/mail-triage/internal/credential"
	"github.com/nhle/mail-triage/internal/health"
	"github.com/nhle/mail-triage/internal/logging"
	"github.com/nhle/mail-triage/internal/mailbox"
	"github.com/nhle/mail-triage/internal/model"
	"github.com/nhle/mail-triage/internal/prompt"
	"github.com/nhle/mail-triage/internal/report"
	"github.com/nhle/mail-triage/internal/setup"
	"github.com/nhle/mail-triage/internal/store"
	"github.com/nhle/mail-triage/internal/sync"
	"github.com/nhle/mail-triage/internal/triage"
)

const shutdownTimeout = 5 * time.Second

// service is everything a cycle needs, built once at startup.
type service struct {
	cfg      *model.AppConfig
	log      zerolog.Logger
	dialer   *mailbox.IMAPDialer
	provider completion.Provider
	journal  *store.SQLiteStore
	live     *health.Liveness
	poller   *sync.Poller
}

func configPathOrDefault(path string) string {
	if path == "" {
		return model.DefaultConfigPath()
	}
	return path
}

// loadConfig reads, resolves and validates the configuration. Any error
// here is fatal.
func loadConfig(path string) (*model.AppConfig, error) {
	path = configPathOrDefault(path)

	cfg, err := model.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ResolveSecrets(credential.Resolve); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s:\n%w", path, err)
	}
	return cfg, nil
}

func newService(configPath string) (*service, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.Log)

	provider, err := completion.New(cfg.AI, logging.Component(log, "completion"))
	if err != nil {
		return nil, err
	}

	svc := &service{
		cfg:      cfg,
		log:      log,
		provider: provider,
		dialer: mailbox.NewIMAPDialer(
			cfg.Email.Host, cfg.Email.Port, cfg.Email.Username, cfg.Email.Password, cfg.Email.TLS,
		),
		live: health.NewLiveness(),
	}

	var opts []triage.Option
	if cfg.Journal.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Journal.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
		svc.journal, err = store.NewSQLiteStore(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("opening journal: %w", err)
		}
		opts = append(opts, triage.WithJournal(svc.journal))
	}

	builder := prompt.NewBuilder(prompt.FromConfig(cfg.AI, cfg.Categories))
	timeout := time.Duration(cfg.AI.RequestTimeoutSec) * time.Second
	classifier := classify.New(provider, builder, cfg.Categories.Enabled, timeout)

	runner := triage.NewRunner(svc.dialer, classifier, triage.SettingsFromConfig(cfg),
		logging.Component(log, "triage"), opts...)
	svc.poller = sync.New(runner, svc.live, sync.ConfigFromService(cfg.Service),
		logging.Component(log, "poller"))

	log.Info().
		Str("email_host", cfg.Email.Host).
		Str("ai_provider", provider.Name()).
		Bool("categories", cfg.Categories.Enabled).
		Bool("journal", svc.journal != nil).
		Msg("mailtriage configured")

	return svc, nil
}

func (s *service) Close() {
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.log.Warn().Err(err).Msg("closing journal")
		}
	}
}

func runDaemon(ctx context.Context, configPath string) error {
	svc, err := newService(configPath)
	if err != nil {
		return err
	}
	defer svc.Close()

	checker := health.NewChecker(svc.live, svc.cfg.Email.Host, svc.provider.Name())
	app := health.NewApp(health.NewHandler(checker, svc.poller))

	addr := ":" + strconv.Itoa(svc.cfg.Service.HealthCheckPort)
	errCh := make(chan error, 1)
	go func() {
		svc.log.Info().Str("addr", addr).Msg("health endpoint listening")
		if err := app.Listen(addr); err != nil {
			errCh <- fmt.Errorf("health server: %w", err)
		}
	}()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				svc.poller.RefreshNow()
			}
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		svc.poller.Run(ctx)
		close(done)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		svc.log.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		svc.log.Error().Err(runErr).Msg("health server stopped")
		cancel()
	}
	<-done

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		svc.log.Warn().Err(err).Msg("shutting down health server")
	}
	return runErr
}

func runOnce(ctx context.Context, configPath string) error {
	svc, err := newService(configPath)
	if err != nil {
		return err
	}
	defer svc.Close()

	out, err := svc.poller.RunOnce(ctx)
	if err != nil {
		return err
	}

	counts := make(map[string]int, len(out.Actions))
	for a, n := range out.Actions {
		counts[string(a)] = n
	}
	title := fmt.Sprintf("Cycle %s: %d processed", out.CycleID, out.Processed)
	return report.Counts(os.Stdout, title, counts)
}

func runCheck(ctx context.Context, configPath string) error {
	path := configPathOrDefault(configPath)
	var steps []report.Step

	cfg, err := loadConfig(path)
	steps = append(steps, report.Step{Name: "config", Detail: path, Err: err})
	if err == nil {
		steps = append(steps, checkProvider(cfg), checkMailbox(ctx, cfg))
		if cfg.Journal.Path != "" {
			steps = append(steps, checkJournal(ctx, cfg.Journal.Path))
		}
	}

	failed, err := report.Checks(os.Stdout, steps)
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

func checkProvider(cfg *model.AppConfig) report.Step {
	p, err := completion.New(cfg.AI, zerolog.Nop())
	if err != nil {
		return report.Step{Name: "ai provider", Err: err}
	}
	return report.Step{Name: "ai provider", Detail: p.Name()}
}

func checkMailbox(ctx context.Context, cfg *model.AppConfig) report.Step {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	d := mailbox.NewIMAPDialer(cfg.Email.Host, cfg.Email.Port, cfg.Email.Username, cfg.Email.Password, cfg.Email.TLS)
	sess, err := d.Dial(ctx)
	if err != nil {
		return report.Step{Name: "mailbox", Err: err}
	}
	defer sess.Close()

	total, err := sess.OpenInbox(ctx)
	if err != nil {
		return report.Step{Name: "mailbox", Err: err}
	}
	return report.Step{Name: "mailbox", Detail: fmt.Sprintf("%s, %d messages in INBOX", d.Addr(), total)}
}

func checkJournal(ctx context.Context, path string) report.Step {
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return report.Step{Name: "journal", Err: err}
	}
	defer s.Close()

	ds, err := s.RecentDecisions(ctx, store.DecisionFilter{Limit: 1})
	if err != nil {
		return report.Step{Name: "journal", Err: err}
	}
	detail := path + ", empty"
	if len(ds) > 0 {
		detail = fmt.Sprintf("%s, last entry %s", path, ds[0].CreatedAt.Local().Format(time.RFC3339))
	}
	return report.Step{Name: "journal", Detail: detail}
}

// openJournal opens the configured journal without requiring a complete
// mailbox configuration.
func openJournal(configPath string) (*store.SQLiteStore, error) {
	cfg, err := model.LoadConfig(configPathOrDefault(configPath))
	if err != nil {
		return nil, err
	}
	if cfg.Journal.Path == "" {
		return nil, errors.New("journal is disabled; set journal.path in the config file")
	}
	return store.NewSQLiteStore(cfg.Journal.Path)
}

func runHistory(ctx context.Context, configPath string, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := fs.Int("n", 20, "Number of decisions to show")
	action := fs.String("action", "", "Only show this action")
	since := fs.Duration("since", 24*time.Hour, "Window for the action summary")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := openJournal(configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	from := time.Now().Add(-*since)
	counts, err := s.ActionCounts(ctx, from)
	if err != nil {
		return err
	}
	if err := report.Counts(os.Stdout, "Since "+from.Format("Jan 02 15:04"), counts); err != nil {
		return err
	}

	filter := store.DecisionFilter{Limit: *limit}
	if *action != "" {
		filter.Action = action
	}
	ds, err := s.RecentDecisions(ctx, filter)
	if err != nil {
		return err
	}
	return report.Decisions(os.Stdout, ds)
}

func runPrune(ctx context.Context, configPath string, args []string) error {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	olderThan := fs.Duration("older-than", 30*24*time.Hour, "Delete entries older than this")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := openJournal(configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.Prune(ctx, time.Now().Add(-*olderThan))
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d journal entries\n", n)
	return nil
}

func runSetup(configPath string) error {
	path := configPathOrDefault(configPath)

	base, err := model.LoadConfig(path)
	if err != nil {
		return err
	}

	answers := setup.AnswersFrom(base)
	if err := setup.NewForm(&answers).Run(); err != nil {
		return err
	}

	cfg, err := setup.Apply(answers, base, credential.Set)
	if err != nil {
		return err
	}
	if err := model.SaveConfig(path, cfg); err != nil {
		return err
	}
	for _, key := range setup.StaleSecrets(base, cfg) {
		if err := credential.Delete(key); err != nil {
			fmt.Fprintf(os.Stderr, "could not remove old keyring entry %q: %v\n", key, err)
		}
	}

	fmt.Printf("configuration written to %s\nrun `mailtriage check` to verify it\n", path)
	return nil
}
