// mailtriage classifies unread IMAP mail with a language model and files it
// by importance and category.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

const usage = `usage: mailtriage [flags] <command> [command flags]

commands:
  run      poll the mailbox and serve the health endpoint (default)
  once     run a single cycle and exit
  check    verify configuration, AI provider and mailbox login
  history  show recent routing decisions from the journal
  prune    delete old journal entries
  setup    interactive configuration

flags:
`

func main() {
	configPath := flag.String("config", "", "Path to config file (default ~/.config/mailtriage/config.yaml)")
	envFile := flag.String("env-file", ".env", "Path to env file, ignored when missing")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "loading %s: %v\n", *envFile, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, args := "run", flag.Args()
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "run":
		err = runDaemon(ctx, *configPath)
	case "once":
		err = runOnce(ctx, *configPath)
	case "check":
		err = runCheck(ctx, *configPath)
	case "history":
		err = runHistory(ctx, *configPath, args)
	case "prune":
		err = runPrune(ctx, *configPath, args)
	case "setup":
		err = runSetup(*configPath)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "mailtriage:", err)
		os.Exit(1)
	}
}
