package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"wp_schema_sync/internal/app"
	"wp_schema_sync/internal/model"
	"wp_schema_sync/internal/notifications"
	"wp_schema_sync/internal/server"
	"wp_schema_sync/internal/session"
	"wp_schema_sync/internal/sheets"
	"wp_schema_sync/internal/telegram"
	"wp_schema_sync/internal/workbook"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// cliUser owns batches started from the run command.
const cliUser = "cli"

type cli struct {
	configPath string
	cfg        *app.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "wp-schema-sync",
		Short:         "Insert or clear schema scripts on WordPress posts, pages and categories from a spreadsheet",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			app.SetupEnvironment()
			cfg, err := app.Load(c.configPath)
			if err != nil {
				return err
			}
			c.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "TOML config file (default $"+app.ConfigEnv+" or ./config.toml)")

	root.AddCommand(c.newBotCmd(), c.newServeCmd(), c.newRunCmd())
	return root
}

func (c *cli) newBot(controller *session.Controller) *telegram.Bot {
	tg := c.cfg.Telegram
	client := telegram.NewClient(tg.BotToken, tg.APIURL)
	return telegram.NewBot(client, controller, tg.AllowedUsers, tg.PollTimeout.Std())
}

func (c *cli) newBotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot with long polling",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.cfg.RequireTelegram(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			notifier := c.cfg.NewNotifier()
			defer drainNotifier(notifier)
			bot := c.newBot(c.cfg.NewController(notifier))

			log.Info().Msg("Starting Telegram bot")
			if err := bot.Poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			log.Info().Msg("Bot stopped")
			return nil
		},
	}
}

func (c *cli) newServeCmd() *cobra.Command {
	var poll bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP upload API and the Telegram webhook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			notifier := c.cfg.NewNotifier()
			defer drainNotifier(notifier)
			controller := c.cfg.NewController(notifier)

			var bot *telegram.Bot
			if c.cfg.Telegram.BotToken != "" {
				bot = c.newBot(controller)
			}

			srv := server.NewServer(ctx, controller, bot, server.Options{
				WebhookSecret: c.cfg.Telegram.WebhookSecret,
				DownloadTTL:   c.cfg.Server.DownloadTTL.Std(),
				Debug:         c.cfg.Server.Debug,
			})

			// without a webhook the bot has to pull its updates
			if bot != nil && c.cfg.Telegram.WebhookSecret == "" && poll {
				go func() {
					if err := bot.Poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
						log.Error().Err(err).Msg("Telegram polling stopped")
					}
				}()
			}

			return srv.Run(ctx, c.cfg.Server.Addr)
		},
	}
	cmd.Flags().BoolVar(&poll, "poll", true, "Long-poll Telegram when no webhook secret is configured")
	return cmd
}

type runOptions struct {
	file          string
	out           string
	spreadsheetID string
	deleteMode    bool
}

func (c *cli) newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process one workbook or Google spreadsheet and write the result",
		Long: "Process one workbook or Google spreadsheet and write the result.\n" +
			"The first Ctrl-C stops the batch after the current row; a second one exits immediately.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.file, "file", "", "Input .xlsx workbook")
	cmd.Flags().StringVar(&opts.out, "out", "", "Result workbook path (default result_<mode>_<id>.xlsx next to the input)")
	cmd.Flags().StringVar(&opts.spreadsheetID, "spreadsheet-id", "", "Read input from and write results to this Google spreadsheet")
	cmd.Flags().BoolVar(&opts.deleteMode, "delete", false, "Clear schema instead of inserting it")
	cmd.MarkFlagsMutuallyExclusive("file", "spreadsheet-id")
	cmd.MarkFlagsOneRequired("file", "spreadsheet-id")
	return cmd
}

func (c *cli) run(ctx context.Context, out io.Writer, opts runOptions) error {
	mode := model.ModeInsert
	if opts.deleteMode {
		mode = model.ModeDelete
	}

	var (
		tables       []workbook.Table
		sheetsClient *sheets.Client
		source       string
		err          error
	)
	if opts.spreadsheetID != "" {
		sheetsClient, err = sheets.NewClient(ctx, c.cfg.Google.CredentialsFile)
		if err != nil {
			return err
		}
		tables, err = sheets.ReadTables(ctx, sheetsClient, opts.spreadsheetID)
		source = "sheets:" + opts.spreadsheetID
	} else {
		tables, err = workbook.ReadFile(opts.file)
		source = "file:" + filepath.Base(opts.file)
	}
	if err != nil {
		return err
	}

	batch, err := workbook.ParseBatch(tables, mode, c.cfg.FallbackAccount())
	if err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}

	notifier := c.cfg.NewNotifier()
	defer drainNotifier(notifier)
	controller := c.cfg.NewController(notifier)

	stopSignals := cancelOnInterrupt(controller)
	defer stopSignals()

	replier := &consoleReplier{out: out, path: opts.out}
	if opts.out == "" && opts.file != "" {
		replier.dir = filepath.Dir(opts.file)
	}

	table, err := controller.RunBatch(ctx, cliUser, mode, batch, replier, source)
	if err != nil {
		return err
	}

	if sheetsClient != nil {
		if err := sheets.WriteResults(ctx, sheetsClient, opts.spreadsheetID, table); err != nil {
			return fmt.Errorf("failed to write results to spreadsheet: %w", err)
		}
		fmt.Fprintf(out, "Results written to spreadsheet %s\n", opts.spreadsheetID)
	}
	return nil
}

// drainNotifier waits for queued notifications and logs how delivery went.
func drainNotifier(notifier *notifications.Client) {
	notifier.Wait()
	if !notifier.Enabled() {
		return
	}
	sent, failed := notifier.GetMetrics()
	event := log.Info()
	if failed > 0 {
		event = log.Warn()
	}
	event.Int64("sent", sent).Int64("failed", failed).Msg("Notifications delivered")
}

// cancelOnInterrupt turns the first SIGINT into a cooperative cancel of the
// running batch. A second SIGINT exits.
func cancelOnInterrupt(controller *session.Controller) (stop func()) {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		interrupted := false
		for {
			select {
			case <-done:
				return
			case sig := <-signals:
				if interrupted {
					log.Warn().Str("signal", sig.String()).Msg("Second interrupt, exiting")
					os.Exit(130)
				}
				interrupted = true
				if controller.Cancel(cliUser) {
					log.Warn().Msg("Cancelling after the current row; interrupt again to exit now")
				}
			}
		}
	}()

	return func() {
		signal.Stop(signals)
		close(done)
	}
}

// consoleReplier prints progress lines and saves the result workbook.
type consoleReplier struct {
	out io.Writer
	// path overrides the file name chosen by the batch; dir places it.
	// With neither set, only the summary is printed.
	path string
	dir  string
}

func (r *consoleReplier) Text(_ context.Context, text string) error {
	_, err := fmt.Fprintln(r.out, text)
	return err
}

func (r *consoleReplier) Document(_ context.Context, filename string, data []byte, caption string) error {
	if r.path == "" && r.dir == "" {
		_, err := fmt.Fprintln(r.out, caption)
		return err
	}

	path := r.path
	if path == "" {
		path = filepath.Join(r.dir, filename)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	_, err := fmt.Fprintf(r.out, "%s\nResult saved to %s\n", caption, path)
	return err
}
