package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/drgo/vidget"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const defaultServer = "http://localhost:5000"

// cliApp holds the process's IO so tests can drive run with buffers.
type cliApp struct {
	out        io.Writer
	err        io.Writer
	in         io.Reader
	isTerminal bool
	getenv     func(string) string
	// readPassword reads a password without echo. Only used on a terminal.
	readPassword func() (string, error)

	ctx   context.Context
	lines *bufio.Reader
}

// config is the merged result of environment and flags.
type config struct {
	server   string
	timeout  time.Duration
	dataPath string
	verbose  bool
	noColor  bool
}

// workspace bundles everything a command needs for one run.
type workspace struct {
	client  *vidget.Client
	store   *vidget.SQLiteStorage
	view    *termView
	history *vidget.History
	session *vidget.Session
	gate    *vidget.AuthGate
}

func (s *workspace) Close() error { return s.store.Close() }

func main() {
	log.SetFlags(0)
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Warning: could not read .env: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := &cliApp{
		out:        os.Stdout,
		err:        os.Stderr,
		in:         os.Stdin,
		isTerminal: term.IsTerminal(int(os.Stdin.Fd())),
		getenv:     os.Getenv,
		readPassword: func() (string, error) {
			b, err := term.ReadPassword(int(os.Stdin.Fd()))
			return string(b), err
		},
		ctx: ctx,
	}
	if err := app.run(os.Args[1:]); err != nil {
		stop()
		handleError(app.err, err)
	}
}

// handleError prints a concise error and exits.
func handleError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	fmt.Fprintln(w, "Run with -h for usage information.")
	os.Exit(1)
}

func (app *cliApp) run(args []string) error {
	root := app.rootCommand()
	root.SetArgs(args)
	root.SetOut(app.out)
	root.SetErr(app.err)
	ctx := app.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return root.ExecuteContext(ctx)
}

func (app *cliApp) env(key string) string {
	if app.getenv == nil {
		return ""
	}
	return strings.TrimSpace(app.getenv(key))
}

func (app *cliApp) rootCommand() *cobra.Command {
	cfg := &config{}
	var timeoutEnvErr error

	root := &cobra.Command{
		Use:           "vidget",
		Short:         "Turn video page links into download links",
		Version:       vidget.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if timeoutEnvErr != nil && !cmd.Flags().Changed("timeout") {
				return timeoutEnvErr
			}
			if cfg.dataPath == "" {
				dir, err := os.UserConfigDir()
				if err != nil {
					return fmt.Errorf("cannot locate a data directory, use --data: %w", err)
				}
				cfg.dataPath = filepath.Join(dir, "vidget", "vidget.db")
			}
			return nil
		},
	}

	server := app.env("VIDGET_SERVER")
	if server == "" {
		server = defaultServer
	}
	timeout := vidget.DefaultTimeout
	if v := app.env("VIDGET_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			timeoutEnvErr = fmt.Errorf("invalid VIDGET_TIMEOUT %q", v)
		} else {
			timeout = d
		}
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.server, "server", server, "Base URL of the download service (or VIDGET_SERVER)")
	flags.DurationVar(&cfg.timeout, "timeout", timeout, "Timeout for each request to the service (or VIDGET_TIMEOUT)")
	flags.StringVar(&cfg.dataPath, "data", app.env("VIDGET_DATA"), "Path of the local database holding history and session (or VIDGET_DATA)")
	flags.BoolVarP(&cfg.verbose, "verbose", "v", false, "Log requests to stderr")
	flags.BoolVar(&cfg.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		app.downloadCommand(cfg),
		app.historyCommand(cfg),
		app.credentialsCommand(cfg, "login", "Log in to the service"),
		app.credentialsCommand(cfg, "register", "Create an account and log in"),
		app.logoutCommand(cfg),
		app.statusCommand(cfg),
	)
	return root
}

// open builds the client stack for one command and restores the saved
// session. The caller must Close the result.
func (app *cliApp) open(cfg *config, quiet bool, opts ...vidget.Option) (*workspace, error) {
	opts = append([]vidget.Option{vidget.WithTimeout(cfg.timeout)}, opts...)
	if cfg.verbose {
		opts = append(opts, vidget.WithVerboseOutput(app.err))
	}
	client, err := vidget.NewClient(cfg.server, opts...)
	if err != nil {
		return nil, err
	}
	store, err := vidget.OpenSQLite(cfg.dataPath)
	if err != nil {
		return nil, err
	}

	s := &workspace{
		client: client,
		store:  store,
		view:   newTermView(app.out, app.err, quiet, cfg.noColor),
	}
	s.history = vidget.NewHistory(store, s.view, client.Logger())
	s.session = vidget.NewSession(client, store)
	s.session.Load()
	// There are no pages to move between; commands report the outcome.
	nav := vidget.NavigatorFunc(func(p vidget.Page) {
		client.Logger().Printf("Navigate to %s", p)
	})
	s.gate = vidget.NewAuthGate(client, s.view, nav, s.session)
	return s, nil
}

// requireLogin runs the auth check a page load would run.
func requireLogin(ctx context.Context, s *workspace) error {
	err := s.gate.Check(ctx, vidget.PageRoot)
	if err == vidget.ErrNotAuthenticated {
		return fmt.Errorf("%w; run 'vidget login' first", err)
	}
	return err
}

func (app *cliApp) downloadCommand(cfg *config) *cobra.Command {
	var (
		outputDir string
		quiet     bool
	)
	cmd := &cobra.Command{
		Use:   "download [url]",
		Short: "Request a download link for a video page",
		Long: "Request a download link for a video page. With no URL on a terminal, " +
			"prompts for links and submits each line as it is entered.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !app.isTerminal {
				return errors.New("a video URL argument is required")
			}
			var opts []vidget.Option
			var updates chan vidget.TransferProgress
			if outputDir != "" && !quiet {
				updates = make(chan vidget.TransferProgress, 64)
				opts = append(opts, vidget.WithTransferProgress(updates))
			}
			s, err := app.open(cfg, quiet, opts...)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			if err := requireLogin(ctx, s); err != nil {
				return err
			}
			ctrl := vidget.NewController(s.client, s.view, s.history)
			submit := func(rawURL string) error {
				result, err := ctrl.Submit(ctx, rawURL)
				if err != nil || outputDir == "" {
					return err
				}
				return app.save(ctx, s, result, outputDir, updates)
			}

			if len(args) == 1 {
				return submit(args[0])
			}
			return app.prompt(ctx, submit)
		},
	}
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Also save the video into this directory")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not draw progress bars")
	return cmd
}

// save fetches the returned link to disk.
func (app *cliApp) save(ctx context.Context, s *workspace, result *vidget.DownloadResponse, dir string, updates chan vidget.TransferProgress) error {
	stopDrawing := func() {}
	if updates != nil {
		// Updates left over from an earlier failed file.
		for len(updates) > 0 {
			<-updates
		}
		stop := make(chan struct{})
		drawn := s.view.trackTransfer(updates, stop)
		stopDrawing = func() {
			close(stop)
			<-drawn
		}
	}
	path, err := s.client.SaveFile(ctx, result.DownloadURL, dir, result.Title)
	stopDrawing()
	if err != nil {
		return err
	}
	fmt.Fprintf(app.out, "Saved %s\n", path)
	return nil
}

// prompt reads links until EOF, submitting one per line the way the page's
// input field submits on Enter.
func (app *cliApp) prompt(ctx context.Context, submit func(string) error) error {
	fmt.Fprintln(app.out, "Enter a video URL and press Enter. Ctrl-D to quit.")
	for {
		fmt.Fprint(app.out, "> ")
		line, err := app.readLine()
		if err != nil && line == "" {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(app.out)
				return nil
			}
			return err
		}
		// Failures are already on screen; keep prompting.
		_ = submit(line)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (app *cliApp) readLine() (string, error) {
	if app.lines == nil {
		app.lines = bufio.NewReader(app.in)
	}
	line, err := app.lines.ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if err != nil && line != "" && errors.Is(err, io.EOF) {
		return line, nil
	}
	return line, err
}

func (app *cliApp) historyCommand(cfg *config) *cobra.Command {
	var asHTML bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the last downloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.open(cfg, true)
			if err != nil {
				return err
			}
			defer s.Close()

			entries := s.history.Entries()
			if asHTML {
				rows := make([]vidget.HistoryRow, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, vidget.HistoryRow{Title: e.Title, Date: vidget.FormatHistoryDate(e.Date)})
				}
				fmt.Fprintln(app.out, vidget.RenderHistoryHTML(rows))
				return nil
			}
			if len(entries) == 0 {
				fmt.Fprintln(app.out, vidget.NoHistoryText)
				return nil
			}
			for i, e := range entries {
				fmt.Fprintf(app.out, "%2d. %s\n    %s (%s)\n", i+1, e.Title, vidget.FormatHistoryDate(e.Date), humanize.Time(e.Date))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asHTML, "html", false, "Print the history as an HTML fragment")
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete the download history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.open(cfg, true)
			if err != nil {
				return err
			}
			defer s.Close()
			s.history.Clear()
			fmt.Fprintln(app.out, "History cleared.")
			return nil
		},
	})
	return cmd
}

func (app *cliApp) credentialsCommand(cfg *config, name, short string) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				username = app.env("VIDGET_USERNAME")
			}
			if username == "" {
				if !app.isTerminal {
					return errors.New("a username is required (-u or VIDGET_USERNAME)")
				}
				fmt.Fprint(app.out, "Username: ")
				line, err := app.readLine()
				if err != nil {
					return err
				}
				username = strings.TrimSpace(line)
			}
			password, err := app.password()
			if err != nil {
				return err
			}

			s, err := app.open(cfg, true)
			if err != nil {
				return err
			}
			defer s.Close()

			submit := s.gate.Login
			if name == "register" {
				submit = s.gate.Register
			}
			if err := submit(cmd.Context(), username, password); err != nil {
				return err
			}
			fmt.Fprintf(app.out, "Logged in as %s.\n", username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Account name (or VIDGET_USERNAME)")
	return cmd
}

// password takes VIDGET_PASSWORD, then a no-echo prompt on a terminal, then
// one line of stdin.
func (app *cliApp) password() (string, error) {
	if p := app.env("VIDGET_PASSWORD"); p != "" {
		return p, nil
	}
	if app.isTerminal && app.readPassword != nil {
		fmt.Fprint(app.out, "Password: ")
		p, err := app.readPassword()
		fmt.Fprintln(app.out)
		return p, err
	}
	line, err := app.readLine()
	if err != nil && line == "" {
		return "", fmt.Errorf("could not read password: %w", err)
	}
	return line, nil
}

func (app *cliApp) logoutCommand(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.open(cfg, true)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.gate.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(app.out, "Logged out.")
			return nil
		},
	}
}

func (app *cliApp) statusCommand(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the saved session is still valid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.open(cfg, true)
			if err != nil {
				return err
			}
			defer s.Close()
			err = s.gate.Check(cmd.Context(), vidget.PageRoot)
			// A bare ErrNotAuthenticated is the server saying no; a wrapped
			// one means the check itself failed.
			switch err {
			case nil:
				fmt.Fprintf(app.out, "Logged in to %s\n", s.client.BaseURL())
			case vidget.ErrNotAuthenticated:
				fmt.Fprintf(app.out, "Not logged in to %s\n", s.client.BaseURL())
			default:
				return err
			}
			return nil
		},
	}
}
