package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/riteshshukladev/wrapper/pkg/authclient"
	"github.com/riteshshukladev/wrapper/pkg/httpclient"
)

// ErrUsage is returned for unknown commands and bad flags.
var ErrUsage = errors.New("usage error")

const usage = `usage: authctl <command> [flags]

commands:
  signup   [-name NAME] [-email EMAIL]   create an account and log in
  login    [-email EMAIL]                log in
  whoami                                 show the logged-in user's profile
  refresh                                rotate the session tokens
  logout                                 end the session
  status                                 show the local session state
`

// App runs authctl commands against one persisted session.
type App struct {
	cache *authclient.Cache
	store *authclient.SQLiteStore
	in    *bufio.Reader
	out   io.Writer
}

// NewApp opens the session store and restores any saved session.
func NewApp(ctx context.Context, cfg *Config, in io.Reader, out io.Writer, logger *slog.Logger) (*App, error) {
	store, err := authclient.OpenSQLiteStore(ctx, cfg.SessionDB)
	if err != nil {
		return nil, err
	}

	clientCfg := httpclient.DefaultConfig()
	clientCfg.Timeout = cfg.Timeout
	doer := httpclient.NewCircuitBreakerClient(
		httpclient.New(clientCfg),
		httpclient.DefaultCircuitBreakerConfig("auth-server"),
		nil,
		logger,
	)

	cache, err := authclient.New(cfg.ServerURL,
		authclient.WithStore(store),
		authclient.WithDoer(doer),
		authclient.WithLogger(logger),
		authclient.WithRenewBefore(cfg.RenewBefore),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := cache.Restore(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("restore session: %w", err)
	}

	return &App{cache: cache, store: store, in: bufio.NewReader(in), out: out}, nil
}

// Close stops session renewal and then releases the session store.
func (a *App) Close() error {
	a.cache.Close()
	return a.store.Close()
}

// Run executes one command.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "signup":
		return a.signup(ctx, rest)
	case "login":
		return a.login(ctx, rest)
	case "whoami":
		return a.whoami(ctx)
	case "refresh":
		return a.refresh(ctx)
	case "logout":
		return a.logout(ctx)
	case "status":
		return a.status()
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	default:
		fmt.Fprintf(a.out, "unknown command %q\n\n%s", cmd, usage)
		return ErrUsage
	}
}

func (a *App) parse(name string, args []string, define func(*flag.FlagSet)) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	define(fs)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected arguments %v", ErrUsage, fs.Args())
	}
	return nil
}

func (a *App) signup(ctx context.Context, args []string) error {
	var name, email string
	err := a.parse("signup", args, func(fs *flag.FlagSet) {
		fs.StringVar(&name, "name", "", "display name")
		fs.StringVar(&email, "email", "", "email address")
	})
	if err != nil {
		return err
	}

	if name, err = a.orPrompt(name, "Name"); err != nil {
		return err
	}
	if email, err = a.orPrompt(email, "Email"); err != nil {
		return err
	}
	password, err := promptPassword(a.out)
	if err != nil {
		return err
	}

	if err := a.cache.Signup(ctx, name, email, password); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "registered and logged in as %s\n", a.cache.Session().User.Name)
	return nil
}

func (a *App) login(ctx context.Context, args []string) error {
	var email string
	err := a.parse("login", args, func(fs *flag.FlagSet) {
		fs.StringVar(&email, "email", "", "email address")
	})
	if err != nil {
		return err
	}

	if email, err = a.orPrompt(email, "Email"); err != nil {
		return err
	}
	password, err := promptPassword(a.out)
	if err != nil {
		return err
	}

	if err := a.cache.Login(ctx, email, password); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "logged in as %s\n", a.cache.Session().User.Name)
	return nil
}

func (a *App) whoami(ctx context.Context) error {
	u, err := a.cache.UserData(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "id:      %s\nname:    %s\nemail:   %s\ncreated: %s\n",
		u.ID, u.Name, u.Email, u.CreatedAt.Format(time.RFC3339))
	return nil
}

func (a *App) refresh(ctx context.Context) error {
	if _, err := a.cache.Refresh(ctx); err != nil {
		return err
	}
	s := a.cache.Session()
	fmt.Fprintf(a.out, "session renewed, access token expires at %s\n", s.User.ExpiresAt.Format(time.RFC3339))
	return nil
}

func (a *App) logout(ctx context.Context) error {
	if !a.cache.Session().LoggedIn() {
		fmt.Fprintln(a.out, "not logged in")
		return nil
	}
	if err := a.cache.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "logged out")
	return nil
}

func (a *App) status() error {
	s := a.cache.Session()
	if !s.LoggedIn() {
		fmt.Fprintln(a.out, "not logged in")
		return nil
	}
	fmt.Fprintf(a.out, "logged in as %s (%s)\naccess token expires at %s\n",
		s.User.Name, s.User.ID, s.User.ExpiresAt.Format(time.RFC3339))
	return nil
}

func (a *App) orPrompt(v, label string) (string, error) {
	if v != "" {
		return v, nil
	}
	return promptLine(a.in, a.out, label)
}
