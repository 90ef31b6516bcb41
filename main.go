package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/netaamz/moveo-project/internal/applog"
	"github.com/netaamz/moveo-project/internal/client"
	"github.com/netaamz/moveo-project/internal/config"
	"github.com/netaamz/moveo-project/internal/db"
	"github.com/netaamz/moveo-project/internal/hub"
	"github.com/netaamz/moveo-project/internal/live"
	"github.com/netaamz/moveo-project/internal/notify"
	"github.com/netaamz/moveo-project/internal/seed"
	"github.com/netaamz/moveo-project/internal/sweeper"
	"github.com/netaamz/moveo-project/internal/webserver"
)

const usage = `usage: jamoveo [command]

commands:
  serve                                  run the rehearsal server (default)
  adduser <username> <instrument> [--admin]
  passwd <username>
  users                                  list accounts
  seed [--clear|-c]                      load sample users and songs
  follow <server-url> <username> [--insecure]
`

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func loadConfig() config.Config {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load config: %v\n", err)
		cfg = config.Defaults()
	}
	return cfg
}

func openDB(cfg config.Config) (*db.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0700); err != nil {
		return nil, err
	}
	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func readPassword(prompt string) string {
	fmt.Print(prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		fatal("%v", err)
	}
	if len(pw) == 0 {
		fatal("password must not be empty")
	}
	return string(pw)
}

func main() {
	cmd := "serve"
	if len(os.Args) >= 2 {
		cmd = os.Args[1]
	}
	args := os.Args[min(2, len(os.Args)):]

	switch cmd {
	case "serve":
		runServe()
	case "adduser":
		if len(args) < 2 {
			fatal("usage: adduser <username> <instrument> [--admin]")
		}
		runAddUser(args[0], args[1], len(args) > 2 && args[2] == "--admin")
	case "passwd":
		if len(args) < 1 {
			fatal("usage: passwd <username>")
		}
		runPasswd(args[0])
	case "users":
		runUsers()
	case "seed":
		runSeed(len(args) > 0 && (args[0] == "--clear" || args[0] == "-c"))
	case "follow":
		if len(args) < 2 {
			fatal("usage: follow <server-url> <username> [--insecure]")
		}
		runFollow(args[0], args[1], len(args) > 2 && args[2] == "--insecure")
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func runServe() {
	cfg := loadConfig()
	if err := config.EnsureJWTSecret(config.DefaultPath(), &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not persist JWT secret: %v\n", err)
	}

	logger, logCloser, err := applog.Init(applog.InitConfig{
		LogDir:   cfg.LogDir,
		LogLevel: cfg.LogLevel,
		Stderr:   true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not init log file: %v\n", err)
		logger = slog.Default() // falls back to default (stderr)
	} else {
		defer logCloser.Close()
	}

	store, err := openDB(cfg)
	if err != nil {
		fatal("could not open database: %v", err)
	}
	defer store.Close()

	notifier := notify.New(notify.Config{
		Enabled: cfg.Notifications.Enabled,
		Webhook: cfg.Notifications.Webhook,
		NtfyURL: cfg.Notifications.NtfyURL,
	}, logger)
	h := hub.New(webserver.NewAuthorizer(store), logger, hub.WithObserver(notifier.Observe))

	tlsCacheDir := cfg.Webserver.TLS.CacheDir
	if tlsCacheDir == "" {
		tlsCacheDir = config.CertCacheDir()
	}
	srv := webserver.New(store, h, webserver.Config{
		Port:           cfg.Webserver.Port,
		Host:           cfg.Webserver.Host,
		AllowedOrigins: cfg.Webserver.AllowedOrigins,
		SendBuffer:     cfg.Live.SendBuffer,
		TLS: webserver.TLSConfig{
			Mode:     cfg.Webserver.TLS.Mode,
			CertFile: cfg.Webserver.TLS.CertFile,
			KeyFile:  cfg.Webserver.TLS.KeyFile,
			CacheDir: tlsCacheDir,
		},
		Auth: webserver.AuthConfig{
			JWTSecret:       cfg.Webserver.Auth.JWTSecret,
			AccessTokenTTL:  config.Duration(cfg.Webserver.Auth.AccessTokenTTL, 15*time.Minute),
			RefreshTokenTTL: config.Duration(cfg.Webserver.Auth.RefreshTokenTTL, 24*time.Hour),
		},
	}, logger)

	sw := sweeper.New(store, sweeper.DefaultInterval, logger)
	sw.RunOnce()
	sw.Start()
	defer sw.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.Run(ctx) })
	g.Go(func() error { return srv.ListenAndServe(ctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("serve: stopped", "err", err)
		os.Exit(1)
	}
	logger.Info("serve: shut down")
}

func runAddUser(username, instrument string, admin bool) {
	inst := db.Instrument(strings.ToLower(instrument))
	if !inst.Valid() {
		fatal("invalid instrument %q (one of %v)", instrument, db.Instruments())
	}
	pw := readPassword(fmt.Sprintf("Password for %s: ", username))
	hash, err := db.HashPassword(pw)
	if err != nil {
		fatal("%v", err)
	}
	store, err := openDB(loadConfig())
	if err != nil {
		fatal("%v", err)
	}
	defer store.Close()
	if _, err := store.CreateAccount(username, hash, inst, admin); err != nil {
		fatal("creating account: %v", err)
	}
	role := "player"
	if admin {
		role = "admin"
	}
	fmt.Printf("Account created: %s (%s, %s)\n", username, inst, role)
}

func runPasswd(username string) {
	pw := readPassword(fmt.Sprintf("New password for %s: ", username))
	hash, err := db.HashPassword(pw)
	if err != nil {
		fatal("%v", err)
	}
	store, err := openDB(loadConfig())
	if err != nil {
		fatal("%v", err)
	}
	defer store.Close()
	acc, err := store.GetAccountByUsername(username)
	if err != nil {
		fatal("user not found: %v", err)
	}
	if err := store.UpdateAccount(acc, hash); err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Password updated: %s (all sessions invalidated)\n", username)
}

func runUsers() {
	store, err := openDB(loadConfig())
	if err != nil {
		fatal("%v", err)
	}
	defer store.Close()
	accounts, err := store.ListAccounts()
	if err != nil {
		fatal("%v", err)
	}
	for _, a := range accounts {
		role := ""
		if a.IsAdmin {
			role = "admin"
		}
		fmt.Printf("%-16s %-10s %-6s %s\n", a.Username, a.Instrument, role, humanize.Time(a.CreatedAt))
	}
	fmt.Printf("%s accounts\n", humanize.Comma(int64(len(accounts))))
}

func runSeed(clear bool) {
	cfg := loadConfig()
	logger, logCloser, err := applog.Init(applog.InitConfig{LogDir: cfg.LogDir, LogLevel: cfg.LogLevel})
	if err != nil {
		logger = slog.Default()
	} else {
		defer logCloser.Close()
	}
	store, err := openDB(cfg)
	if err != nil {
		fatal("%v", err)
	}
	defer store.Close()
	res, err := seed.Run(store, seed.Options{Clear: clear}, logger)
	if err != nil {
		fatal("%v", err)
	}
	seed.WriteSummary(os.Stdout, res)
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

// printState redraws the live view for user.
func printState(user live.User, s live.State) {
	if s.Phase != live.Live {
		return
	}
	fmt.Printf("\n== %s - %s (rehearsal %s) ==\n", s.Song.Title, s.Song.Artist, s.RehearsalID)
	if s.Song.Content == nil {
		fmt.Println("loading song...")
		return
	}
	for _, line := range live.Render(s.Song.Content, user.Instrument, terminalWidth()) {
		fmt.Println(line)
	}
}

func runFollow(serverURL, username string, insecure bool) {
	cfg := loadConfig()
	logger, logCloser, err := applog.Init(applog.InitConfig{LogDir: cfg.LogDir, LogLevel: cfg.LogLevel})
	if err != nil {
		logger = applog.Discard()
	} else {
		defer logCloser.Close()
	}

	var opts []client.Option
	if insecure {
		opts = append(opts, client.WithHTTPClient(&http.Client{
			Timeout:   10 * time.Second,
			Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}},
		}))
	}
	api, err := client.New(serverURL, opts...)
	if err != nil {
		fatal("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pw := readPassword(fmt.Sprintf("Password for %s: ", username))
	acc, err := api.Login(ctx, username, pw)
	if err != nil {
		fatal("login: %v", err)
	}
	conn, err := api.Dial(ctx)
	if err != nil {
		fatal("connect: %v", err)
	}

	user := live.User{Username: acc.Username, Instrument: acc.Instrument, IsAdmin: acc.IsAdmin}
	m := live.New(user, conn, live.NavigatorFunc(func() {
		fmt.Println("\nWaiting for next song...")
	}), logger,
		live.WithNavigateDelay(config.Duration(cfg.Live.EndSessionDelay, live.DefaultNavigateDelay)),
		live.WithOnChange(func(s live.State) { printState(user, s) }))

	follower := client.NewFollower(api, conn, m, logger, func(songID string, err error) {
		fmt.Printf("could not load song %s: %v (back to waiting)\n", songID, err)
	})
	if err := conn.Join(acc.Username); err != nil {
		fatal("join: %v", err)
	}
	fmt.Printf("Connected as %s (%s). Waiting for next song...\n", acc.Username, acc.Instrument)
	if user.IsAdmin {
		fmt.Println("Commands: search <text>, play <n>, quit, exit")
		go adminConsole(ctx, api, m, stop)
	}

	if err := follower.Run(ctx); err != nil {
		fatal("%v", err)
	}
	api.Logout(context.Background())
}

// adminConsole reads admin commands from stdin: search the catalog, put a
// result live, end the live song, or leave the program.
func adminConsole(ctx context.Context, api *client.Client, m *live.Machine, exit func()) {
	var results []*db.Song
	rehearsalID := strconv.FormatInt(time.Now().Unix(), 36)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		cmd, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		switch cmd {
		case "search":
			songs, err := api.SearchSongs(ctx, arg)
			if err != nil {
				fmt.Printf("search failed: %v\n", err)
				continue
			}
			results = songs
			if len(songs) == 0 {
				fmt.Println("no songs found")
			}
			for i, s := range songs {
				fmt.Printf("  %d. %s - %s\n", i+1, s.Title, s.Artist)
			}
		case "play":
			n, err := strconv.Atoi(arg)
			if err != nil || n < 1 || n > len(results) {
				fmt.Println("play <n> picks a number from the last search")
				continue
			}
			s := results[n-1]
			song := live.Song{ID: s.ID, Title: s.Title, Artist: s.Artist}
			if err := m.SelectSong(rehearsalID, song); err != nil {
				fmt.Printf("could not select song: %v\n", err)
			}
		case "quit":
			if err := m.EndSession(); err != nil {
				fmt.Printf("could not end session: %v\n", err)
			}
		case "exit":
			exit()
			return
		case "":
		default:
			fmt.Println("Commands: search <text>, play <n>, quit, exit")
		}
	}
}
