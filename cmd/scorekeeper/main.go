// Command scorekeeper is a line-oriented scoring client for one match.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/DoyleJ11/league-scorekeeper/internal/cache"
	"github.com/DoyleJ11/league-scorekeeper/internal/config"
	"github.com/DoyleJ11/league-scorekeeper/internal/engine"
	"github.com/DoyleJ11/league-scorekeeper/internal/leagueapi"
	"github.com/DoyleJ11/league-scorekeeper/internal/platform/logging"
	"github.com/DoyleJ11/league-scorekeeper/internal/realtime"
	"github.com/DoyleJ11/league-scorekeeper/internal/scoring"
	"github.com/DoyleJ11/league-scorekeeper/internal/session"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "scorekeeper:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("scorekeeper", flag.ContinueOnError)
	matchID := fs.String("match", os.Getenv("MATCH_ID"), "league match id")
	roleRaw := fs.String("role", getenvDefault("SCOREKEEPER_ROLE", string(engine.RoleHome)), "home, away, operator or viewer")
	envFile := fs.String("env-file", ".env", "dotenv file to seed the environment from")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	role, ok := engine.ParseRole(*roleRaw)
	if !ok {
		return fmt.Errorf("unknown role %q", *roleRaw)
	}
	if *matchID == "" {
		return errors.New("-match (or MATCH_ID) is required")
	}
	if cfg.LeagueAPIURL == "" {
		return errors.New("LEAGUE_API_URL is required")
	}

	logger := logging.NewJSON(cfg.LogLevel).With("app", "scorekeeper", "match_id", *matchID, "role", string(role))
	logging.SetDefault(logger)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithMatch(ctx, *matchID)

	store, err := cache.OpenSQLite(ctx, cfg.CachePath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	relayURL, err := matchURL(cfg.RelayURL, *matchID, cfg.GameCount())
	if err != nil {
		return err
	}
	ch := realtime.New(relayURL,
		realtime.WithLogger(logger),
		realtime.WithReconnectPolicy(realtime.ReconnectPolicy{
			MaxAttempts: cfg.ReconnectAttempts,
			Interval:    cfg.ReconnectInterval,
		}),
	)

	api := leagueapi.New(leagueapi.Config{
		BaseURL:        cfg.LeagueAPIURL,
		Timeout:        cfg.LeagueAPITimeout,
		CircuitBreaker: cfg.LeagueCircuit,
	}, leagueapi.StaticToken(cfg.LeagueAPIToken), logger)

	in := bufio.NewScanner(os.Stdin)
	sh := &shell{in: in, out: &syncWriter{w: os.Stdout}}

	coord := scoring.New(scoring.Config{
		MatchID:      *matchID,
		SetsPerMatch: cfg.SetsPerMatch,
		GamesPerSet:  cfg.GamesPerSet,
	}, session.NewStore(role, store, session.WithLogger(logger)), api, ch, sh, logger)
	sh.coord = coord

	ch.OnMessage(coord.HandleMessage)
	ch.OnOpen(coord.Announce)
	ch.OnStateChange(func(s realtime.ConnState) {
		logger.Info("relay connection", "state", string(s))
	})

	if _, err := coord.Open(ctx); err != nil {
		return err
	}
	sh.watch(coord.Store())

	go func() {
		if err := ch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("relay channel stopped", "error", err)
		}
	}()

	sh.printState()
	return sh.loop(ctx)
}

// matchURL adds the match and game count to the relay's websocket url.
func matchURL(base, matchID string, games int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse RELAY_URL: %w", err)
	}
	q := u.Query()
	q.Set("match", matchID)
	q.Set("games", strconv.Itoa(games))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
