// Command rcal-admin is the illustrative host harness for the engine:
// an HTTP surface over the CAL_*/EVT_*/EVO_*/EVI_* command set (spec
// §6), backed by BadgerDB persistence and JWT+casbin RBAC, under a
// suture supervision tree the way cartographus runs its own API and
// messaging layers (internal/supervisor/tree.go).
//
// The engine itself has no network protocol or dispatch loop (spec
// §1); everything in this package is a reference host, not part of
// the core.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/icalstore/rcal/command"
	"github.com/icalstore/rcal/config"
	"github.com/icalstore/rcal/persistbadger"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "HTTP listen address")
		dataDir    = flag.String("data", "./rcal-data", "BadgerDB data directory")
		configPath = flag.String("config", "", "optional YAML config file")
		jwtSecret  = flag.String("jwt-secret", "", "HMAC secret for bearer tokens (generated if empty)")
	)
	flag.Parse()

	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	opts, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	db, err := badger.Open(badger.DefaultOptions(*dataDir))
	if err != nil {
		log.Fatal().Err(err).Msg("open badger")
	}
	defer db.Close()

	snapshotCodec := command.JSONSnapshotCodec{}
	persist := persistbadger.New(db, snapshotCodec)

	notifier, gc := command.NewInProcessNotifier()
	breakerNotifier := command.NewBreakerNotifier(notifier, "keyspace-notifications")

	registry, err := NewRegistry(persist,
		command.WithConfig(opts),
		command.WithNotifier(breakerNotifier),
		command.WithSnapshotCodec(snapshotCodec),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("build registry")
	}
	defer registry.Close()

	secret := []byte(*jwtSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			log.Fatal().Err(err).Msg("generate jwt secret")
		}
		log.Warn().Str("secret", hex.EncodeToString(secret)).Msg("no -jwt-secret given, generated an ephemeral one")
	}

	issuer, err := NewTokenIssuer(secret)
	if err != nil {
		log.Fatal().Err(err).Msg("build token issuer")
	}
	authz, err := NewAuthorizer(issuer)
	if err != nil {
		log.Fatal().Err(err).Msg("build authorizer")
	}

	qlimiter := newQueryLimiter(5, 10)
	tail := NewNotificationTail(gc, []string{"*"}, log)

	server := NewServer(registry, authz, qlimiter, tail, log)
	httpServer := &http.Server{
		Addr:        *addr,
		Handler:     server.Router(),
		ReadTimeout: 15 * time.Second,
	}

	handler := &sutureslog.Handler{Logger: newSlogBridge(log)}
	root := suture.New("rcal-admin", suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})
	root.Add(newHTTPServerService("http", httpServer))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info().Str("addr", *addr).Str("data", *dataDir).Msg("starting rcal-admin")
	if err := root.Serve(ctx); err != nil {
		log.Error().Err(err).Msg("supervisor tree exited")
	}
}
