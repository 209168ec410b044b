package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cosmossdk.io/log"
	"github.com/cometbft/cometbft/abci/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"zsphere/internal/app"
	"zsphere/internal/config"
	"zsphere/internal/fhe"
	"zsphere/internal/game"
	"zsphere/internal/indexer"
	"zsphere/internal/metrics"
	"zsphere/internal/oracle"
	"zsphere/internal/state"
)

const (
	flagTransport   = "transport"
	shutdownTimeout = 10 * time.Second
)

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the ABCI application with the decryption oracle and metrics endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			transport, _ := cmd.Flags().GetString(flagTransport)
			return runNode(cmd.Context(), cfg, transport, logger)
		},
	}
	config.AddNodeFlags(cmd.Flags())
	cmd.Flags().String(flagTransport, "socket", "ABCI transport (socket|grpc)")
	return cmd
}

type node struct {
	store   *state.Store
	keys    *fhe.KeySet
	app     *app.App
	oracle  *oracle.Oracle
	index   *indexer.Indexer
	reg     *prometheus.Registry
	metrics *metrics.Metrics
}

func (n *node) Close() error {
	var errs []error
	if n.index != nil {
		errs = append(errs, n.index.Close())
	}
	errs = append(errs, n.store.Close())
	return errors.Join(errs...)
}

// buildNode wires store, coprocessor, engine, app and oracle from cfg.
func buildNode(cfg config.Config, logger log.Logger) (*node, error) {
	keys, err := readNetworkKey(cfg.NetworkKeyFile())
	if err != nil {
		return nil, err
	}
	st, err := state.Open(cfg.Home, cfg.DBBackend)
	if err != nil {
		return nil, err
	}
	n := &node{store: st, keys: keys, reg: prometheus.NewRegistry()}
	n.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	n.metrics = metrics.New(n.reg)

	bus := &game.Bus{}
	if cfg.Indexer {
		if err := os.MkdirAll(cfg.DataDir(), 0o755); err != nil {
			n.Close()
			return nil, err
		}
		n.index, err = indexer.Open(cfg.IndexerFile(), logger)
		if err != nil {
			n.Close()
			return nil, err
		}
		bus.Subscribe(n.index)
	}

	// Subscribers only hear about committed blocks.
	events := game.NewDeferred(bus)
	cp := fhe.NewCoprocessor(keys, cfg.FHEChainID)
	engine, err := game.NewEngine(cp, st, game.Config{
		Contract:   cfg.ContractAddress(),
		ProtocolID: cfg.ProtocolID,
		Workers:    cfg.Workers,
	}, logger, game.WithNotifier(events), game.WithMetrics(n.metrics))
	if err != nil {
		n.Close()
		return nil, err
	}
	n.app, err = app.New(cfg.ChainID, st, cp, engine, n.metrics, logger, app.WithEvents(events))
	if err != nil {
		n.Close()
		return nil, err
	}
	n.oracle, err = oracle.New(keys, st.Committed(), oracle.Config{
		Domain:          cfg.Domain(),
		SignerCacheSize: cfg.SignerCacheSize,
		ClockSkew:       cfg.ClockSkew,
	}, logger, oracle.WithMetrics(n.metrics))
	if err != nil {
		n.Close()
		return nil, err
	}
	return n, nil
}

func runNode(ctx context.Context, cfg config.Config, transport string, logger log.Logger) error {
	n, err := buildNode(cfg, logger)
	if err != nil {
		return err
	}
	defer n.Close()

	srv, err := server.NewServer(cfg.ABCIAddress, transport, n.app)
	if err != nil {
		return fmt.Errorf("abci server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("abci server start: %w", err)
	}
	defer func() { _ = srv.Stop() }()
	logger.Info("abci server listening", "addr", cfg.ABCIAddress, "transport", transport)

	var servers []*http.Server
	if cfg.OracleListen != "" {
		servers = append(servers, &http.Server{Addr: cfg.OracleListen, Handler: n.oracle.Routes(), ReadHeaderTimeout: 5 * time.Second})
	}
	if cfg.MetricsListen != "" {
		servers = append(servers, &http.Server{Addr: cfg.MetricsListen, Handler: metrics.Handler(n.reg), ReadHeaderTimeout: 5 * time.Second})
	}
	return serveUntilSignal(ctx, servers, logger)
}

// serveUntilSignal runs the HTTP servers until SIGINT/SIGTERM or the first
// server failure, then shuts all of them down.
func serveUntilSignal(ctx context.Context, servers []*http.Server, logger log.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range servers {
		g.Go(func() error {
			logger.Info("http server listening", "addr", s.Addr)
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", s.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, s := range servers {
			_ = s.Shutdown(shutdownCtx)
		}
		return nil
	})
	err := g.Wait()
	logger.Info("shutting down")
	return err
}

func oracleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oracle",
		Short: "Serve user decryption from the local state while the node is stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg.Indexer = false
			n, err := buildNode(cfg, logger)
			if err != nil {
				return err
			}
			defer n.Close()
			return serveUntilSignal(cmd.Context(), []*http.Server{
				{Addr: cfg.OracleListen, Handler: n.oracle.Routes(), ReadHeaderTimeout: 5 * time.Second},
			}, logger)
		},
	}
	config.AddNodeFlags(cmd.Flags())
	return cmd
}
