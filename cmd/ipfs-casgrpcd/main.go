// Command ipfs-casgrpcd serves a node's blocks, or any registered backend,
// over the CAS gRPC service.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"

	"xdao.co/ipfshttp/config"
	"xdao.co/ipfshttp/coreapi"
	"xdao.co/ipfshttp/logging"
	"xdao.co/ipfshttp/rpc"
	"xdao.co/ipfshttp/storage"
	"xdao.co/ipfshttp/storage/casconfig"
	"xdao.co/ipfshttp/storage/casregistry"
	"xdao.co/ipfshttp/storage/grpccas"
	"xdao.co/ipfshttp/storage/ipfs"
	"xdao.co/ipfshttp/storage/localfs"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newCommand(out, errOut)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	return 0
}

type daemon struct {
	v      *viper.Viper
	logger *slog.Logger
	reg    *prometheus.Registry
}

func newCommand(out, errOut io.Writer) *cobra.Command {
	d := &daemon{v: viper.New(), reg: prometheus.NewRegistry()}

	cmd := &cobra.Command{
		Use:           "ipfs-casgrpcd",
		Short:         "Serve blocks over gRPC",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if list, _ := cmd.Flags().GetBool("list-backends"); list {
				for _, b := range casregistry.List(casregistry.UsageDaemon) {
					fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
				}
				return nil
			}
			return d.run(cmd, errOut)
		},
	}

	f := cmd.Flags()
	f.String("config", "", "config file")
	f.String("listen", "127.0.0.1:7777", "gRPC listen address")
	f.String("metrics-listen", "", "serve /metrics on this address when set")
	f.String("backend", "ipfs", "CAS backend name")
	f.StringToString("backend-opt", nil, "backend setting key=value, repeatable")
	f.String("mirror", "", "also write every block to this directory")
	f.Bool("list-backends", false, "list supported backends and exit")
	f.String("api-url", rpc.DefaultAPIURL, "node RPC endpoint for the ipfs backend")
	f.String("log-level", "info", "debug, info, warn or error")
	f.String("log-format", "text", "text or json")
	for key, flag := range map[string]string{
		config.KeyAPIURL:    "api-url",
		config.KeyLogLevel:  "log-level",
		config.KeyLogFormat: "log-format",
		"listen":            "listen",
		"metrics_listen":    "metrics-listen",
		"mirror":            "mirror",
	} {
		_ = d.v.BindPFlag(key, f.Lookup(flag))
	}
	return cmd
}

func (d *daemon) run(cmd *cobra.Command, errOut io.Writer) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		d.v.SetConfigFile(path)
		if err := d.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}
	settings, err := config.Load(d.v)
	if err != nil {
		return err
	}
	d.logger = logging.NewWriter(errOut, settings.LogLevel, settings.LogFormat)

	backend, _ := cmd.Flags().GetString("backend")
	opts, _ := cmd.Flags().GetStringToString("backend-opt")
	cas, closeFn, err := d.openBackend(settings, backend, opts)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", d.v.GetString("listen"))
	if err != nil {
		return err
	}
	d.logger.Info("listening", "addr", lis.Addr().String(), "backend", backend)
	return d.serve(cmd.Context(), lis, cas, d.v.GetString("metrics_listen"))
}

// openBackend prefers a storage section in the config file, then the
// named backend. The ipfs backend is built from the client settings so its
// requests are counted in the daemon's metrics.
func (d *daemon) openBackend(settings config.Settings, name string, opts map[string]string) (storage.CAS, func() error, error) {
	var (
		cas     storage.CAS
		closeFn func() error
		err     error
	)
	switch {
	case d.v.IsSet(casconfig.Key):
		var cfg casconfig.Config
		if cfg, err = casconfig.Load(d.v); err != nil {
			return nil, nil, err
		}
		cas, closeFn, err = cfg.Open(casregistry.UsageDaemon, "")
	case name == "ipfs" && len(opts) == 0:
		metrics := rpc.NewMetrics(settings.MetricsNamespace)
		if err = metrics.Register(d.reg); err != nil {
			return nil, nil, err
		}
		rc := rpc.New(settings.ClientOptions(rpc.WithLogger(d.logger), rpc.WithMetrics(metrics))...)
		cas = ipfs.New(coreapi.New(rc, d.logger))
	default:
		cas, closeFn, err = casregistry.Open(name, casregistry.UsageDaemon, opts)
	}
	if err != nil {
		return nil, nil, err
	}

	if dir := d.v.GetString("mirror"); dir != "" {
		mirror, err := localfs.New(dir)
		if err != nil {
			if closeFn != nil {
				_ = closeFn()
			}
			return nil, nil, err
		}
		cas = storage.ReplicatingCAS{
			Backends: []storage.NamedCAS{{Name: name, CAS: cas}, {Name: "mirror", CAS: mirror}},
			Policy:   storage.WriteAll,
		}
	}
	return cas, closeFn, nil
}

func (d *daemon) newServer(cas storage.CAS) *grpc.Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(d.logCalls))
	grpccas.RegisterCASServer(s, &grpccas.Server{CAS: cas})
	return s
}

func (d *daemon) logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		d.logger.Warn("call failed", "method", info.FullMethod, "duration", time.Since(start), "err", err)
		return resp, err
	}
	d.logger.Debug("call", "method", info.FullMethod, "duration", time.Since(start))
	return resp, nil
}

// serve runs the gRPC server, and the metrics endpoint when metricsAddr is
// set, until ctx is cancelled.
func (d *daemon) serve(ctx context.Context, lis net.Listener, cas storage.CAS, metricsAddr string) error {
	s := d.newServer(cas)

	var metricsSrv *http.Server
	if metricsAddr != "" {
		d.reg.MustRegister(collectors.NewGoCollector())
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(d.reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	errc := make(chan error, 2)
	var wg conc.WaitGroup
	wg.Go(func() { errc <- s.Serve(lis) })
	if metricsSrv != nil {
		wg.Go(func() {
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		})
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errc:
	}
	s.GracefulStop()
	if metricsSrv != nil {
		_ = metricsSrv.Close()
	}
	wg.Wait()
	return err
}
