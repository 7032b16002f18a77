package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/ipfs/go-cid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"xdao.co/ipfshttp/cidutil"
	"xdao.co/ipfshttp/config"
	"xdao.co/ipfshttp/coreapi"
	"xdao.co/ipfshttp/logging"
	"xdao.co/ipfshttp/rpc"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	v      *viper.Viper
	out    io.Writer
	errOut io.Writer

	logger *slog.Logger
	client *coreapi.Client
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "ipfsctl",
		Short:         "Drive a remote node through its RPC API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (yaml, json or toml)")
	pf.String("api-url", rpc.DefaultAPIURL, "node RPC endpoint")
	pf.Duration("timeout", 0, "per-request timeout for unary commands")
	pf.String("log-level", "info", "debug, info, warn or error")
	pf.String("log-format", "text", "text or json")
	for key, flag := range map[string]string{
		config.KeyAPIURL:    "api-url",
		config.KeyTimeout:   "timeout",
		config.KeyLogLevel:  "log-level",
		config.KeyLogFormat: "log-format",
	} {
		_ = a.v.BindPFlag(key, pf.Lookup(flag))
	}

	root.AddCommand(
		a.idCommand(),
		a.versionCommand(),
		a.catCommand(),
		a.lsCommand(),
		a.addCommand(),
		a.getCommand(),
		a.blockCommand(),
		a.objectCommand(),
		a.pinCommand(),
		a.pubsubCommand(),
		a.swarmCommand(),
		a.bootstrapCommand(),
		a.nameCommand(),
		a.repoCommand(),
		a.exportCommand(),
		a.importCommand(),
		a.backendsCommand(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}
	settings, err := config.Load(a.v)
	if err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	a.logger = logging.NewWriter(a.errOut, settings.LogLevel, settings.LogFormat)
	rc := rpc.New(settings.ClientOptions(rpc.WithLogger(a.logger))...)
	a.client = coreapi.New(rc, a.logger)
	a.logger.Debug("client ready", "api", rc.APIURL())
	return nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

func parseCid(s string) (cid.Cid, error) {
	id, err := cidutil.ParsePath(s)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: %q is not a content identifier: %w", errUsage, s, err)
	}
	return id, nil
}
