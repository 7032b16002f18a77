package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ipfs/go-cid"
	"github.com/spf13/cobra"

	"xdao.co/ipfshttp/storage"
	"xdao.co/ipfshttp/storage/bundle"
	"xdao.co/ipfshttp/storage/casconfig"
	"xdao.co/ipfshttp/storage/casregistry"
	"xdao.co/ipfshttp/storage/ipfs"

	_ "xdao.co/ipfshttp/storage/grpccas"
	_ "xdao.co/ipfshttp/storage/localfs"
)

func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("backend", "", "storage backend (see ipfsctl backends); default is the node itself")
	cmd.Flags().StringToString("backend-opt", nil, "backend setting key=value, repeatable")
}

// openStore picks the block store for bundle commands: an explicit
// --backend, then a storage section in the config file, then the node.
func (a *app) openStore(cmd *cobra.Command) (storage.CAS, func() error, error) {
	name, _ := cmd.Flags().GetString("backend")
	opts, _ := cmd.Flags().GetStringToString("backend-opt")
	if name != "" {
		return casregistry.Open(name, casregistry.UsageCLI, opts)
	}
	if a.v.IsSet(casconfig.Key) {
		cfg, err := casconfig.Load(a.v)
		if err != nil {
			return nil, nil, err
		}
		return cfg.Open(casregistry.UsageCLI, "")
	}
	return ipfs.New(a.client), nil, nil
}

func (a *app) exportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <cid>...",
		Short: "Write blocks, or whole DAGs with -r, to a tar bundle",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			output, _ := cmd.Flags().GetString("output")
			labels, _ := cmd.Flags().GetStringToString("label")
			var opts bundle.ExportOptions
			opts.Recursive, _ = cmd.Flags().GetBool("recursive")
			opts.IncludeIndex, _ = cmd.Flags().GetBool("index")
			opts.Parallelism, _ = cmd.Flags().GetInt("parallel")

			roots := make([]cid.Cid, 0, len(args))
			for _, s := range args {
				id, err := parseCid(s)
				if err != nil {
					return err
				}
				roots = append(roots, id)
			}
			if len(labels) > 0 {
				opts.Labels = make(map[string]cid.Cid, len(labels))
				for name, s := range labels {
					id, err := parseCid(s)
					if err != nil {
						return err
					}
					opts.Labels[name] = id
				}
			}

			cas, closeFn, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			if closeFn != nil {
				defer closeFn()
			}

			var w io.Writer = a.out
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer func() {
					if cerr := f.Close(); cerr != nil && err == nil {
						err = cerr
					}
				}()
				w = f
			}
			return bundle.Export(cmd.Context(), w, cas, roots, opts)
		},
	}
	f := cmd.Flags()
	f.StringP("output", "o", "", "bundle file (default stdout)")
	f.BoolP("recursive", "r", false, "include every block the roots link to")
	f.Bool("index", true, "include index.json")
	f.IntP("parallel", "j", 0, "concurrent block fetches")
	f.StringToString("label", nil, "index label name=cid, repeatable")
	addStoreFlags(cmd)
	return cmd
}

func (a *app) importCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <bundle>",
		Short: "Store every block of a tar bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ignore, _ := cmd.Flags().GetBool("ignore-unknown")
			cas, closeFn, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			if closeFn != nil {
				defer closeFn()
			}
			store, ok := cas.(storage.BlockStore)
			if !ok {
				return fmt.Errorf("%w: backend cannot store blocks by identifier", errUsage)
			}

			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			imported, err := bundle.Import(cmd.Context(), r, store, bundle.ImportOptions{IgnoreUnknown: ignore})
			for _, id := range imported {
				a.println("imported", id)
			}
			return err
		},
	}
	cmd.Flags().Bool("ignore-unknown", false, "skip entries that are not blocks")
	addStoreFlags(cmd)
	return cmd
}

func (a *app) backendsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List storage backends usable with --backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, b := range casregistry.List(casregistry.UsageCLI) {
				a.println(b.Name + "\t" + b.Description)
				for _, k := range b.SortedKeys() {
					a.println("  " + k + "\t" + b.Keys[k])
				}
			}
			return nil
		},
	}
}
