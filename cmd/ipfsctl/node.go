package main

import (
	"github.com/spf13/cobra"

	"xdao.co/ipfshttp/coreapi"
)

func (a *app) idCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "id [peer]",
		Short: "Show identity information for the node or a peer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := peerArg(args)
			if err != nil {
				return err
			}
			info, err := a.client.Generic().ID(cmd.Context(), p)
			if err != nil {
				return err
			}
			addrs := make([]string, 0, len(info.Addresses))
			for _, addr := range info.Addresses {
				addrs = append(addrs, addr.String())
			}
			return a.printJSON(map[string]any{
				"ID":              info.ID.String(),
				"PublicKey":       info.PublicKey,
				"Addresses":       addrs,
				"AgentVersion":    info.AgentVersion,
				"ProtocolVersion": info.ProtocolVersion,
			})
		},
	}
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the node's version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := a.client.Generic().Version(cmd.Context())
			if err != nil {
				return err
			}
			return a.printJSON(v)
		},
	}
}

func (a *app) nameCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "name", Short: "Publish and resolve names"}

	publish := &cobra.Command{
		Use:   "publish <path>",
		Short: "Publish a path under a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, _ := cmd.Flags().GetString("key")
			lifetime, _ := cmd.Flags().GetDuration("lifetime")
			named, err := a.client.Name().Publish(cmd.Context(), args[0], coreapi.PublishOptions{Key: key, Lifetime: lifetime})
			if err != nil {
				return err
			}
			a.println(named.Name, named.Path)
			return nil
		},
	}
	publish.Flags().String("key", "", "key name (default self)")
	publish.Flags().Duration("lifetime", 0, "record lifetime")

	resolve := &cobra.Command{
		Use:   "resolve [name]",
		Short: "Resolve a name to a path",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			recursive, _ := cmd.Flags().GetBool("recursive")
			path, err := a.client.Name().Resolve(cmd.Context(), name, recursive, false)
			if err != nil {
				return err
			}
			a.println(path)
			return nil
		},
	}
	resolve.Flags().BoolP("recursive", "r", true, "resolve until the result is not a name")

	cmd.AddCommand(publish, resolve)
	return cmd
}

func (a *app) repoCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "repo", Short: "Inspect and collect the node's repository"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "gc",
			Short: "Remove unpinned blocks",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				removed, err := a.client.Repo().GarbageCollect(cmd.Context())
				if err != nil {
					return err
				}
				for _, id := range removed {
					a.println("removed", id)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "stat",
			Short: "Show repository statistics",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				st, err := a.client.Repo().Stat(cmd.Context())
				if err != nil {
					return err
				}
				return a.printJSON(st)
			},
		},
	)
	return cmd
}
