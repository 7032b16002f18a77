package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"xdao.co/ipfshttp/coreapi"
	"xdao.co/ipfshttp/merkle"
)

func (a *app) blockCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "block", Short: "Work with raw blocks"}

	get := &cobra.Command{
		Use:   "get <cid>",
		Short: "Write a block's bytes to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCid(args[0])
			if err != nil {
				return err
			}
			r, err := a.client.Block().GetStream(cmd.Context(), id)
			if err != nil {
				return err
			}
			defer r.Close()
			_, err = io.Copy(a.out, r)
			return err
		},
	}

	var putOpts coreapi.BlockPutOptions
	put := &cobra.Command{
		Use:   "put [file]",
		Short: "Store a block read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if len(args) == 1 && args[0] != "-" {
				data, err = os.ReadFile(args[0])
			} else {
				data, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}
			id, err := a.client.Block().Put(cmd.Context(), data, putOpts)
			if err != nil {
				return err
			}
			a.println(id)
			return nil
		},
	}
	put.Flags().StringVarP(&putOpts.Format, "format", "f", "", "content type, e.g. raw or protobuf")
	put.Flags().StringVar(&putOpts.MultihashType, "mhtype", "", "hash function name")
	put.Flags().StringVar(&putOpts.CidBase, "cid-base", "", "multibase of the printed identifier")
	put.Flags().BoolVar(&putOpts.Pin, "pin", false, "pin the block")

	stat := &cobra.Command{
		Use:   "stat <cid>",
		Short: "Show a block's size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCid(args[0])
			if err != nil {
				return err
			}
			st, err := a.client.Block().Stat(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.printJSON(map[string]any{"Key": st.Cid.String(), "Size": st.Size})
		},
	}

	rm := &cobra.Command{
		Use:   "rm <cid>...",
		Short: "Remove blocks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			for _, arg := range args {
				id, err := parseCid(arg)
				if err != nil {
					return err
				}
				removed, err := a.client.Block().Remove(cmd.Context(), id, force)
				if err != nil {
					return err
				}
				if removed.Defined() {
					a.println("removed", removed)
				}
			}
			return nil
		},
	}
	rm.Flags().BoolP("force", "f", false, "ignore missing blocks")

	cmd.AddCommand(get, put, stat, rm)
	return cmd
}

func (a *app) objectCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "object", Short: "Work with dag-pb nodes"}

	get := &cobra.Command{
		Use:   "get <cid>",
		Short: "Show a node's data and links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCid(args[0])
			if err != nil {
				return err
			}
			n, err := a.client.Object().Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.printJSON(map[string]any{"Data": n.Data(), "Links": linksJSON(n.Links())})
		},
	}

	links := &cobra.Command{
		Use:   "links <cid>",
		Short: "List a node's links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCid(args[0])
			if err != nil {
				return err
			}
			ls, err := a.client.Object().Links(cmd.Context(), id)
			if err != nil {
				return err
			}
			for _, l := range ls {
				a.println(l.Cid, l.Size, l.Name)
			}
			return nil
		},
	}

	stat := &cobra.Command{
		Use:   "stat <cid>",
		Short: "Show a node's sizes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCid(args[0])
			if err != nil {
				return err
			}
			st, err := a.client.Object().Stat(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.printJSON(st)
		},
	}

	newCmd := &cobra.Command{
		Use:   "new [template]",
		Short: "Create a node from a template (unixfs-dir)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			template := ""
			if len(args) == 1 {
				template = args[0]
			}
			n, err := a.client.Object().New(cmd.Context(), template)
			if err != nil {
				return err
			}
			a.println(n.Cid())
			return nil
		},
	}

	cmd.AddCommand(get, links, stat, newCmd)
	return cmd
}

func linksJSON(links []merkle.Link) []map[string]any {
	out := make([]map[string]any, 0, len(links))
	for _, l := range links {
		out = append(out, map[string]any{"Name": l.Name, "Hash": l.Cid.String(), "Size": l.Size})
	}
	return out
}
