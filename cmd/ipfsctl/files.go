package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"xdao.co/ipfshttp/coreapi"
	"xdao.co/ipfshttp/unixfs"
)

func (a *app) catCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Write a file's content to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.client.FileSystem().ReadFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer r.Close()
			_, err = io.Copy(a.out, r)
			return err
		},
	}
}

func (a *app) lsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <path>",
		Short: "List a directory's entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.client.FileSystem().ListFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			links, err := n.Links(cmd.Context())
			if err != nil {
				return err
			}
			for _, l := range links {
				name := l.Name
				if l.IsDirectory {
					name += "/"
				}
				fmt.Fprintf(a.out, "%s %d %s\n", l.Cid, l.Size, name)
			}
			return nil
		},
	}
}

func (a *app) addCommand() *cobra.Command {
	var opts coreapi.AddOptions
	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Add a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recursive, _ := cmd.Flags().GetBool("recursive")
			quiet, _ := cmd.Flags().GetBool("quiet")
			st, err := os.Stat(args[0])
			if err != nil {
				return err
			}
			var n *unixfs.Node
			if st.IsDir() {
				n, err = a.client.FileSystem().AddDirectory(cmd.Context(), args[0], recursive, opts)
			} else {
				n, err = a.client.FileSystem().AddFile(cmd.Context(), args[0], opts)
			}
			if err != nil {
				return err
			}
			if quiet {
				a.println(n.Cid())
				return nil
			}
			a.println("added", n.Cid(), n.Name())
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolP("recursive", "r", false, "add directory contents recursively")
	f.BoolP("quiet", "q", false, "print only the identifier")
	f.BoolVar(&opts.NoPin, "no-pin", false, "do not pin the result")
	f.BoolVarP(&opts.OnlyHash, "only-hash", "n", false, "compute the identifier without storing")
	f.BoolVarP(&opts.WrapWithDirectory, "wrap-with-directory", "w", false, "wrap files in a directory")
	f.BoolVar(&opts.RawLeaves, "raw-leaves", false, "store leaves as raw blocks")
	f.BoolVarP(&opts.Trickle, "trickle", "t", false, "use the trickle layout")
	f.IntVar(&opts.CidVersion, "cid-version", 0, "identifier version")
	f.StringVar(&opts.Hash, "hash", "", "hash function name")
	f.StringVarP(&opts.Chunker, "chunker", "s", "", "chunking algorithm")
	f.IntVarP(&opts.Parallelism, "parallel", "j", 0, "concurrent uploads for directories")
	return cmd
}

func (a *app) getCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Download a path as a tar archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			output, _ := cmd.Flags().GetString("output")
			compress, _ := cmd.Flags().GetBool("compress")
			r, err := a.client.FileSystem().Get(cmd.Context(), args[0], compress)
			if err != nil {
				return err
			}
			defer r.Close()

			w := a.out
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
			_, err = io.Copy(w, r)
			return err
		},
	}
	cmd.Flags().StringP("output", "o", "", "write the archive here instead of stdout")
	cmd.Flags().BoolP("compress", "C", false, "gzip the transfer")
	return cmd
}
