package main

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/spf13/cobra"

	"xdao.co/ipfshttp/pubsub"
)

func parseAddrs(args []string) ([]ma.Multiaddr, error) {
	out := make([]ma.Multiaddr, 0, len(args))
	for _, s := range args {
		addr, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", errUsage, s, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

func (a *app) pinCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "pin", Short: "Keep content from garbage collection"}

	add := &cobra.Command{
		Use:   "add <path>",
		Short: "Pin a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recursive, _ := cmd.Flags().GetBool("recursive")
			pinned, err := a.client.Pin().Add(cmd.Context(), args[0], recursive)
			if err != nil {
				return err
			}
			for _, id := range pinned {
				a.println("pinned", id)
			}
			return nil
		},
	}
	add.Flags().BoolP("recursive", "r", true, "pin everything below the path")

	ls := &cobra.Command{
		Use:   "ls",
		Short: "List pins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pins, err := a.client.Pin().List(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range pins {
				a.println(p.Cid, p.Type)
			}
			return nil
		},
	}

	rm := &cobra.Command{
		Use:   "rm <cid>",
		Short: "Remove a pin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCid(args[0])
			if err != nil {
				return err
			}
			recursive, _ := cmd.Flags().GetBool("recursive")
			unpinned, err := a.client.Pin().Remove(cmd.Context(), id, recursive)
			if err != nil {
				return err
			}
			for _, id := range unpinned {
				a.println("unpinned", id)
			}
			return nil
		},
	}
	rm.Flags().BoolP("recursive", "r", true, "remove a recursive pin")

	cmd.AddCommand(add, ls, rm)
	return cmd
}

func (a *app) pubsubCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "pubsub", Short: "Publish and subscribe to topics"}

	pub := &cobra.Command{
		Use:   "pub <topic> <message>",
		Short: "Publish a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.client.PubSub().Publish(cmd.Context(), args[0], args[1])
		},
	}

	sub := &cobra.Command{
		Use:   "sub <topic>",
		Short: "Print messages on a topic until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			ctx, cancel := context.WithCancel(cmd.Context())
			msgs := make(chan *pubsub.Message, 16)
			s, err := a.client.PubSub().Subscribe(ctx, args[0], func(m *pubsub.Message) {
				select {
				case msgs <- m:
				case <-ctx.Done():
				}
			})
			if err != nil {
				cancel()
				return err
			}
			defer s.Close()
			defer cancel()
			for seen := 0; count <= 0 || seen < count; seen++ {
				select {
				case m := <-msgs:
					fmt.Fprintf(a.out, "%s %s\n", m.Sender(), m.Data())
				case <-s.Done():
					return s.Err()
				}
			}
			return nil
		},
	}
	sub.Flags().IntP("count", "n", 0, "exit after this many messages")

	ls := &cobra.Command{
		Use:   "ls",
		Short: "List subscribed topics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			topics, err := a.client.PubSub().SubscribedTopics(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range topics {
				a.println(t)
			}
			return nil
		},
	}

	peers := &cobra.Command{
		Use:   "peers [topic]",
		Short: "List peers we exchange messages with",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := ""
			if len(args) == 1 {
				topic = args[0]
			}
			ps, err := a.client.PubSub().Peers(cmd.Context(), topic)
			if err != nil {
				return err
			}
			for _, p := range ps {
				a.println(p)
			}
			return nil
		},
	}

	cmd.AddCommand(pub, sub, ls, peers)
	return cmd
}

func (a *app) swarmCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "swarm", Short: "Inspect and change peer connections"}

	peers := &cobra.Command{
		Use:   "peers",
		Short: "List connected peers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ps, err := a.client.Swarm().Peers(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range ps {
				if p.Latency > 0 {
					a.println(p.Addr, p.ID, p.Latency)
					continue
				}
				a.println(p.Addr, p.ID)
			}
			return nil
		},
	}

	addrs := &cobra.Command{
		Use:   "addrs",
		Short: "List known addresses by peer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			known, err := a.client.Swarm().Addresses(cmd.Context())
			if err != nil {
				return err
			}
			out := make(map[string][]string, len(known))
			for id, as := range known {
				for _, addr := range as {
					out[id.String()] = append(out[id.String()], addr.String())
				}
			}
			return a.printJSON(out)
		},
	}

	connect := &cobra.Command{
		Use:   "connect <multiaddr>...",
		Short: "Open connections to peers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := parseAddrs(args)
			if err != nil {
				return err
			}
			for _, t := range targets {
				if err := a.client.Swarm().Connect(cmd.Context(), t); err != nil {
					return err
				}
				a.println("connected", t)
			}
			return nil
		},
	}

	disconnect := &cobra.Command{
		Use:   "disconnect <multiaddr>...",
		Short: "Close connections to peers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := parseAddrs(args)
			if err != nil {
				return err
			}
			for _, t := range targets {
				if err := a.client.Swarm().Disconnect(cmd.Context(), t); err != nil {
					return err
				}
				a.println("disconnected", t)
			}
			return nil
		},
	}

	cmd.AddCommand(peers, addrs, connect, disconnect)
	return cmd
}

func (a *app) bootstrapCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "bootstrap", Short: "Manage the trusted peer list"}

	list := &cobra.Command{
		Use:   "list",
		Short: "Show trusted peers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addrs, err := a.client.TrustedPeers().List(cmd.Context())
			if err != nil {
				return err
			}
			for _, addr := range addrs {
				a.println(addr)
			}
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add [multiaddr]...",
		Short: "Trust peers, or restore the defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			defaults, _ := cmd.Flags().GetBool("default")
			tp := a.client.TrustedPeers()
			if defaults {
				return tp.AddDefaults(cmd.Context())
			}
			if len(args) == 0 {
				return fmt.Errorf("%w: no addresses given", errUsage)
			}
			addrs, err := parseAddrs(args)
			if err != nil {
				return err
			}
			for _, addr := range addrs {
				if err := tp.Add(cmd.Context(), addr); err != nil {
					return err
				}
			}
			return nil
		},
	}
	add.Flags().Bool("default", false, "restore the built-in peers")

	rm := &cobra.Command{
		Use:   "rm [multiaddr]...",
		Short: "Stop trusting peers",
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			tp := a.client.TrustedPeers()
			if all {
				return tp.Clear(cmd.Context())
			}
			if len(args) == 0 {
				return fmt.Errorf("%w: no addresses given", errUsage)
			}
			addrs, err := parseAddrs(args)
			if err != nil {
				return err
			}
			for _, addr := range addrs {
				if err := tp.Remove(cmd.Context(), addr); err != nil {
					return err
				}
			}
			return nil
		},
	}
	rm.Flags().Bool("all", false, "remove every trusted peer")

	cmd.AddCommand(list, add, rm)
	return cmd
}

// peerArg decodes an optional peer argument.
func peerArg(args []string) (peer.ID, error) {
	if len(args) == 0 {
		return "", nil
	}
	id, err := peer.Decode(args[0])
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", errUsage, args[0], err)
	}
	return id, nil
}
