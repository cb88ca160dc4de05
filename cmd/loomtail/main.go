// Command loomtail connects a bot identity to a Loom workspace and tails the
// realtime event stream, printing every event and every context-engine
// delivery. Useful for verifying credentials, trigger patterns, and reconnect
// behavior against a live deployment.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/loomworks/loom-go/pkg/bus"
	"github.com/loomworks/loom-go/pkg/client"
	"github.com/loomworks/loom-go/pkg/config"
	"github.com/loomworks/loom-go/pkg/conversation"
	"github.com/loomworks/loom-go/pkg/platform"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "loomtail:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("loomtail", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config (env vars override)")
	mode := fs.String("mode", "summary", "prompt mode printed per delivery: summary, full, or delta")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	var opts []client.Option
	if cfg.Bus.Enabled {
		nb, err := bus.NewNATSBus(bus.Config{URL: cfg.Bus.URL, Name: "loomtail"})
		if err != nil {
			return fmt.Errorf("bus connect: %w", err)
		}
		opts = append(opts, client.WithBus(nb, cfg.Bus.SubjectPrefix))
	}

	cl, err := client.New(cfg, opts...)
	if err != nil {
		return err
	}
	defer cl.Close()

	cl.On(platform.EventWildcard, func(evt platform.Event) {
		fmt.Printf("[%s] %s\n", evt.Timestamp.Format("15:04:05"), evt.Type)
	})

	cl.OnTrigger(func(ctx context.Context, snap *conversation.Snapshot) error {
		kind := "mention"
		if snap.InviteTriggered {
			kind = "invite"
		}
		fmt.Printf("--- delivery %s (%s) thread=%s messages=%d degraded=%v\n",
			snap.DeliveryID, kind, snap.ThreadID, snap.BufferedCount, snap.Degraded)
		fmt.Print(cl.Engine().PromptContext(snap.ThreadID, conversation.Mode(*mode)))
		return nil
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cl.Connect(ctx); err != nil {
		return err
	}
	fmt.Printf("connected as %s (%s); press ctrl-c to exit\n", cfg.Bot.Name, cfg.Bot.ID)

	<-ctx.Done()
	return nil
}
