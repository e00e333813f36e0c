package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldward/manholeguard/internal/notify"
)

var watchNATSURL string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream safety notifications from NATS",
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, err := notify.NewNATSSubscriber(watchNATSURL)
		if err != nil {
			return err
		}
		defer sub.Close()

		msgs, cancel, err := sub.Subscribe("safety.>")
		if err != nil {
			return err
		}
		defer cancel()

		fmt.Fprintln(os.Stderr, "watching safety.> (ctrl-c to stop)")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		for {
			select {
			case <-sigCh:
				return nil
			case data, ok := <-msgs:
				if !ok {
					return nil
				}
				if jsonOutput {
					fmt.Println(string(data))
					continue
				}
				var msg notify.Message
				if err := json.Unmarshal(data, &msg); err != nil {
					fmt.Println(string(data))
					continue
				}
				fmt.Printf("%s [%s] %s: %s\n",
					time.Now().Format("15:04:05"), msg.Priority, msg.Title, msg.Body)
			}
		}
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchNATSURL, "nats-url", envOr("MHG_NATS_URL", "nats://localhost:4222"), "NATS server URL")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
