package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/weiawesome/wes-io-sync/pkg/pubsub"
)

func NewEventsCmd(deps *Dependencies) *cobra.Command {
	var roomID string
	var text bool
	cfg := pubsub.DefaultConfig()
	cfg.Driver = "redis"

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow room lifecycle events published by the hub",
		Long:  "Subscribe to the hub's room event stream and print each event as a JSON line,\nor as readable text with --text. Without --room every room is followed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Driver == "none" || cfg.Driver == "" {
				return errors.New("events need a pubsub driver (redis or kafka)")
			}
			ps, err := pubsub.NewPubSub(cfg)
			if err != nil {
				return fmt.Errorf("connect to %s: %w", cfg.Driver, err)
			}
			defer ps.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var events <-chan *pubsub.Event
			if roomID != "" {
				events, err = ps.Subscribe(ctx, pubsub.RoomEventsChannel(roomID))
			} else {
				events, err = ps.SubscribePattern(ctx, pubsub.PatternAllRoomEvents)
			}
			if err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					if !text {
						if err := enc.Encode(ev); err != nil {
							return err
						}
						continue
					}
					line, err := describeEvent(ev)
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "⚠️  %v\n", err)
						continue
					}
					fmt.Fprintln(cmd.OutOrStdout(), line)
				}
			}
		},
	}

	cmd.Flags().StringVarP(&roomID, "room", "r", "", "Only follow this room")
	cmd.Flags().BoolVar(&text, "text", false, "Print one readable line per event instead of JSON")
	cmd.Flags().StringVar(&cfg.Driver, "driver", cfg.Driver, "Pubsub driver: redis or kafka")
	cmd.Flags().StringVar(&cfg.Redis.Address, "redis", cfg.Redis.Address, "Redis address")
	cmd.Flags().StringVar(&cfg.Redis.Password, "redis-password", "", "Redis password")
	cmd.Flags().StringVar(&cfg.Kafka.Brokers, "kafka-brokers", "localhost:9092", "Kafka bootstrap servers")
	cmd.Flags().StringVar(&cfg.Kafka.GroupID, "kafka-group", fmt.Sprintf("syncplay-events-%d", time.Now().Unix()), "Kafka consumer group")

	return cmd
}

// describeEvent renders a room event as one line of text.
func describeEvent(ev *pubsub.Event) (string, error) {
	payload, err := ev.DecodePayload()
	if err != nil {
		return "", err
	}

	var what string
	switch p := payload.(type) {
	case *pubsub.RoomOpenedPayload:
		what = fmt.Sprintf("opened by %s", p.Host)
	case *pubsub.MemberPayload:
		verb := "joined"
		if ev.Type == pubsub.EventMemberLeft {
			verb = "left"
		}
		what = fmt.Sprintf("%s %s (%d members)", p.Participant, verb, p.Members)
	case *pubsub.TrackAdvancedPayload:
		what = fmt.Sprintf("advanced to %s (track %d)", p.Media, p.Generation)
	case *pubsub.RoomClosedPayload:
		what = fmt.Sprintf("closed (%s)", p.Reason)
	default:
		what = fmt.Sprintf("%s %s", ev.Type, payload)
	}
	return fmt.Sprintf("%s room %s %s", ev.Timestamp.Format(time.TimeOnly), ev.RoomID, what), nil
}
