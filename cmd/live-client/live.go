package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/weiawesome/pawfect-live/internal/domain"
	"github.com/weiawesome/pawfect-live/internal/hubapi"
	"github.com/weiawesome/pawfect-live/internal/ui"
)

var flagFollow time.Duration

var liveCmd = &cobra.Command{
	Use:   "live <room-id>",
	Short: "Check whether a room is live without joining it",
	Long: `Ask the hub whether a room currently has a broadcaster.

With --follow the room is polled at the given interval and every change is
printed until interrupted.

Examples:
  live-client live kittens
  live-client live kittens --follow 5s`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		api := hubapi.New(cfg.Hub.APIURL, cfg.Hub.Token)
		return checkLive(ctx, api, args[0], flagFollow)
	},
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List rooms that are live right now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		rooms, err := hubapi.New(cfg.Hub.APIURL, cfg.Hub.Token).LiveRooms(cmd.Context())
		if err != nil {
			return err
		}
		if len(rooms) == 0 {
			ui.PrintInfo("no live rooms")
			return nil
		}
		for _, r := range rooms {
			fmt.Fprintln(ui.Out, liveLine(r))
		}
		return nil
	},
}

func checkLive(ctx context.Context, api *hubapi.Client, roomID string, follow time.Duration) error {
	status, err := api.CheckLive(ctx, roomID)
	if err != nil {
		return err
	}
	fmt.Fprintln(ui.Out, liveLine(status))
	if follow <= 0 {
		return nil
	}

	ticker := time.NewTicker(follow)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			next, err := api.CheckLive(ctx, roomID)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				ui.PrintWarning(err.Error())
				continue
			}
			if next != status {
				fmt.Fprintln(ui.Out, liveLine(next))
				status = next
			}
		}
	}
}

func liveLine(s domain.LiveStatus) string {
	if !s.IsLive {
		return ui.MutedStyle.Render(fmt.Sprintf("%s is offline", s.RoomID))
	}
	line := fmt.Sprintf("%s %s", ui.LiveBadgeStyle.Render("LIVE"), s.RoomID)
	if s.AdminName != "" {
		line += ui.MutedStyle.Render(" hosted by " + s.AdminName)
	}
	return line
}

func init() {
	rootCmd.AddCommand(liveCmd)
	rootCmd.AddCommand(roomsCmd)

	liveCmd.Flags().DurationVarP(&flagFollow, "follow", "f", 0, "Poll interval; 0 checks once")
}
