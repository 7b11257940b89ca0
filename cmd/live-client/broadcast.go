package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/weiawesome/pawfect-live/internal/domain"
	"github.com/weiawesome/pawfect-live/internal/media"
	"github.com/weiawesome/pawfect-live/internal/ui"
)

var (
	flagVideo     string
	flagAudio     string
	flagSwap      string
	flagSwapAfter time.Duration
)

var broadcastCmd = &cobra.Command{
	Use:     "broadcast <room-id>",
	Aliases: []string{"b"},
	Short:   "Broadcast IVF/Ogg files into a room",
	Long: `Join a room as its broadcaster and stream media files to every viewer.
Video must be IVF (VP8, VP9 or AV1) and audio Ogg/Opus. Files loop until
the broadcast ends.

--swap replaces the video after --swap-after, reusing the same senders
when the track kinds match.

Examples:
  live-client broadcast kittens --video kitten.ivf --audio purr.ogg
  live-client broadcast kittens --video a.ivf --swap b.ivf --swap-after 1m`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return broadcast(args[0])
	},
}

func broadcast(roomID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := media.OpenFiles(flagVideo, flagAudio)
	if err != nil {
		return err
	}
	src.Start(ctx)

	sess, err := newSession(ctx, cfg, roomID, domain.RoleBroadcaster, nil)
	if err != nil {
		src.Stop()
		return err
	}
	if err := sess.orch.SetLocalStream(src); err != nil {
		src.Stop()
		return err
	}

	swapped := make(chan *media.FileSource, 1)
	if flagSwap != "" {
		go func() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(flagSwapAfter):
			}

			next, err := media.OpenFiles(flagSwap, flagAudio)
			if err != nil {
				ui.PrintWarning("swap: " + err.Error())
				return
			}
			next.Start(ctx)
			if err := sess.orch.SetLocalStream(next); err != nil {
				ui.PrintWarning("swap: " + err.Error())
				next.Stop()
				return
			}
			src.Stop()
			ui.PrintSuccessf("now streaming %s", flagSwap)
			swapped <- next
		}()
	}

	ui.PrintInfof("broadcasting to %s", roomID)
	err = sess.run(ctx)
	stop()

	src.Stop()
	select {
	case next := <-swapped:
		next.Stop()
	default:
	}
	return err
}

func init() {
	rootCmd.AddCommand(broadcastCmd)

	broadcastCmd.Flags().StringVar(&flagVideo, "video", "", "IVF video file")
	broadcastCmd.Flags().StringVar(&flagAudio, "audio", "", "Ogg/Opus audio file")
	broadcastCmd.Flags().StringVar(&flagSwap, "swap", "", "IVF video to switch to mid-broadcast")
	broadcastCmd.Flags().DurationVar(&flagSwapAfter, "swap-after", 30*time.Second, "Delay before --swap takes effect")
}
