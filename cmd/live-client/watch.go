package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/weiawesome/pawfect-live/internal/domain"
	"github.com/weiawesome/pawfect-live/internal/media"
	"github.com/weiawesome/pawfect-live/internal/peer"
	"github.com/weiawesome/pawfect-live/internal/ui"
	pkglog "github.com/weiawesome/pawfect-live/pkg/log"
)

var flagRecordDir string

var watchCmd = &cobra.Command{
	Use:     "watch <room-id>",
	Aliases: []string{"w"},
	Short:   "Join a room as a viewer",
	Long: `Join a live room as a viewer, print chat, reactions and audience changes,
and optionally record the received stream.

Examples:
  live-client watch kittens
  live-client watch kittens --record ./recordings`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return watch(args[0])
	},
}

func watch(roomID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var recorder *media.Recorder
	if flagRecordDir != "" {
		recorder, err = media.NewRecorder(flagRecordDir)
		if err != nil {
			return err
		}
	}

	logger := pkglog.L()
	onTrack := func(peerID string, track peer.RemoteTrack) {
		l := logger.With().Str(pkglog.FieldTargetID, peerID).Str("track", track.ID()).Str("codec", track.Codec().MimeType).Logger()

		if recorder == nil {
			drain(track)
			l.Debug().Msg("remote track ended")
			return
		}

		path, err := recorder.Path(peerID, track)
		if err != nil {
			l.Warn().Err(err).Msg("track not recorded")
			drain(track)
			return
		}
		ui.PrintInfof("recording %s to %s", track.Kind(), path)
		if err := recorder.Record(peerID, track); err != nil {
			l.Warn().Err(err).Msg("recording stopped")
			drain(track)
		}
	}

	sess, err := newSession(ctx, cfg, roomID, domain.RoleViewer, onTrack)
	if err != nil {
		return err
	}

	ui.PrintInfof("joining %s as a viewer", roomID)
	return sess.run(ctx)
}

// drain reads a remote track until it ends so its buffers never fill.
func drain(track peer.RemoteTrack) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVarP(&flagRecordDir, "record", "r", "", "Directory to record received tracks into (IVF/Ogg)")
}
