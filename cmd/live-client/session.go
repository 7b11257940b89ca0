package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/weiawesome/pawfect-live/internal/clientconfig"
	"github.com/weiawesome/pawfect-live/internal/domain"
	"github.com/weiawesome/pawfect-live/internal/hubapi"
	"github.com/weiawesome/pawfect-live/internal/orchestrator"
	"github.com/weiawesome/pawfect-live/internal/peer"
	"github.com/weiawesome/pawfect-live/internal/signaling"
	"github.com/weiawesome/pawfect-live/internal/ui"
	pkglog "github.com/weiawesome/pawfect-live/pkg/log"
)

const defaultSTUN = "stun:stun.l.google.com:19302"

type session struct {
	orch   *orchestrator.Orchestrator
	logger zerolog.Logger
}

func newSession(ctx context.Context, cfg *clientconfig.Config, roomID string, role domain.Role, onTrack orchestrator.TrackHandler) (*session, error) {
	logger := pkglog.L().With().Str(pkglog.FieldRoomID, roomID).Str(pkglog.FieldRole, string(role)).Logger()

	api := hubapi.New(cfg.Hub.APIURL, cfg.Hub.Token)
	iceServers, err := api.ICEServers(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("ice servers unavailable, using public STUN")
		iceServers = []webrtc.ICEServer{{URLs: []string{defaultSTUN}}}
	}

	factory, err := peer.NewPionFactory(iceServers)
	if err != nil {
		return nil, err
	}

	dialCfg := signaling.Config{
		URL:          cfg.Hub.URL,
		Token:        cfg.Hub.Token,
		DialAttempts: cfg.Dial.Attempts,
		DialBackoff:  cfg.Dial.Backoff,
	}
	dial := func(ctx context.Context) (orchestrator.HubConn, error) {
		c, err := signaling.Dial(ctx, dialCfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	orch := orchestrator.New(dial, factory, orchestrator.Options{
		RoomID:              roomID,
		Role:                role,
		Identity:            cfg.IdentityOrNil(),
		ConnectTimeout:      cfg.Connect.Timeout,
		InitialBackoff:      cfg.Reconnect.InitialBackoff,
		MaxBackoff:          cfg.Reconnect.MaxBackoff,
		MaxAttempts:         cfg.Reconnect.MaxAttempts,
		CandidateMaxPerPeer: cfg.Candidates.MaxPerPeer,
		CandidateTTL:        cfg.Candidates.TTL,
		ReactionDisplay:     cfg.Reactions.Display,
		ChatHistory:         cfg.Chat.History,
		OnTrack:             onTrack,
	})

	return &session{orch: orch, logger: logger}, nil
}

// run joins the room, renders updates and reads commands from stdin until
// ctx ends or the user quits. It always leaves the room before returning.
func (s *session) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.orch.Leave()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.render(ctx)
	}()

	if err := s.orch.Join(ctx); err != nil {
		if errors.Is(err, orchestrator.ErrAborted) {
			return nil
		}
		s.logger.Warn().Err(err).Msg("join failed, retrying in the background")
		ui.PrintWarning(err.Error())
	}

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	for {
		select {
		case <-ctx.Done():
			cancel()
			<-done
			return nil
		case line, ok := <-lines:
			if !ok {
				// stdin closed; keep the session open until interrupted
				lines = nil
				continue
			}
			if quit := s.command(ctx, line); quit {
				cancel()
				<-done
				return nil
			}
		}
	}
}

func (s *session) render(ctx context.Context) {
	r := ui.NewRenderer(ui.Out)
	r.Render(s.orch.State())
	for {
		select {
		case <-ctx.Done():
			return
		case st := <-s.orch.Updates():
			r.Render(st)
		}
	}
}

// command handles one input line and reports whether the user asked to quit.
func (s *session) command(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	var err error
	switch {
	case line == "/quit" || line == "/leave":
		return true
	case line == "/react" || strings.HasPrefix(line, "/react "):
		err = s.orch.SendReaction(strings.TrimSpace(strings.TrimPrefix(line, "/react")))
	case line == "/reconnect":
		err = s.orch.Reconnect(ctx)
	case line == "/live":
		err = s.orch.CheckLive()
	case strings.HasPrefix(line, "/"):
		ui.PrintWarning("unknown command " + strings.Fields(line)[0])
		return false
	default:
		err = s.orch.SendChat(line)
	}
	if err != nil {
		ui.PrintWarning(err.Error())
	}
	return false
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}
