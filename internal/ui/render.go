package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/weiawesome/pawfect-live/internal/orchestrator"
)

var reactionIcons = map[string]string{
	"heart": "❤️",
	"paw":   "🐾",
	"clap":  "👏",
	"laugh": "😂",
	"wow":   "😮",
}

// Renderer prints the parts of each UIState that changed since the last one.
type Renderer struct {
	out   io.Writer
	first bool
	last  orchestrator.UIState

	seenChat      map[string]bool
	seenReactions map[string]bool
}

func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{
		out:           out,
		first:         true,
		seenChat:      make(map[string]bool),
		seenReactions: make(map[string]bool),
	}
}

// Render writes the delta between st and the previously rendered state.
func (r *Renderer) Render(st orchestrator.UIState) {
	prev := r.last
	r.last = st

	if r.first || st.Status != prev.Status {
		fmt.Fprintln(r.out, StatusLine(st.Status))
	}
	if r.first || st.IsLive != prev.IsLive {
		if st.IsLive {
			fmt.Fprintf(r.out, "%s room %s is live\n", LiveBadgeStyle.Render("LIVE"), st.RoomID)
		} else if !r.first {
			fmt.Fprintln(r.out, MutedStyle.Render("Stream offline"))
		}
	}
	if st.Counts != prev.Counts {
		fmt.Fprintln(r.out, CountsLine(st))
	}
	if streamPeer(st) != streamPeer(prev) {
		if p := streamPeer(st); p != "" {
			fmt.Fprintf(r.out, "%s receiving stream from %s\n", IconLive, p)
		} else if !r.first {
			fmt.Fprintln(r.out, MutedStyle.Render("Remote stream ended"))
		}
	}

	for _, msg := range st.Chat {
		if r.seenChat[msg.ID] {
			continue
		}
		r.seenChat[msg.ID] = true
		fmt.Fprintf(r.out, "%s %s %s %s\n",
			MutedStyle.Render(msg.Timestamp.Local().Format("15:04:05")),
			IconChat,
			SenderStyle.Render(msg.Sender+":"),
			msg.Text,
		)
	}

	visible := make(map[string]bool, len(st.Reactions))
	for _, re := range st.Reactions {
		visible[re.ID] = true
		if r.seenReactions[re.ID] {
			continue
		}
		r.seenReactions[re.ID] = true
		fmt.Fprintf(r.out, "%s %s\n", ReactionIcon(re.Emoji), MutedStyle.Render(re.Sender))
	}
	for id := range r.seenReactions {
		if !visible[id] {
			delete(r.seenReactions, id)
		}
	}

	r.first = false
}

// StatusLine formats a connection status with a color matching its state.
func StatusLine(s orchestrator.Status) string {
	msg := s.Message()
	switch s.State {
	case orchestrator.StateError:
		line := ErrorStyle.Render(IconError + " " + msg)
		if s.CanReconnect() {
			line += MutedStyle.Render("  (/reconnect to retry)")
		}
		return line
	case orchestrator.StateStreamConnected:
		return SuccessStyle.Render(IconLive + " " + msg)
	case orchestrator.StateJoined, orchestrator.StateConnectedToHub:
		return TitleStyle.Render(IconPaw + " " + msg)
	default:
		return MutedStyle.Render(msg)
	}
}

// CountsLine summarizes audience size and roster.
func CountsLine(st orchestrator.UIState) string {
	names := make([]string, 0, len(st.Roster))
	for _, p := range st.Roster {
		names = append(names, p.DisplayName)
	}
	line := fmt.Sprintf("%s %d watching, %d in room", IconPeer, st.Counts.Viewers, st.Counts.Participants)
	if len(names) > 0 {
		line += MutedStyle.Render(" [" + strings.Join(names, ", ") + "]")
	}
	return line
}

// ReactionIcon maps a reaction name to its emoji, passing unknown values
// through unchanged.
func ReactionIcon(name string) string {
	if icon, ok := reactionIcons[name]; ok {
		return icon
	}
	if name == "" {
		return reactionIcons["heart"]
	}
	return name
}

func streamPeer(st orchestrator.UIState) string {
	if st.RemoteStream == nil {
		return ""
	}
	return st.RemoteStream.PeerID
}
