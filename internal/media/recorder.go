package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"

	pkglog "github.com/weiawesome/pawfect-live/pkg/log"
)

// RTPSource is an inbound track.
type RTPSource interface {
	ID() string
	Codec() webrtc.RTPCodecParameters
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

type rtpWriter interface {
	WriteRTP(packet *rtp.Packet) error
	Close() error
}

// Recorder writes remote tracks to disk: VP8/VP9/AV1 as IVF, Opus as Ogg.
type Recorder struct {
	dir string
}

// NewRecorder records into dir, creating it if needed.
func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create record dir: %w", err)
	}
	return &Recorder{dir: dir}, nil
}

// Path returns the file a track from peerID is written to.
func (r *Recorder) Path(peerID string, track RTPSource) (string, error) {
	ext, err := extension(track.Codec().MimeType)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s%s", sanitize(peerID), sanitize(track.ID()), ext)
	return filepath.Join(r.dir, name), nil
}

// Record copies packets from track until it ends. It blocks; run it in its
// own goroutine.
func (r *Recorder) Record(peerID string, track RTPSource) error {
	path, err := r.Path(peerID, track)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w, err := newWriter(f, track.Codec().MimeType)
	if err != nil {
		f.Close()
		return err
	}
	defer w.Close()

	logger := pkglog.L().With().Str("peer", peerID).Str("file", path).Logger()
	logger.Info().Str("codec", track.Codec().MimeType).Msg("recording track")

	packets := 0
	for {
		packet, _, err := track.ReadRTP()
		if err != nil {
			logger.Info().Int("packets", packets).Msg("track ended")
			return nil
		}
		if err := w.WriteRTP(packet); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		packets++
	}
}

func newWriter(f *os.File, mime string) (rtpWriter, error) {
	switch strings.ToLower(mime) {
	case strings.ToLower(webrtc.MimeTypeVP8), strings.ToLower(webrtc.MimeTypeVP9), strings.ToLower(webrtc.MimeTypeAV1):
		return ivfwriter.NewWith(f, ivfwriter.WithCodec(mime))
	case strings.ToLower(webrtc.MimeTypeOpus):
		return oggwriter.NewWith(f, 48000, 2)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, mime)
	}
}

func extension(mime string) (string, error) {
	switch strings.ToLower(mime) {
	case strings.ToLower(webrtc.MimeTypeVP8), strings.ToLower(webrtc.MimeTypeVP9), strings.ToLower(webrtc.MimeTypeAV1):
		return ".ivf", nil
	case strings.ToLower(webrtc.MimeTypeOpus):
		return ".ogg", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedCodec, mime)
	}
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
