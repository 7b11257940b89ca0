package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"

	pkglog "github.com/weiawesome/pawfect-live/pkg/log"
)

const oggPageDuration = 20 * time.Millisecond

var (
	ErrNoTracks         = errors.New("no media files given")
	ErrUnsupportedCodec = errors.New("unsupported codec")
)

// FileSource plays IVF video and Ogg/Opus audio files in a loop as a local
// stream. It is the broadcaster's camera in headless runs.
type FileSource struct {
	id        string
	videoPath string
	audioPath string
	video     *webrtc.TrackLocalStaticSample
	audio     *webrtc.TrackLocalStaticSample

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// OpenFiles validates the files and creates their tracks. Either path may
// be empty, not both.
func OpenFiles(videoPath, audioPath string) (*FileSource, error) {
	if videoPath == "" && audioPath == "" {
		return nil, ErrNoTracks
	}

	s := &FileSource{
		id:        "pawfect-" + uuid.NewString()[:8],
		videoPath: videoPath,
		audioPath: audioPath,
	}

	if videoPath != "" {
		mime, err := ivfMimeType(videoPath)
		if err != nil {
			return nil, err
		}
		s.video, err = webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, "video", s.id)
		if err != nil {
			return nil, fmt.Errorf("create video track: %w", err)
		}
	}

	if audioPath != "" {
		if err := checkOggOpus(audioPath); err != nil {
			return nil, err
		}
		var err error
		s.audio, err = webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", s.id)
		if err != nil {
			return nil, fmt.Errorf("create audio track: %w", err)
		}
	}

	return s, nil
}

// ID is the stream id shared by the source's tracks.
func (s *FileSource) ID() string {
	return s.id
}

// Tracks returns the outbound tracks, video first.
func (s *FileSource) Tracks() []webrtc.TrackLocal {
	var tracks []webrtc.TrackLocal
	if s.video != nil {
		tracks = append(tracks, s.video)
	}
	if s.audio != nil {
		tracks = append(tracks, s.audio)
	}
	return tracks
}

// Start begins writing samples until ctx is done or Stop is called.
func (s *FileSource) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.video != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.loop(ctx, "video", func() (int, error) { return playIVF(ctx, s.videoPath, s.video) })
		}()
	}
	if s.audio != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.loop(ctx, "audio", func() (int, error) { return playOgg(ctx, s.audioPath, s.audio) })
		}()
	}
}

// Stop halts playback and waits for the writers to exit.
func (s *FileSource) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *FileSource) loop(ctx context.Context, kind string, play func() (int, error)) {
	logger := pkglog.L().With().Str("kind", kind).Str("stream", s.id).Logger()
	for ctx.Err() == nil {
		written, err := play()
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("media playback stopped")
			}
			return
		}
		if written == 0 {
			logger.Warn().Msg("media file has no samples")
			return
		}
	}
}

func ivfMimeType(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	_, header, err := ivfreader.NewWith(f)
	if err != nil {
		return "", fmt.Errorf("read ivf header %s: %w", path, err)
	}
	return mimeForFourCC(header.FourCC)
}

func checkOggOpus(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, _, err := oggreader.NewWith(f); err != nil {
		return fmt.Errorf("read ogg header %s: %w", path, err)
	}
	return nil
}

func mimeForFourCC(fourCC string) (string, error) {
	switch fourCC {
	case "VP80":
		return webrtc.MimeTypeVP8, nil
	case "VP90":
		return webrtc.MimeTypeVP9, nil
	case "AV01":
		return webrtc.MimeTypeAV1, nil
	default:
		return "", fmt.Errorf("%w: ivf fourcc %q", ErrUnsupportedCodec, fourCC)
	}
}

// playIVF writes one pass of the file, paced by its timebase.
func playIVF(ctx context.Context, path string, track *webrtc.TrackLocalStaticSample) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	reader, header, err := ivfreader.NewWith(f)
	if err != nil {
		return 0, err
	}

	frameDuration := time.Second / 30
	if header.TimebaseDenominator > 0 && header.TimebaseNumerator > 0 {
		frameDuration = time.Duration(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator) * float64(time.Second))
	}

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	written := 0
	for {
		frame, _, err := reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			return written, nil
		}
		if err != nil {
			return written, err
		}

		if err := track.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
			return written, err
		}
		written++

		select {
		case <-ctx.Done():
			return written, ctx.Err()
		case <-ticker.C:
		}
	}
}

// playOgg writes one pass of the file, one page per 20ms.
func playOgg(ctx context.Context, path string, track *webrtc.TrackLocalStaticSample) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	reader, _, err := oggreader.NewWith(f)
	if err != nil {
		return 0, err
	}

	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	written := 0
	for {
		page, header, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			return written, nil
		}
		if err != nil {
			return written, err
		}
		if header.GranulePosition == 0 {
			// OpusTags and other header pages.
			continue
		}

		duration := oggPageDuration
		if header.GranulePosition > lastGranule {
			duration = time.Duration(float64(header.GranulePosition-lastGranule) / 48000 * float64(time.Second))
		}
		lastGranule = header.GranulePosition

		if err := track.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
			return written, err
		}
		written++

		select {
		case <-ctx.Done():
			return written, ctx.Err()
		case <-ticker.C:
		}
	}
}
