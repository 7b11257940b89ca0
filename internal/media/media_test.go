package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTrack struct {
	id      string
	mime    string
	packets []*rtp.Packet
}

func (t *fakeTrack) ID() string { return t.id }

func (t *fakeTrack) Codec() webrtc.RTPCodecParameters {
	return webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: t.mime, ClockRate: 48000}}
}

func (t *fakeTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	if len(t.packets) == 0 {
		return nil, nil, io.EOF
	}
	p := t.packets[0]
	t.packets = t.packets[1:]
	return p, nil, nil
}

func opusPackets(n int) []*rtp.Packet {
	packets := make([]*rtp.Packet, 0, n)
	for i := 0; i < n; i++ {
		packets = append(packets, &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    111,
				SequenceNumber: uint16(i + 1),
				Timestamp:      uint32(960 * (i + 1)),
				SSRC:           1,
			},
			Payload: []byte{0xfc, 0xff, 0xfe},
		})
	}
	return packets
}

// writeIVF builds a minimal IVF file with the given FourCC and frame count.
func writeIVF(t *testing.T, fourCC string, frames int) string {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("DKIF")
	binary.Write(&buf, binary.LittleEndian, uint16(0))
	binary.Write(&buf, binary.LittleEndian, uint16(32))
	buf.WriteString(fourCC)
	binary.Write(&buf, binary.LittleEndian, uint16(640))
	binary.Write(&buf, binary.LittleEndian, uint16(480))
	binary.Write(&buf, binary.LittleEndian, uint32(1000))
	binary.Write(&buf, binary.LittleEndian, uint32(1))
	binary.Write(&buf, binary.LittleEndian, uint32(frames))
	binary.Write(&buf, binary.LittleEndian, uint32(0))

	for i := 0; i < frames; i++ {
		payload := []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a}
		binary.Write(&buf, binary.LittleEndian, uint32(len(payload)))
		binary.Write(&buf, binary.LittleEndian, uint64(i))
		buf.Write(payload)
	}

	path := filepath.Join(t.TempDir(), "video.ivf")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestRecorder_Opus(t *testing.T) {
	rec, err := NewRecorder(t.TempDir())
	require.NoError(t, err)

	track := &fakeTrack{id: "audio", mime: webrtc.MimeTypeOpus, packets: opusPackets(5)}
	path, err := rec.Path("broadcaster/1", track)
	require.NoError(t, err)
	assert.Equal(t, "broadcaster_1_audio.ogg", filepath.Base(path))

	require.NoError(t, rec.Record("broadcaster/1", track))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("OggS")))
}

func TestRecorder_VP8WritesIVFHeader(t *testing.T) {
	rec, err := NewRecorder(t.TempDir())
	require.NoError(t, err)

	track := &fakeTrack{id: "video", mime: webrtc.MimeTypeVP8}
	require.NoError(t, rec.Record("b", track))

	path, err := rec.Path("b", track)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("DKIF")))
}

func TestRecorder_UnsupportedCodec(t *testing.T) {
	rec, err := NewRecorder(t.TempDir())
	require.NoError(t, err)

	err = rec.Record("b", &fakeTrack{id: "video", mime: webrtc.MimeTypeH264})
	assert.ErrorIs(t, err, ErrUnsupportedCodec)
}

func TestOpenFiles_RequiresAFile(t *testing.T) {
	_, err := OpenFiles("", "")
	assert.ErrorIs(t, err, ErrNoTracks)
}

func TestOpenFiles_Video(t *testing.T) {
	src, err := OpenFiles(writeIVF(t, "VP80", 3), "")
	require.NoError(t, err)

	tracks := src.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, webrtc.RTPCodecTypeVideo, tracks[0].Kind())
	assert.Equal(t, src.ID(), tracks[0].StreamID())
}

func TestOpenFiles_AV1(t *testing.T) {
	src, err := OpenFiles(writeIVF(t, "AV01", 2), "")
	require.NoError(t, err)

	tracks := src.Tracks()
	require.Len(t, tracks, 1)
	sample, ok := tracks[0].(*webrtc.TrackLocalStaticSample)
	require.True(t, ok)
	assert.Equal(t, webrtc.MimeTypeAV1, sample.Codec().MimeType)
}

func TestOpenFiles_UnsupportedFourCC(t *testing.T) {
	_, err := OpenFiles(writeIVF(t, "H264", 1), "")
	assert.ErrorIs(t, err, ErrUnsupportedCodec)
}

func TestOpenFiles_MissingFile(t *testing.T) {
	_, err := OpenFiles(filepath.Join(t.TempDir(), "nope.ivf"), "")
	assert.Error(t, err)
}

func TestOpenFiles_RecordedAudioPlaysBack(t *testing.T) {
	rec, err := NewRecorder(t.TempDir())
	require.NoError(t, err)
	track := &fakeTrack{id: "audio", mime: webrtc.MimeTypeOpus, packets: opusPackets(10)}
	require.NoError(t, rec.Record("b", track))
	path, err := rec.Path("b", track)
	require.NoError(t, err)

	src, err := OpenFiles(writeIVF(t, "VP80", 2), path)
	require.NoError(t, err)

	tracks := src.Tracks()
	require.Len(t, tracks, 2)
	assert.Equal(t, webrtc.RTPCodecTypeVideo, tracks[0].Kind())
	assert.Equal(t, webrtc.RTPCodecTypeAudio, tracks[1].Kind())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src.Start(ctx)
	time.Sleep(30 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		src.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("source did not stop")
	}
}
