package media

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pion/opus"
	"github.com/pion/opus/pkg/oggreader"
	"github.com/zeozeozeo/gomplerate"

	. "github.com/roelfdiedericks/voxnote/internal/logging"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

const (
	// TargetSampleRate is what whisper.cpp expects.
	TargetSampleRate = 16000
	maxFrameSize     = 5760 // max Opus frame (120ms at 48kHz)
)

// ToFloat32 decodes path to 16 kHz mono float32 samples in [-1, 1].
// ffmpeg is preferred; OGG/Opus falls back to a pure Go decoder when
// ffmpeg is missing.
func (t *Tools) ToFloat32(ctx context.Context, path string) ([]float32, error) {
	ext := strings.ToLower(filepath.Ext(path))

	if t.Available() {
		return t.float32ViaFFmpeg(ctx, path)
	}
	if ext == ".ogg" || ext == ".opus" || ext == ".oga" {
		L_debug("media: ffmpeg missing, decoding opus in process", "file", path)
		return decodeOggOpusSafe(path)
	}
	return nil, types.NewError(types.KindMedia, "decode", fmt.Sprintf("unsupported audio format %s without ffmpeg", ext))
}

func (t *Tools) float32ViaFFmpeg(ctx context.Context, path string) ([]float32, error) {
	tmp, err := os.CreateTemp("", "voxnote-*.raw")
	if err != nil {
		return nil, types.Wrap(types.KindMedia, "decode", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := t.DecodePCM(ctx, path, tmpPath); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, types.Wrap(types.KindMedia, "decode", err)
	}
	return int16ToFloat32(bytesToInt16(raw)), nil
}

// decodeOggOpusSafe recovers from decoder panics on malformed packets.
func decodeOggOpusSafe(path string) (samples []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			L_warn("media: opus decoder panicked", "panic", r)
			samples = nil
			err = types.NewError(types.KindMedia, "decode", fmt.Sprintf("opus decoder panic: %v", r))
		}
	}()
	return decodeOggOpus(path)
}

func decodeOggOpus(path string) ([]float32, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, statError(err)
	}
	defer file.Close()

	ogg, header, err := oggreader.NewWith(file)
	if err != nil {
		return nil, types.Wrap(types.KindMedia, "decode", fmt.Errorf("parse ogg container: %w", err))
	}
	sampleRate := int(header.SampleRate)
	channels := int(header.Channels)
	if channels < 1 {
		channels = 1
	}

	decoder := opus.NewDecoder()
	out := make([]byte, maxFrameSize*channels*2)

	var pcm []int16
	for {
		segments, _, err := ogg.ParseNextPage()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, types.Wrap(types.KindMedia, "decode", fmt.Errorf("parse ogg page: %w", err))
		}
		for _, seg := range segments {
			if len(seg) == 0 {
				continue
			}
			if _, _, err := decoder.Decode(seg, out); err != nil {
				L_trace("media: skipping opus packet", "error", err, "len", len(seg))
				continue
			}
			pcm = append(pcm, trimTrailingSilence(bytesToInt16(out))...)
		}
	}
	if len(pcm) == 0 {
		return nil, types.NewError(types.KindMedia, "decode", "no audio samples decoded from "+path)
	}

	pcm = toMono(pcm, channels)
	if sampleRate != TargetSampleRate {
		pcm = resample(pcm, sampleRate, TargetSampleRate)
	}
	return int16ToFloat32(pcm), nil
}

func bytesToInt16(buf []byte) []int16 {
	samples := make([]int16, len(buf)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:])) // #nosec G115 - PCM reinterpretation
	}
	return samples
}

// trimTrailingSilence drops the unused zero tail of a fixed decode buffer.
func trimTrailingSilence(samples []int16) []int16 {
	end := len(samples)
	for end > 0 && samples[end-1] == 0 {
		end--
	}
	return samples[:end]
}

func toMono(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	mono := make([]int16, len(samples)/channels)
	for i := range mono {
		var sum int32
		for ch := 0; ch < channels; ch++ {
			sum += int32(samples[i*channels+ch])
		}
		mono[i] = int16(sum / int32(channels)) // #nosec G115 - average of int16 values
	}
	return mono
}

func resample(samples []int16, from, to int) []int16 {
	r, err := gomplerate.NewResampler(1, from, to)
	if err != nil {
		L_warn("media: resampler unavailable, keeping source rate", "error", err)
		return samples
	}
	return r.ResampleInt16(samples)
}

func int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}
