package chunking

import "time"

const (
	// DefaultAudioThreshold is the duration above which audio is split.
	DefaultAudioThreshold = 10 * time.Minute

	// DefaultAudioWindow is the length of each exported audio window.
	DefaultAudioWindow = 8 * time.Minute

	// DefaultMaxUploadBytes is the usual hard upload limit of hosted
	// transcription APIs.
	DefaultMaxUploadBytes = 25 * 1024 * 1024
)

// AudioWindow is a time range of a recording, exported and transcribed on
// its own. Windows never overlap.
type AudioWindow struct {
	Index    int
	Start    time.Duration
	Duration time.Duration
}

// End returns the exclusive end of the window.
func (w AudioWindow) End() time.Duration {
	return w.Start + w.Duration
}

// AudioOptions configures audio chunking.
type AudioOptions struct {
	Threshold time.Duration
	Window    time.Duration
}

// DefaultAudioOptions returns the standard windowing.
func DefaultAudioOptions() AudioOptions {
	return AudioOptions{Threshold: DefaultAudioThreshold, Window: DefaultAudioWindow}
}

func (o AudioOptions) normalized() AudioOptions {
	if o.Threshold <= 0 {
		o.Threshold = DefaultAudioThreshold
	}
	if o.Window <= 0 {
		o.Window = DefaultAudioWindow
	}
	return o
}

// NeedsAudioChunking reports whether a recording of the given duration
// should be split, or whether a file that is still too large after
// compression must be split regardless of duration.
func NeedsAudioChunking(duration time.Duration, size, maxBytes int64, opts AudioOptions) bool {
	opts = opts.normalized()
	if duration > opts.Threshold {
		return true
	}
	return maxBytes > 0 && size > maxBytes
}

// PlanAudio partitions total into consecutive windows of opts.Window. The
// last window holds the remainder.
func PlanAudio(total time.Duration, opts AudioOptions) []AudioWindow {
	if total <= 0 {
		return nil
	}
	opts = opts.normalized()

	var windows []AudioWindow
	for start := time.Duration(0); start < total; start += opts.Window {
		d := opts.Window
		if start+d > total {
			d = total - start
		}
		windows = append(windows, AudioWindow{Index: len(windows), Start: start, Duration: d})
	}
	return windows
}

// WindowForSize picks a window length so that each piece of a file of
// size bytes and the given duration stays under maxBytes, never longer than
// opts.Window. Used when a short file is still too large after compression.
func WindowForSize(duration time.Duration, size, maxBytes int64, opts AudioOptions) time.Duration {
	opts = opts.normalized()
	if size <= 0 || maxBytes <= 0 || duration <= 0 {
		return opts.Window
	}
	// keep 10% headroom for container overhead
	perPiece := time.Duration(float64(duration) * float64(maxBytes) * 0.9 / float64(size))
	if perPiece < time.Minute {
		perPiece = time.Minute
	}
	if perPiece > opts.Window {
		return opts.Window
	}
	return perPiece.Truncate(time.Second)
}
