package stt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pion/opus/pkg/oggreader"

	"github.com/roelfdiedericks/voxnote/internal/cancel"
	. "github.com/roelfdiedericks/voxnote/internal/logging"
	"github.com/roelfdiedericks/voxnote/internal/media"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

const (
	googleBaseURL = "https://speech.googleapis.com"

	// Synchronous recognize accepts about one minute of audio and a 10 MB body.
	googleMaxDuration = 55 * time.Second
	googleUploadLimit = 10 << 20
)

// GoogleProvider implements STT using Google Cloud Speech-to-Text.
type GoogleProvider struct {
	apiKey   string
	language string
	baseURL  string
	client   *http.Client
}

// NewGoogleProvider creates a new Google Cloud STT provider.
func NewGoogleProvider(apiKey string, cfg GoogleConfig, timeout time.Duration) (*GoogleProvider, error) {
	if apiKey == "" {
		return nil, types.NewError(types.KindAPIKeyMissing, "init", "google API key not configured")
	}
	lang := cfg.LanguageCode
	if lang == "" {
		lang = "en-US"
	}
	base := cfg.BaseURL
	if base == "" {
		base = googleBaseURL
	}

	L_info("stt: google provider initialized", "language", lang)
	return &GoogleProvider{
		apiKey:   apiKey,
		language: lang,
		baseURL:  strings.TrimRight(base, "/"),
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Name returns the provider name.
func (g *GoogleProvider) Name() string {
	return "google"
}

// MaxUploadBytes returns the synchronous request body cap.
func (g *GoogleProvider) MaxUploadBytes() int64 {
	return googleUploadLimit
}

// MaxDuration limits chunks to what synchronous recognize accepts.
func (g *GoogleProvider) MaxDuration() time.Duration {
	return googleMaxDuration
}

// ChunkFormat asks for FLAC chunks; Google does not decode AAC.
func (g *GoogleProvider) ChunkFormat() string {
	return media.FormatFLAC
}

// getOggSampleRate reads the sample rate from an OGG file header.
// Returns 0 if it cannot be determined.
func getOggSampleRate(filePath string) int {
	file, err := os.Open(filePath)
	if err != nil {
		return 0
	}
	defer file.Close()

	_, header, err := oggreader.NewWith(file)
	if err != nil {
		return 0
	}
	return int(header.SampleRate)
}

// encodingFor maps a file extension to Google's encoding enum and, where
// the container does not carry it, a sample rate.
func encodingFor(path string) (string, int) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ogg", ".opus", ".oga":
		rate := getOggSampleRate(path)
		if rate == 0 {
			rate = 48000
		}
		return "OGG_OPUS", rate
	case ".wav":
		return "LINEAR16", 16000
	case ".mp3":
		return "MP3", 0
	default:
		return "FLAC", 0
	}
}

type googleResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
		ResultEndTime string `json:"resultEndTime"`
	} `json:"results"`
}

// Transcribe sends one file to speech:recognize. Each result becomes a
// segment ending at its resultEndTime.
func (g *GoogleProvider) Transcribe(ctx context.Context, req Request, progress types.ProgressFunc, tok cancel.Token) (types.Transcript, error) {
	if progress == nil {
		progress = types.NoProgress
	}
	if err := cancel.Check(ctx, tok); err != nil {
		return types.Transcript{}, err
	}
	L_debug("stt: google transcribing", "file", req.AudioPath)

	audioData, err := os.ReadFile(req.AudioPath)
	if err != nil {
		return types.Transcript{}, openError(g.Name(), err)
	}
	if int64(len(audioData)) > googleUploadLimit {
		return types.Transcript{}, &types.Error{Kind: types.KindFileTooLarge, Op: "transcribe", Provider: g.Name(),
			Message: "file exceeds upload limit"}
	}

	encoding, sampleRate := encodingFor(req.AudioPath)
	lang := g.language
	if req.Language != "" {
		lang = req.Language
	}
	config := map[string]interface{}{
		"encoding":                   encoding,
		"languageCode":               lang,
		"model":                      "default",
		"enableAutomaticPunctuation": true,
	}
	if sampleRate > 0 {
		config["sampleRateHertz"] = sampleRate
	}
	body, err := json.Marshal(map[string]interface{}{
		"config": config,
		"audio":  map[string]interface{}{"content": base64.StdEncoding.EncodeToString(audioData)},
	})
	if err != nil {
		return types.Transcript{}, types.Wrap(types.KindInvalidResponse, "transcribe", fmt.Errorf("marshal request: %w", err))
	}
	progress(0.1)

	callCtx, stop := cancel.Context(ctx, tok)
	defer stop()

	url := fmt.Sprintf("%s/v1/speech:recognize?key=%s", g.baseURL, g.apiKey)
	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return types.Transcript{}, types.Wrap(types.KindNetwork, "transcribe", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	L_debug("stt: sending to google", "encoding", encoding, "language", lang)
	resp, err := g.client.Do(httpReq)
	if err != nil {
		if tok.IsCancelled() || ctx.Err() == context.Canceled {
			return types.Transcript{}, types.ErrCancelled
		}
		e := types.Wrap(types.KindNetwork, "transcribe", err)
		e.Provider = g.Name()
		return types.Transcript{}, e
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		e := types.Wrap(types.KindNetwork, "transcribe", fmt.Errorf("read response: %w", err))
		e.Provider = g.Name()
		return types.Transcript{}, e
	}

	if resp.StatusCode != http.StatusOK {
		L_error("stt: google request failed", "status", resp.StatusCode, "body", string(raw))
		var errResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(raw, &errResp)
		return types.Transcript{}, types.HTTPError(g.Name(), "transcribe", resp.StatusCode, errResp.Error.Message)
	}

	var result googleResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		e := types.Wrap(types.KindInvalidResponse, "transcribe", fmt.Errorf("parse response: %w", err))
		e.Provider = g.Name()
		return types.Transcript{}, e
	}

	out := types.Transcript{Provider: g.Name()}
	var texts []string
	var prev time.Duration
	for _, r := range result.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		text := strings.TrimSpace(r.Alternatives[0].Transcript)
		end, err := time.ParseDuration(r.ResultEndTime)
		if err != nil {
			end = prev
		}
		texts = append(texts, text)
		out.Segments = append(out.Segments, types.Segment{Start: prev, End: end, Text: text})
		prev = end
	}
	out.Text = strings.Join(texts, " ")
	progress(1)

	L_debug("stt: google transcription complete", "length", len(out.Text))
	return out, nil
}

// Close releases any resources (none for HTTP client).
func (g *GoogleProvider) Close() error {
	return nil
}
