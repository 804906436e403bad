// Package metadata probes uploaded recordings with ffprobe before they are queued.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"voice-notes-go/internal/types"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

type Stream struct {
	Index      int               `json:"index"`
	CodecName  string            `json:"codec_name"`
	CodecType  string            `json:"codec_type"`
	Duration   string            `json:"duration"`
	SampleRate string            `json:"sample_rate"`
	Channels   int               `json:"channels"`
	Tags       map[string]string `json:"tags"`
}

type Format struct {
	Filename   string            `json:"filename"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    string            `json:"bit_rate"`
	FormatName string            `json:"format_name"`
	Tags       map[string]string `json:"tags"`
}

// Prober runs ffprobe; the zero value uses "ffprobe" from PATH.
type Prober struct {
	Binary string
	run    func(ctx context.Context, name string, args ...string) ([]byte, error)
	stat   func(name string) (os.FileInfo, error)
}

func NewProber(binary string) *Prober {
	return &Prober{Binary: binary}
}

// Inspect executes ffprobe against path and decodes the JSON response.
func (p *Prober) Inspect(ctx context.Context, path string) (Result, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}
	args := []string{"-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path}
	output, err := p.runner()(ctx, p.binary(), args...)
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(output)))
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// Extract returns the metadata stored with a note before it is queued.
func (p *Prober) Extract(ctx context.Context, path string) (types.AudioMetadata, error) {
	result, err := p.Inspect(ctx, path)
	if err != nil {
		return types.AudioMetadata{}, err
	}
	audio, ok := result.AudioStream()
	if !ok {
		return types.AudioMetadata{}, fmt.Errorf("ffprobe: %s has no audio stream", path)
	}

	meta := types.AudioMetadata{
		DurationSeconds: result.DurationSeconds(),
		Format:          result.Format.FormatName,
		Codec:           audio.CodecName,
		SampleRate:      int(parseFloat(audio.SampleRate)),
		Channels:        audio.Channels,
		SizeBytes:       result.SizeBytes(),
	}
	if math.IsNaN(meta.DurationSeconds) {
		meta.DurationSeconds = 0
	}

	if recorded, ok := result.RecordedAt(); ok {
		meta.RecordedAt = recorded
	} else if info, err := p.stater()(path); err == nil {
		meta.RecordedAt = info.ModTime().UTC()
	}
	return meta, nil
}

// Duration returns the container duration in seconds; the transcoder uses it to scale progress.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	result, err := p.Inspect(ctx, path)
	if err != nil {
		return 0, err
	}
	d := result.DurationSeconds()
	if math.IsNaN(d) || d < 0 {
		return 0, nil
	}
	return d, nil
}

func (p *Prober) binary() string {
	if b := strings.TrimSpace(p.Binary); b != "" {
		return b
	}
	return "ffprobe"
}

func (p *Prober) runner() func(ctx context.Context, name string, args ...string) ([]byte, error) {
	if p.run != nil {
		return p.run
	}
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return exec.CommandContext(ctx, name, args...).CombinedOutput()
	}
}

func (p *Prober) stater() func(string) (os.FileInfo, error) {
	if p.stat != nil {
		return p.stat
	}
	return os.Stat
}

// AudioStream returns the first audio stream.
func (r Result) AudioStream() (Stream, bool) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			return stream, true
		}
	}
	return Stream{}, false
}

// DurationSeconds returns the container duration, falling back to the audio stream.
func (r Result) DurationSeconds() float64 {
	if d := parseFloat(r.Format.Duration); d > 0 {
		return d
	}
	if audio, ok := r.AudioStream(); ok {
		return parseFloat(audio.Duration)
	}
	return parseFloat(r.Format.Duration)
}

func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if math.IsNaN(size) || size < 0 {
		return 0
	}
	return int64(size)
}

// RecordedAt looks for a creation timestamp in format then stream tags.
func (r Result) RecordedAt() (time.Time, bool) {
	candidates := []map[string]string{r.Format.Tags}
	for _, s := range r.Streams {
		candidates = append(candidates, s.Tags)
	}
	for _, tags := range candidates {
		for key, value := range tags {
			switch strings.ToLower(key) {
			case "creation_time", "date", "com.apple.quicktime.creationdate":
				if ts, ok := parseTimestamp(value); ok {
					return ts, true
				}
			}
		}
	}
	return time.Time{}, false
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
