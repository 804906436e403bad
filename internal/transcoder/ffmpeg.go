// Package transcoder normalizes uploaded audio to MP3 with ffmpeg.
package transcoder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// Error is a conversion failure with the tail of ffmpeg's stderr.
type Error struct {
	Source   string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ffmpeg %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("ffmpeg %s: %v (exit=%d): %s", e.Source, e.Err, e.ExitCode, e.Stderr)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// DurationFunc reports the source duration in seconds, 0 when unknown.
type DurationFunc func(ctx context.Context, path string) (float64, error)

type Options struct {
	Binary     string
	Bitrate    string
	Channels   int
	SampleRate int
}

// FFmpeg converts audio with a fixed output profile.
type FFmpeg struct {
	opts     Options
	duration DurationFunc
	command  func(ctx context.Context, name string, args ...string) *exec.Cmd
}

func New(opts Options, duration DurationFunc) *FFmpeg {
	if opts.Binary == "" {
		opts.Binary = "ffmpeg"
	}
	if opts.Bitrate == "" {
		opts.Bitrate = "64k"
	}
	if opts.Channels <= 0 {
		opts.Channels = 1
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	return &FFmpeg{opts: opts, duration: duration, command: exec.CommandContext}
}

// Transcode writes dst as MP3 and reports 0-100 through onProgress.
func (f *FFmpeg) Transcode(ctx context.Context, src, dst string, onProgress func(percent float64)) error {
	if strings.TrimSpace(src) == "" || strings.TrimSpace(dst) == "" {
		return &Error{Source: src, ExitCode: -1, Err: errors.New("source and destination are required")}
	}

	total := 0.0
	if f.duration != nil {
		if d, err := f.duration(ctx, src); err == nil {
			total = d
		}
	}

	cmd := f.command(ctx, f.opts.Binary, buildArgs(src, dst, f.opts)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &Error{Source: src, ExitCode: -1, Err: err}
	}
	stderr := &tailBuffer{limit: 2048}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return &Error{Source: src, ExitCode: -1, Err: err}
	}

	// stdout must be drained before Wait.
	readProgress(stdout, total, onProgress)

	if err := cmd.Wait(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &Error{Source: src, ExitCode: exitCode, Stderr: stderr.String(), Err: err}
	}

	emit(onProgress, 100)
	return nil
}

// buildArgs builds the CLI for mono MP3 output with machine-readable progress on stdout.
func buildArgs(src, dst string, opts Options) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-nostats",
		"-y",
		"-i", src,
		"-vn",
		"-codec:a", "libmp3lame",
		"-b:a", opts.Bitrate,
		"-ac", strconv.Itoa(opts.Channels),
		"-ar", strconv.Itoa(opts.SampleRate),
		"-progress", "pipe:1",
		dst,
	}
}

// readProgress parses ffmpeg -progress key=value lines.
func readProgress(r io.Reader, totalSeconds float64, onProgress func(float64)) {
	scanner := bufio.NewScanner(r)
	last := -1.0
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		// out_time_ms is microseconds as well.
		if key != "out_time_us" && key != "out_time_ms" {
			continue
		}
		if totalSeconds <= 0 {
			continue
		}
		us, err := strconv.ParseFloat(value, 64)
		if err != nil || us < 0 {
			continue
		}
		pct := us / 1e6 / totalSeconds * 100
		if pct > 99 {
			pct = 99
		}
		if pct > last {
			last = pct
			emit(onProgress, pct)
		}
	}
	_, _ = io.Copy(io.Discard, r)
}

func emit(cb func(float64), pct float64) {
	if cb != nil {
		cb(pct)
	}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, _ := t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(t.buf.String())
}
