package alarm

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/farmgate/internal/log"
	"gopkg.in/hraban/opus.v2"
)

// Player plays the alarm sound once, returning when playback ends or
// ctx is cancelled.
type Player interface {
	Play(ctx context.Context) error
}

// CommandPlayer runs an external program per playback, optionally
// feeding Stdin.
type CommandPlayer struct {
	Name  string
	Args  []string
	Stdin []byte
}

// Play runs the command to completion or until ctx is cancelled.
func (p *CommandPlayer) Play(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, p.Name, p.Args...)
	if p.Stdin != nil {
		cmd.Stdin = bytes.NewReader(p.Stdin)
	}
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%s: %w", p.Name, err)
	}
	return nil
}

// AudioConfig selects the sound and the program that plays it.
type AudioConfig struct {
	File   string // .wav, .mp3 or .opus
	Player string // aplay, paplay, ffplay, mpg123 ...
}

// DefaultAudioConfig plays static/alert.wav with aplay.
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{File: "static/alert.wav", Player: "aplay"}
}

// opusRate is the decode rate for Ogg Opus clips.
const opusRate = 48000

// NewPlayer builds a CommandPlayer for cfg. Opus clips are decoded once
// to raw PCM and streamed to the player on stdin.
func NewPlayer(cfg AudioConfig) (Player, error) {
	if _, err := os.Stat(cfg.File); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSound, cfg.File)
	}
	name := cfg.Player
	if name == "" {
		name = DefaultAudioConfig().Player
	}

	if strings.EqualFold(filepath.Ext(cfg.File), ".opus") {
		data, err := os.ReadFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoSound, err)
		}
		pcm, channels, err := decodeOpus(data)
		if err != nil {
			return nil, err
		}
		args, err := rawArgs(name, channels)
		if err != nil {
			return nil, err
		}
		return &CommandPlayer{Name: name, Args: args, Stdin: pcm}, nil
	}

	args := []string{cfg.File}
	switch filepath.Base(name) {
	case "aplay", "paplay", "mpg123":
		args = []string{"-q", cfg.File}
	case "ffplay":
		args = []string{"-nodisp", "-autoexit", "-loglevel", "quiet", cfg.File}
	}
	return &CommandPlayer{Name: name, Args: args}, nil
}

// rawArgs returns the flags that make player read 48kHz PCM16 from stdin.
func rawArgs(player string, channels int) ([]string, error) {
	rate, ch := fmt.Sprint(opusRate), fmt.Sprint(channels)
	switch filepath.Base(player) {
	case "aplay":
		return []string{"-q", "-t", "raw", "-f", "S16_LE", "-r", rate, "-c", ch, "-"}, nil
	case "paplay", "pacat":
		return []string{"--raw", "--format=s16le", "--rate=" + rate, "--channels=" + ch}, nil
	case "ffplay":
		return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-f", "s16le", "-ar", rate, "-ac", ch, "-"}, nil
	default:
		return nil, fmt.Errorf("alarm: %s cannot play raw PCM for opus clips", player)
	}
}

// opusChannels reads the channel count from the OpusHead packet.
func opusChannels(data []byte) (int, error) {
	i := bytes.Index(data, []byte("OpusHead"))
	if i < 0 || i+9 >= len(data) {
		return 0, errors.New("opus: missing OpusHead")
	}
	ch := int(data[i+9])
	if ch < 1 || ch > 2 {
		return 0, fmt.Errorf("opus: unsupported channel count %d", ch)
	}
	return ch, nil
}

// decodeOpus decodes an Ogg Opus clip into interleaved little-endian
// PCM16 at 48kHz.
func decodeOpus(data []byte) ([]byte, int, error) {
	channels, err := opusChannels(data)
	if err != nil {
		return nil, 0, err
	}
	stream, err := opus.NewStream(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("open opus stream: %w", err)
	}
	defer stream.Close()

	var out bytes.Buffer
	// 120ms at 48kHz per channel, the largest opus frame
	frame := make([]int16, 5760*channels)
	for {
		n, err := stream.Read(frame)
		if n > 0 {
			// n counts samples per channel
			if werr := binary.Write(&out, binary.LittleEndian, frame[:n*channels]); werr != nil {
				return nil, 0, werr
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("decode opus: %w", err)
		}
	}
	return out.Bytes(), channels, nil
}

// Audio loops a Player until stopped.
type Audio struct {
	player Player
	pause  time.Duration // wait after a failed playback
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAudio builds a looping alarm for cfg.
func NewAudio(cfg AudioConfig) (*Audio, error) {
	p, err := NewPlayer(cfg)
	if err != nil {
		return nil, err
	}
	return NewAudioWithPlayer(p), nil
}

// NewAudioWithPlayer wraps any Player.
func NewAudioWithPlayer(p Player) *Audio {
	return &Audio{
		player: p,
		pause:  500 * time.Millisecond,
		logger: log.Component("alarm"),
	}
}

// SetPlayer swaps the sound. A running loop picks it up on the next
// repetition.
func (a *Audio) SetPlayer(p Player) {
	a.mu.Lock()
	a.player = p
	a.mu.Unlock()
}

// Start begins looping playback.
func (a *Audio) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.loop(ctx, a.done)

	a.logger.Info("🚨 alarm started")
	return nil
}

func (a *Audio) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for ctx.Err() == nil {
		a.mu.Lock()
		p := a.player
		a.mu.Unlock()
		if err := p.Play(ctx); err != nil {
			a.logger.Warn("alarm playback failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(a.pause):
			}
		}
	}
}

// Stop ends playback and waits for the player to exit.
func (a *Audio) Stop() error {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		return errors.New("alarm: player did not stop")
	}
	a.logger.Info("alarm stopped")
	return nil
}

// Active reports whether the loop is running.
func (a *Audio) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}
