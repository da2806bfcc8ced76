package narration

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/reishilabs/ganochat/internal/config"
	"github.com/rs/zerolog"
)

// baseWordsPerMinute is the engine's natural speaking rate; Rate multiplies it.
const baseWordsPerMinute = 175

// EngineSynthesizer speaks through an external speech engine binary
// (espeak-ng by default). Each utterance is one engine process; cancellation
// kills the process.
type EngineSynthesizer struct {
	binary string
	logger zerolog.Logger

	voicesOnce sync.Once
	voices     []Voice
	voicesErr  error
}

// NewEngineSynthesizer creates a synthesizer for the configured engine.
// It returns ErrEngineUnavailable when the binary is not installed.
func NewEngineSynthesizer(cfg config.NarrationConfig, logger zerolog.Logger) (*EngineSynthesizer, error) {
	binary := cfg.EngineBinary
	if binary == "" {
		binary = "espeak-ng"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return nil, ErrEngineUnavailable
	}

	return &EngineSynthesizer{
		binary: binary,
		logger: logger.With().Str("component", "speech-engine").Logger(),
	}, nil
}

// Voices lists the engine's installed voices. The list is stable for the
// process lifetime, so it is fetched once.
func (s *EngineSynthesizer) Voices(ctx context.Context) ([]Voice, error) {
	s.voicesOnce.Do(func() {
		s.voices, s.voicesErr = s.listVoices(ctx)
	})
	return s.voices, s.voicesErr
}

func (s *EngineSynthesizer) listVoices(ctx context.Context) ([]Voice, error) {
	cmd := exec.CommandContext(ctx, s.binary, "--voices")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("list voices: %w", err)
	}

	voices := parseVoiceTable(output)
	s.logger.Debug().Int("count", len(voices)).Msg("Engine voices listed")
	return voices, nil
}

// parseVoiceTable reads the engine's --voices output. The first line is a
// header: Pty Language Age/Gender VoiceName File Other Languages.
func parseVoiceTable(output []byte) []Voice {
	var voices []Voice
	scanner := bufio.NewScanner(bytes.NewReader(output))
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if first {
			first = false
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		voices = append(voices, Voice{
			Name:   fields[3],
			Locale: fields[1],
		})
	}
	return voices
}

// Speak starts playback of one utterance through the engine.
func (s *EngineSynthesizer) Speak(ctx context.Context, req UtteranceRequest) (Utterance, error) {
	if req.Text == "" {
		return nil, ErrNothingToNarrate
	}

	voice := req.Locale
	if req.Voice != nil {
		voice = req.Voice.Name
	}

	rate := req.Rate
	if rate == 0 {
		rate = RateNormal
	}
	wpm := int(float64(baseWordsPerMinute) * float64(rate))

	// Engine amplitude range is 0-200 with 100 as the natural level.
	amplitude := int(req.Volume * 100)

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, s.binary,
		"-v", voice,
		"-s", fmt.Sprintf("%d", wpm),
		"-a", fmt.Sprintf("%d", amplitude),
		req.Text,
	)

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start speech engine: %w", err)
	}

	s.logger.Debug().
		Str("voice", voice).
		Int("wpm", wpm).
		Int("amplitude", amplitude).
		Int("textLen", len(req.Text)).
		Msg("Utterance started")

	utt := &engineUtterance{
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer close(utt.done)
		if err := cmd.Wait(); err != nil && !utt.Cancelled() {
			s.logger.Warn().Err(err).Msg("Speech engine exited with error")
		}
	}()

	return utt, nil
}

type engineUtterance struct {
	done      chan struct{}
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

func (u *engineUtterance) Done() <-chan struct{} {
	return u.done
}

func (u *engineUtterance) Cancel() {
	u.cancelled.Store(true)
	u.cancel()
}

func (u *engineUtterance) Cancelled() bool {
	return u.cancelled.Load()
}
