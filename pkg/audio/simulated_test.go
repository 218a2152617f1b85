package audio_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/consultorio/pkg/audio"
)

func TestEstimateSpeechDuration(t *testing.T) {
	tests := []struct {
		text string
		want time.Duration
	}{
		{"", time.Second},
		{"hola", time.Second},
		{"No sé qué hacer... todo me supera últimamente", 3200 * time.Millisecond},
		{strings.Repeat("palabra ", 200), 20 * time.Second},
	}
	for _, tt := range tests {
		if got := audio.EstimateSpeechDuration(tt.text); got != tt.want {
			t.Errorf("EstimateSpeechDuration(%.20q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestSimulatedPlayer_Fixed(t *testing.T) {
	p := &audio.SimulatedPlayer{Fixed: 20 * time.Millisecond}
	start := time.Now()
	if err := p.Play(context.Background(), audio.Clip{Text: "ignored because Fixed is set"}); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Play returned after %v, want at least 20ms", elapsed)
	}
}

func TestSimulatedPlayer_Cancelled(t *testing.T) {
	p := &audio.SimulatedPlayer{Fixed: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Play(ctx, audio.Clip{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
