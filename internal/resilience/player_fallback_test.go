package resilience

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/MrWong99/consultorio/pkg/audio"
	"github.com/MrWong99/consultorio/pkg/audio/mock"
)

func TestPlayerFallback_UsesPrimary(t *testing.T) {
	primary := &mock.Player{}
	secondary := &mock.Player{}
	p := NewPlayerFallback(primary, "speaker", FallbackConfig{})
	p.AddFallback("simulated", secondary)

	if err := p.Play(context.Background(), audio.Clip{Text: "hola"}); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 0 {
		t.Errorf("calls = %d/%d, want 1/0", primary.CallCount(), secondary.CallCount())
	}
}

func TestPlayerFallback_FallsBackOnError(t *testing.T) {
	primary := &mock.Player{PlayError: errors.New("device lost")}
	secondary := &mock.Player{}
	p := NewPlayerFallback(primary, "speaker", FallbackConfig{})
	p.AddFallback("simulated", secondary)

	if err := p.Play(context.Background(), audio.Clip{Text: "hola"}); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if secondary.CallCount() != 1 {
		t.Fatalf("secondary calls = %d, want 1", secondary.CallCount())
	}
	if secondary.Plays[0].Text != "hola" {
		t.Errorf("clip text = %q", secondary.Plays[0].Text)
	}
}

func TestPlayerFallback_CancelDoesNotFallThrough(t *testing.T) {
	block := make(chan struct{})
	primary := &mock.Player{Block: block}
	secondary := &mock.Player{}
	p := NewPlayerFallback(primary, "speaker", FallbackConfig{})
	p.AddFallback("simulated", secondary)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Play(ctx, audio.Clip{}) }()

	for primary.CallCount() == 0 {
		runtime.Gosched()
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if secondary.CallCount() != 0 {
		t.Errorf("secondary played %d clips after cancel", secondary.CallCount())
	}
	if got := p.Outputs(); len(got) != 2 || got[0] != "speaker" {
		t.Errorf("Outputs() = %v", got)
	}
}

// fixedPlayer plays nothing and has no volume control.
type fixedPlayer struct{}

func (fixedPlayer) Play(context.Context, audio.Clip) error { return nil }

func TestPlayerFallback_SetVolumeReachesEveryOutput(t *testing.T) {
	primary := &mock.Player{}
	secondary := &mock.Player{}
	p := NewPlayerFallback(primary, "speaker", FallbackConfig{})
	p.AddFallback("simulated", secondary)
	p.AddFallback("silent", fixedPlayer{})

	if got := p.Volume(); got != audio.DefaultVolume {
		t.Errorf("initial Volume() = %v, want %v", got, audio.DefaultVolume)
	}

	p.SetVolume(1.4)
	if got := p.Volume(); got != 1 {
		t.Errorf("Volume() = %v, want 1 (clamped)", got)
	}
	if primary.Volume() != 1 || secondary.Volume() != 1 {
		t.Errorf("output volumes = %v/%v, want 1/1", primary.Volume(), secondary.Volume())
	}

	p.SetVolume(0.2)
	if primary.Volume() != 0.2 || secondary.Volume() != 0.2 {
		t.Errorf("output volumes = %v/%v, want 0.2/0.2", primary.Volume(), secondary.Volume())
	}
}
