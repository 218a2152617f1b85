package session_test

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/consultorio/internal/session"
)

func TestScore_WorkedExample(t *testing.T) {
	// 8 → 2 in 6 turns over 5 minutes: 0.24 + 0.28 + 0.21.
	got := session.Score(8, 2, 6, 300*time.Second)
	if math.Abs(got-0.73) > 1e-9 {
		t.Fatalf("Score = %v, want 0.73", got)
	}
	if g := session.GradeFor(got); g != session.GradeB {
		t.Errorf("GradeFor(%v) = %q, want B", got, g)
	}
}

func TestScore_Terms(t *testing.T) {
	tests := []struct {
		name                  string
		initial, final, turns int
		elapsed               time.Duration
		want                  float64
	}{
		{"perfect band", 10, 0, 5, 120 * time.Second, 1.0},
		{"short session is capped at 1", 10, 0, 1, 60 * time.Second, 1.0},
		{"no change, long session", 7, 7, 20, 720 * time.Second, 0},
		{"stress went up", 5, 10, 20, 720 * time.Second, -0.2},
		{"partial turns score", 7, 7, 11, 120 * time.Second, 0.3*0.6 + 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := session.Score(tt.initial, tt.final, tt.turns, tt.elapsed)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score(%d, %d, %d, %v) = %v, want %v", tt.initial, tt.final, tt.turns, tt.elapsed, got, tt.want)
			}
		})
	}
}

func TestGradeFor(t *testing.T) {
	tests := []struct {
		score float64
		want  session.Grade
	}{
		{1.0, session.GradeAPlus},
		{0.9, session.GradeAPlus},
		{0.89, session.GradeA},
		{0.8, session.GradeA},
		{0.75, session.GradeB},
		{0.6, session.GradeC},
		{0.55, session.GradeD},
		{0.49, session.GradeF},
		{-0.3, session.GradeF},
	}
	for _, tt := range tests {
		if got := session.GradeFor(tt.score); got != tt.want {
			t.Errorf("GradeFor(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestGrade_Feedback(t *testing.T) {
	for _, g := range []session.Grade{session.GradeAPlus, session.GradeA, session.GradeB, session.GradeC, session.GradeD, session.GradeF} {
		if g.Feedback() == "" {
			t.Errorf("Grade %q has no feedback", g)
		}
	}
	if !session.GradeC.Passing() || session.GradeD.Passing() {
		t.Error("Passing threshold should be C")
	}
}

func TestFormatResults(t *testing.T) {
	r := session.Evaluate(session.Stats{
		Success:       true,
		Message:       session.MessageSuccess,
		InitialStress: 8,
		FinalStress:   2,
		Turns:         6,
		Elapsed:       300*time.Second + 700*time.Millisecond,
		Emotions:      []string{"empatico", "calmado"},
	})
	out := session.FormatResults(r)

	for _, want := range []string{
		"¡SESIÓN EXITOSA!",
		session.MessageSuccess,
		"Estrés Inicial: 8/10",
		"Estrés Final: 2/10",
		"Interacciones: 6",
		"Duración: 5:00",
		"Emociones: empatico, calmado",
		"Calificación: B (0.73)",
		session.GradeB.Feedback(),
	} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatResults missing %q in:\n%s", want, out)
		}
	}
}

func TestFormatResults_NoEmotions(t *testing.T) {
	out := session.FormatResults(session.Evaluate(session.Stats{InitialStress: 7, FinalStress: 10}))
	if !strings.Contains(out, "SESIÓN FINALIZADA") || !strings.Contains(out, "Emociones: -") {
		t.Errorf("unexpected report:\n%s", out)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[time.Duration]string{
		0:                      "0:00",
		59 * time.Second:       "0:59",
		61*time.Second + 999e6: "1:01",
		15 * time.Minute:       "15:00",
		-time.Second:           "0:00",
	}
	for d, want := range tests {
		if got := session.FormatDuration(d); got != want {
			t.Errorf("FormatDuration(%v) = %q, want %q", d, got, want)
		}
	}
}
