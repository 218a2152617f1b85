package session

import (
	"fmt"
	"strings"
	"time"
)

// Score weights and optimum bands.
const (
	weightStress = 0.4
	weightTurns  = 0.3
	weightTime   = 0.3

	optimalTurns   = 5
	turnsTolerance = 15

	optimalTime   = 120 * time.Second
	timeTolerance = 600 * time.Second
)

// Grade is a letter grade from "A+" to "F".
type Grade string

const (
	GradeAPlus Grade = "A+"
	GradeA     Grade = "A"
	GradeB     Grade = "B"
	GradeC     Grade = "C"
	GradeD     Grade = "D"
	GradeF     Grade = "F"
)

var gradeFeedback = map[Grade]string{
	GradeAPlus: "¡Excelente manejo de la crisis! Comunicación empática y efectiva.",
	GradeA:     "Muy buen desempeño. El paciente se sintió escuchado.",
	GradeB:     "Buen trabajo. Algunas técnicas de desescalamiento fueron efectivas.",
	GradeC:     "Aceptable. Considera practicar más técnicas de escucha activa.",
	GradeD:     "Necesita mejora. Enfócate en validar las emociones del paciente.",
	GradeF:     "La comunicación no fue efectiva. Revisa las técnicas de desescalamiento.",
}

// Feedback returns the coaching sentence shown with g.
func (g Grade) Feedback() string { return gradeFeedback[g] }

// Passing reports whether g is C or better.
func (g Grade) Passing() bool {
	switch g {
	case GradeAPlus, GradeA, GradeB, GradeC:
		return true
	}
	return false
}

// Score computes the weighted session score:
//
//	0.4 × (initial − final)/10
//	+ 0.3 × clamp01(1 − (turns − 5)/15)
//	+ 0.3 × clamp01(1 − (seconds − 120)/600)
//
// The stress term is negative when stress went up, so the score may be
// below zero.
func Score(initialStress, finalStress, turns int, elapsed time.Duration) float64 {
	stressReduction := float64(initialStress-finalStress) / 10
	turnsScore := clamp01(1 - float64(turns-optimalTurns)/turnsTolerance)
	timeScore := clamp01(1 - (elapsed-optimalTime).Seconds()/timeTolerance.Seconds())
	return weightStress*stressReduction + weightTurns*turnsScore + weightTime*timeScore
}

// GradeFor maps a score to a letter grade in steps of 0.1 from 0.9 down
// to 0.5.
func GradeFor(score float64) Grade {
	switch {
	case score >= 0.9:
		return GradeAPlus
	case score >= 0.8:
		return GradeA
	case score >= 0.7:
		return GradeB
	case score >= 0.6:
		return GradeC
	case score >= 0.5:
		return GradeD
	default:
		return GradeF
	}
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

// Stats are the final statistics of a session.
type Stats struct {
	SessionID     string
	Success       bool
	Message       string
	InitialStress int
	FinalStress   int
	Turns         int
	Elapsed       time.Duration
	Emotions      []string
}

// Results are Stats together with their evaluation.
type Results struct {
	Stats
	Score    float64
	Grade    Grade
	Feedback string
}

// Evaluate scores and grades st. It is a pure function.
func Evaluate(st Stats) Results {
	score := Score(st.InitialStress, st.FinalStress, st.Turns, st.Elapsed)
	grade := GradeFor(score)
	return Results{
		Stats:    st,
		Score:    score,
		Grade:    grade,
		Feedback: grade.Feedback(),
	}
}

// FormatResults renders r as the plain-text results report.
func FormatResults(r Results) string {
	var b strings.Builder
	if r.Success {
		b.WriteString("¡SESIÓN EXITOSA!\n")
	} else {
		b.WriteString("SESIÓN FINALIZADA\n")
	}
	if r.Message != "" {
		b.WriteString(r.Message + "\n")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Estrés Inicial: %d/10\n", r.InitialStress)
	fmt.Fprintf(&b, "Estrés Final: %d/10\n", r.FinalStress)
	fmt.Fprintf(&b, "Interacciones: %d\n", r.Turns)
	fmt.Fprintf(&b, "Duración: %s\n", FormatDuration(r.Elapsed))
	if len(r.Emotions) > 0 {
		fmt.Fprintf(&b, "Emociones: %s\n", strings.Join(r.Emotions, ", "))
	} else {
		b.WriteString("Emociones: -\n")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Calificación: %s (%.2f)\n", r.Grade, r.Score)
	b.WriteString(r.Feedback + "\n")
	return b.String()
}

// FormatDuration renders d as m:ss, truncating fractional seconds.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
