package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/consultorio/internal/conversation"
	"github.com/MrWong99/consultorio/internal/session"
)

const stressBarWidth = 20

// View renders the console.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.results != nil {
		return m.viewResults()
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Consultorio") + "  " + m.viewConnectivity() + "\n\n")

	if m.showStress {
		b.WriteString(field("Estrés", m.viewStress()) + "\n")
	}
	b.WriteString(field("Micrófono", m.viewMic()) + "\n")
	b.WriteString(field("Fase", m.viewPhase()) + "\n")
	b.WriteString(field("Tiempo", m.viewTimer()) + "\n")
	b.WriteString(field("Turno", valueStyle.Render(fmt.Sprintf("%d", m.turn))) + "\n")

	if m.transcript != "" || m.reply != "" {
		var ex strings.Builder
		if m.transcript != "" {
			ex.WriteString(userStyle.Render("Usted: ") + m.transcript)
			if m.emotion != "" {
				ex.WriteString(labelStyle.Render(" (" + m.emotion + ")"))
			}
			ex.WriteString("\n")
		}
		if m.reply != "" {
			ex.WriteString(patientStyle.Render("Paciente: ") + m.reply)
		}
		b.WriteString("\n" + m.panel().Render(strings.TrimRight(ex.String(), "\n")) + "\n")
	}

	if m.notice != "" {
		b.WriteString("\n" + errorStyle.Render(m.notice) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render(helpLine) + "\n")
	return b.String()
}

func (m Model) panel() lipgloss.Style {
	if m.width > 4 {
		return panelStyle.Width(m.width - 4)
	}
	return panelStyle
}

func field(label, value string) string {
	return labelStyle.Render(fmt.Sprintf("%-10s", label)) + " " + value
}

func (m Model) viewStress() string {
	filled := m.stress * stressBarWidth / session.MaxStress
	bar := strings.Repeat("█", filled) + strings.Repeat("░", stressBarWidth-filled)
	return stressStyle(m.stress).Render(bar) + valueStyle.Render(fmt.Sprintf(" %d/%d", m.stress, session.MaxStress))
}

func (m Model) viewMic() string {
	if m.state == conversation.StateRecording {
		return recordingStyle.Render("● grabando")
	}
	switch m.mic {
	case conversation.MicOpen:
		return micOpenStyle.Render("● abierto")
	case conversation.MicProcessing:
		return micProcessingStyle.Render("● procesando")
	default:
		return micClosedStyle.Render("○ cerrado")
	}
}

func (m Model) viewPhase() string {
	switch {
	case m.state == conversation.StatePaused:
		return valueStyle.Render("en pausa")
	case m.speaking:
		return patientStyle.Render("el paciente habla")
	}
	label := map[string]string{
		"initializing":     "iniciando",
		"avatar_speaking":  "el paciente habla",
		"waiting_for_user": "su turno",
		"processing_input": "procesando",
	}[m.phase]
	if label == "" {
		label = m.phase
	}
	return valueStyle.Render(label)
}

func (m Model) viewTimer() string {
	s := session.FormatDuration(m.elapsed)
	if m.remaining > 0 {
		s += labelStyle.Render(" (quedan " + session.FormatDuration(m.remaining) + ")")
	}
	return valueStyle.Render(s)
}

func (m Model) viewConnectivity() string {
	switch {
	case m.connected == nil:
		return labelStyle.Render("servidor: ?")
	case *m.connected:
		return micOpenStyle.Render("servidor: conectado")
	default:
		return errorStyle.Render("servidor: sin conexión")
	}
}

func (m Model) viewResults() string {
	style := resultsFailureStyle
	if m.results.Success {
		style = resultsSuccessStyle
	}
	report := strings.TrimRight(session.FormatResults(*m.results), "\n")
	return style.Render(report) + "\n\n" + helpStyle.Render("r nueva sesión · q salir") + "\n"
}
