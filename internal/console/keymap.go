package console

// Key binding constants used in handleKey.
const (
	KeyTalk      = " "
	KeyPause     = "p"
	KeyEscape    = "esc"
	KeyRestart   = "r"
	KeyQuit      = "q"
	KeyQuitUpper = "Q"
	KeyCtrlC     = "ctrl+c"
)

const helpLine = "espacio hablar · p pausa · q salir"
