package ui

// Config contains TUI-specific configuration.
type Config struct {
	// Word-wrap width for subtitles; 0 follows the terminal.
	Width       int
	EnableMouse bool

	// Audio can be unlocked with the speak key.
	SpeechAvailable bool

	// Categories the picker offers.
	Genres []string

	// For debugging the UI
	AltScreen bool `env:"STORYFEED_ALT_SCREEN" envDefault:"true"`
}
