package captions

// WordTiming is one spoken word with its start/end offsets in seconds,
// as reported by a TTS or alignment step.
type WordTiming struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Group is one on-screen caption card: one or two display lines shown
// between Start and End seconds.
type Group struct {
	Lines []string `json:"lines"`
	Start float64  `json:"start"`
	End   float64  `json:"end"`
}

// Text returns the group's lines joined with a space, mostly for tests
// and log messages.
func (g Group) Text() string {
	switch len(g.Lines) {
	case 0:
		return ""
	case 1:
		return g.Lines[0]
	default:
		return g.Lines[0] + " " + g.Lines[1]
	}
}
