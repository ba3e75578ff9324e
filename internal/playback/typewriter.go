package playback

// Typewriter reveals a string one rune per step.
type Typewriter struct {
	runes []rune
	n     int
}

func NewTypewriter(text string) *Typewriter {
	return &Typewriter{runes: []rune(text)}
}

// Next reveals one more rune and returns the revealed prefix. done is true
// once the whole text is visible.
func (t *Typewriter) Next() (partial string, done bool) {
	if t.n < len(t.runes) {
		t.n++
	}
	return string(t.runes[:t.n]), t.n >= len(t.runes)
}

// Finish reveals everything at once.
func (t *Typewriter) Finish() string {
	t.n = len(t.runes)
	return string(t.runes)
}

func (t *Typewriter) Current() string { return string(t.runes[:t.n]) }

func (t *Typewriter) Done() bool { return t.n >= len(t.runes) }
