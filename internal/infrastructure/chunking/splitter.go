package chunking

import "strings"

// Splitter is the deterministic fixed-window fallback chunker: consecutive
// windows of WindowSize runes, no overlap. Used whenever the
// structure-reasoning collaborator cannot produce an outline.
type Splitter struct {
	windowSize int
}

func NewSplitter(windowSize int) *Splitter {
	if windowSize <= 0 {
		windowSize = 1500
	}
	return &Splitter{windowSize: windowSize}
}

func (s *Splitter) WindowSize() int {
	return s.windowSize
}

func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	out := make([]string, 0, len(runes)/s.windowSize+1)
	for start := 0; start < len(runes); start += s.windowSize {
		end := start + s.windowSize
		if end > len(runes) {
			end = len(runes)
		}
		// Windows are kept even when they trim to whitespace so the window
		// count stays ceil(len/windowSize); empty text never reaches here.
		chunk := strings.TrimSpace(string(runes[start:end]))
		out = append(out, chunk)
	}
	return out
}
