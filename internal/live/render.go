package live

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/netaamz/moveo-project/internal/db"
)

// IsRTL reports whether the song text contains Hebrew letters.
func IsRTL(content []db.Line) bool {
	for _, line := range content {
		for _, w := range line {
			for _, r := range w.Lyrics {
				if r >= 0x0590 && r <= 0x05FF {
					return true
				}
			}
		}
	}
	return false
}

// ShowChords reports whether a player of instrument sees chords. Vocalists
// get lyrics only.
func ShowChords(instrument db.Instrument) bool {
	return !strings.EqualFold(string(instrument), string(db.InstrumentVocals))
}

// Render lays the song out as plain text, one output line per lyric line,
// each preceded by a chord line when chords are shown. Chords are placed
// above the word they belong to, measured in terminal cells. Right-to-left
// songs are right-aligned to width.
func Render(content []db.Line, instrument db.Instrument, width int) []string {
	chords := ShowChords(instrument)
	rtl := IsRTL(content)
	var out []string
	for _, line := range content {
		var lyricRow, chordRow strings.Builder
		for i, w := range line {
			cell := runewidth.StringWidth(w.Lyrics)
			if c := runewidth.StringWidth(w.Chords); c > cell {
				cell = c
			}
			if i > 0 {
				lyricRow.WriteByte(' ')
				chordRow.WriteByte(' ')
			}
			lyricRow.WriteString(pad(w.Lyrics, cell))
			chordRow.WriteString(pad(w.Chords, cell))
		}
		if chords {
			out = append(out, align(strings.TrimRight(chordRow.String(), " "), width, rtl))
		}
		out = append(out, align(strings.TrimRight(lyricRow.String(), " "), width, rtl))
	}
	return out
}

func pad(s string, n int) string {
	if gap := n - runewidth.StringWidth(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}

func align(s string, width int, rtl bool) string {
	if !rtl {
		return s
	}
	if gap := width - runewidth.StringWidth(s); gap > 0 {
		return strings.Repeat(" ", gap) + s
	}
	return s
}
