package speech

import (
	"sort"
	"strings"
	"time"
)

// Segment is one timed caption fragment; times are seconds from audio start.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start_time"`
	End   float64 `json:"end_time"`
}

// Duration is how long the segment is audible.
func (s Segment) Duration() time.Duration {
	return seconds(s.End - s.Start)
}

// GapTo is the silence between s and the segment that follows it.
func (s Segment) GapTo(next Segment) time.Duration {
	return seconds(next.Start - s.End)
}

func seconds(v float64) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}

// NormalizeSegments orders segments by start time, drops empty text and
// clamps overlaps so each segment starts no earlier than the previous end.
func NormalizeSegments(in []Segment) []Segment {
	out := make([]Segment, 0, len(in))
	for _, s := range in {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" {
			continue
		}
		if s.Start < 0 {
			s.Start = 0
		}
		if s.End < s.Start {
			s.End = s.Start
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	for i := 1; i < len(out); i++ {
		prevEnd := out[i-1].End
		if out[i].Start < prevEnd {
			out[i].Start = prevEnd
		}
		if out[i].End < out[i].Start {
			out[i].End = out[i].Start
		}
	}
	return out
}

// PlaybackTime is the wall-clock pacing for segs: every duration plus every gap.
func PlaybackTime(segs []Segment) time.Duration {
	var total time.Duration
	for i, s := range segs {
		total += s.Duration()
		if i+1 < len(segs) {
			total += s.GapTo(segs[i+1])
		}
	}
	return total
}

// SplitSentences breaks text at sentence terminators, keeping the terminator.
func SplitSentences(text string) []string {
	var out []string
	var cur strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		cur.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !isSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}
