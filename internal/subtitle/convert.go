// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package subtitle fetches, converts and injects caption tracks.
package subtitle

import (
	"fmt"
	"regexp"
	"strings"
)

// srtTimecode matches an SRT cue timing line. WebVTT differs only in the
// millisecond separator: comma in SRT, dot in VTT.
var srtTimecode = regexp.MustCompile(`^(\d{2}:\d{2}:\d{2}),(\d{3})\s*-->\s*(\d{2}:\d{2}:\d{2}),(\d{3})(.*)$`)

var seqLine = regexp.MustCompile(`^\d+$`)

// ConvertSRTToVTT converts SubRip input to WebVTT: the header is prepended,
// cue sequence numbers are dropped and timestamp separators rewritten.
func ConvertSRTToVTT(srt string) (string, error) {
	if strings.TrimSpace(srt) == "" {
		return "", fmt.Errorf("subtitle: empty srt input")
	}

	// Normalize line endings and a possible BOM before parsing.
	srt = strings.TrimPrefix(srt, "\uFEFF")
	srt = strings.ReplaceAll(srt, "\r\n", "\n")

	var b strings.Builder
	b.WriteString("WEBVTT\n\n")

	sawCue := false
	lines := strings.Split(srt, "\n")
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		// A bare number directly before a timing line is a cue counter.
		if seqLine.MatchString(trimmed) && i+1 < len(lines) && srtTimecode.MatchString(strings.TrimSpace(lines[i+1])) {
			continue
		}
		if m := srtTimecode.FindStringSubmatch(trimmed); m != nil {
			sawCue = true
			fmt.Fprintf(&b, "%s.%s --> %s.%s%s\n", m[1], m[2], m[3], m[4], m[5])
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	if !sawCue {
		return "", fmt.Errorf("subtitle: no cue timings found")
	}
	return b.String(), nil
}
