// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/playbackd/internal/player/model"
)

// Manifest holds the timeline and track metadata parsed from an HLS playlist.
type Manifest struct {
	// IsMaster marks a multivariant playlist; Variants then holds the stream
	// URIs and Audio/Subtitles the alternate renditions.
	IsMaster bool
	Variants []string

	Audio     []model.AudioTrack
	Subtitles []model.SubtitleTrack

	// Media-playlist fields.
	TotalDuration time.Duration
	SegmentCount  int
	IsVOD         bool // #EXT-X-PLAYLIST-TYPE:VOD or #EXT-X-ENDLIST
}

// ParseManifest extracts timeline and rendition metadata from an HLS playlist.
// It sums EXTINF durations for the timeline and treats ENDLIST or
// PLAYLIST-TYPE:VOD as a finite stream.
func ParseManifest(playlist string) (*Manifest, error) {
	scanner := bufio.NewScanner(strings.NewReader(playlist))
	m := &Manifest{}

	sawHeader := false
	expectVariantURI := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "#EXTM3U" {
			sawHeader = true
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			m.IsMaster = true
			expectVariantURI = true

		case strings.HasPrefix(line, "#EXT-X-MEDIA:"):
			m.IsMaster = true
			parseRendition(m, strings.TrimPrefix(line, "#EXT-X-MEDIA:"))

		case strings.HasPrefix(line, "#EXTINF:"):
			spec := strings.TrimPrefix(line, "#EXTINF:")
			if i := strings.IndexByte(spec, ','); i >= 0 {
				spec = spec[:i]
			}
			secs, err := strconv.ParseFloat(strings.TrimSpace(spec), 64)
			if err != nil {
				return nil, fmt.Errorf("manifest: bad EXTINF %q: %w", line, err)
			}
			m.TotalDuration += time.Duration(secs * float64(time.Second))
			m.SegmentCount++

		case line == "#EXT-X-ENDLIST", strings.HasPrefix(line, "#EXT-X-PLAYLIST-TYPE:VOD"):
			m.IsVOD = true

		case !strings.HasPrefix(line, "#"):
			if expectVariantURI {
				m.Variants = append(m.Variants, line)
				expectVariantURI = false
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("manifest: scan: %w", err)
	}
	if !sawHeader {
		return nil, fmt.Errorf("manifest: missing #EXTM3U header")
	}
	return m, nil
}

// parseRendition turns one EXT-X-MEDIA attribute list into a track entry.
func parseRendition(m *Manifest, attrs string) {
	fields := parseAttributes(attrs)
	lang := fields["LANGUAGE"]
	name := fields["NAME"]
	id := fields["GROUP-ID"]
	if name != "" {
		id = id + "/" + name
	}
	switch fields["TYPE"] {
	case "AUDIO":
		m.Audio = append(m.Audio, model.AudioTrack{ID: id, Language: lang, Label: name})
	case "SUBTITLES":
		m.Subtitles = append(m.Subtitles, model.SubtitleTrack{ID: id, Language: lang, Label: name})
	}
}

// parseAttributes splits an HLS attribute list, honouring quoted values with
// embedded commas.
func parseAttributes(s string) map[string]string {
	out := make(map[string]string)
	for len(s) > 0 {
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			break
		}
		key := strings.TrimSpace(s[:eq])
		s = s[eq+1:]

		var value string
		if strings.HasPrefix(s, `"`) {
			end := strings.IndexByte(s[1:], '"')
			if end < 0 {
				value = s[1:]
				s = ""
			} else {
				value = s[1 : 1+end]
				s = s[end+2:]
				s = strings.TrimPrefix(s, ",")
			}
		} else if i := strings.IndexByte(s, ','); i >= 0 {
			value = s[:i]
			s = s[i+1:]
		} else {
			value = s
			s = ""
		}
		out[key] = value
	}
	return out
}
