// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package probe

import "strings"

// SupportLevel grades how well clients handle a container.
type SupportLevel string

const (
	SupportExcellent SupportLevel = "excellent"
	SupportGood      SupportLevel = "good"
	SupportLimited   SupportLevel = "limited"
	SupportPoor      SupportLevel = "poor"
)

// Support pairs the classification with a human-readable hint for the UI.
type Support struct {
	Level   SupportLevel `json:"supportLevel"`
	Details string       `json:"supportDetails"`
}

// Classify grades a probe result. The table is deterministic in the container
// format and track counts:
//
//	matroska        → excellent, unconditionally
//	mp4 / m4v / mov → good when any subtitle or more than one audio track,
//	                  limited otherwise
//	webm            → good
//	mpeg-ts         → good
//	avi             → poor
//	anything else   → limited
func Classify(r *Result) Support {
	if r == nil {
		return Support{Level: SupportLimited, Details: "no analysis available; playing with defaults"}
	}

	hasExtras := len(r.SubtitleTracks) > 0 || len(r.AudioTracks) > 1

	switch normalizeContainer(r.ContainerFormat) {
	case "matroska":
		return Support{Level: SupportExcellent, Details: "matroska carries full track metadata"}
	case "mp4":
		if hasExtras {
			return Support{Level: SupportGood, Details: "mp4 with selectable tracks"}
		}
		return Support{Level: SupportLimited, Details: "mp4 without embedded subtitle or alternate audio tracks"}
	case "webm":
		return Support{Level: SupportGood, Details: "webm plays on all clients"}
	case "mpegts":
		return Support{Level: SupportGood, Details: "transport stream plays on all clients"}
	case "avi":
		return Support{Level: SupportPoor, Details: "avi needs transcoding on most clients"}
	default:
		return Support{Level: SupportLimited, Details: "unrecognized container; playing with defaults"}
	}
}

// normalizeContainer folds service and extension spellings of the same
// container into one key.
func normalizeContainer(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "matroska", "mkv", "matroska,webm":
		return "matroska"
	case "mp4", "m4v", "mov", "quicktime":
		return "mp4"
	case "webm":
		return "webm"
	case "mpegts", "mpeg-ts", "ts":
		return "mpegts"
	case "avi":
		return "avi"
	default:
		return ""
	}
}
