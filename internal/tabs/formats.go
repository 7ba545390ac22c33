package tabs

import (
	"path/filepath"
	"strings"
)

// SupportedTabFormats lists the accepted tab file extensions, without dot.
var SupportedTabFormats = []string{"gp", "gpx", "gp3", "gp4", "gp5", "musicxml", "capx"}

// SupportedAudioFormats lists the accepted audio attachment extensions,
// without dot. flac uploads are converted to ogg before storage.
var SupportedAudioFormats = []string{"mp3", "ogg", "wav", "m4a", "flac"}

// IsSupportedTabFormat reports whether ext (without dot) is an accepted tab
// file extension.
func IsSupportedTabFormat(ext string) bool {
	return containsFold(SupportedTabFormats, ext)
}

// IsSupportedAudioFormat reports whether ext (without dot) is an accepted
// audio file extension.
func IsSupportedAudioFormat(ext string) bool {
	return containsFold(SupportedAudioFormats, ext)
}

// FileExtension returns the lowercased extension of name without the dot.
func FileExtension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

func containsFold(list []string, value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, entry := range list {
		if entry == value {
			return true
		}
	}
	return false
}
