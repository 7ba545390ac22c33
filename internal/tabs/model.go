package tabs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SyncMethod enumerates how an attached audio or video reference is aligned
// with the notation playback.
type SyncMethod string

const (
	// SyncMethodSimple aligns playback with a single millisecond offset.
	SyncMethodSimple SyncMethod = "simple"
	// SyncMethodAdvanced aligns playback with a serialized list of sync points.
	SyncMethodAdvanced SyncMethod = "advanced"
)

const (
	defaultTitle    = "Unknown"
	defaultFilename = "tab.gp"
)

var (
	// ErrInvalidTabID indicates a tab identifier that is empty or unsafe to
	// use as a path segment.
	ErrInvalidTabID = errors.New("tabs: invalid tab id")
	// ErrInvalidSyncMethod indicates an unrecognized sync method value.
	ErrInvalidSyncMethod = errors.New("tabs: invalid sync method")
)

// TabID represents a validated tab identifier. Identifiers are the decimal
// representation of an allocated counter value, but any string that is safe as
// a single path segment is accepted on read so that pre-existing folders keep
// working.
type TabID string

// NewTabID validates raw input and returns a TabID.
func NewTabID(rawInput string) (TabID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTabID)
	}
	if err := ValidateName(trimmed); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidTabID, rawInput)
	}
	return TabID(trimmed), nil
}

// String returns the underlying string identifier.
func (id TabID) String() string {
	return string(id)
}

// TabInfo is the metadata record of a single tab.
type TabInfo struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Artist           string `json:"artist"`
	Filename         string `json:"filename"`
	OriginalFilename string `json:"originalFilename"`
	CreatedAt        string `json:"createdAt"`
	Public           bool   `json:"public"`
	Fav              bool   `json:"fav"`
}

// AudioEntry stores sync metadata for one audio file attached to a tab.
// The file itself lives next to config.json in the tab folder.
type AudioEntry struct {
	Filename     string     `json:"filename"`
	SyncMethod   SyncMethod `json:"syncMethod"`
	SimpleSync   int        `json:"simpleSync"`
	AdvancedSync string     `json:"advancedSync"`
}

// VideoLink stores sync metadata for one linked YouTube video.
type VideoLink struct {
	VideoID      string     `json:"videoID"`
	SyncMethod   SyncMethod `json:"syncMethod"`
	SimpleSync   int        `json:"simpleSync"`
	AdvancedSync string     `json:"advancedSync"`
}

// Document is the persisted configuration document of a tab, one per tab
// folder, stored as config.json.
type Document struct {
	Tab     TabInfo      `json:"tab"`
	Audio   []AudioEntry `json:"audio"`
	YouTube []VideoLink  `json:"youtube"`
}

// SyncData carries the caller-supplied sync fields of an audio or video
// metadata update.
type SyncData struct {
	SyncMethod   SyncMethod
	SimpleSync   int
	AdvancedSync string
}

// Validate checks the sync payload against the schema.
func (d SyncData) Validate() error {
	switch d.SyncMethod {
	case SyncMethodSimple, SyncMethodAdvanced:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSyncMethod, d.SyncMethod)
	}
}

// TabInfoUpdate carries the editable metadata fields of a tab.
type TabInfoUpdate struct {
	Title  string
	Artist string
	Public bool
}

func defaultAudioEntry(filename string) AudioEntry {
	return AudioEntry{
		Filename:     filename,
		SyncMethod:   SyncMethodSimple,
		SimpleSync:   0,
		AdvancedSync: "",
	}
}

func defaultVideoLink(videoID string) VideoLink {
	return VideoLink{
		VideoID:      videoID,
		SyncMethod:   SyncMethodSimple,
		SimpleSync:   0,
		AdvancedSync: "",
	}
}

// applyDefaults fills schema defaults for fields absent from a persisted
// document and reports whether the document validates at all.
func (d *Document) applyDefaults() error {
	if d.Tab.Title == "" {
		d.Tab.Title = defaultTitle
	}
	if d.Tab.Filename == "" {
		d.Tab.Filename = defaultFilename
	}
	if d.Audio == nil {
		d.Audio = []AudioEntry{}
	}
	if d.YouTube == nil {
		d.YouTube = []VideoLink{}
	}
	for i := range d.Audio {
		if d.Audio[i].Filename == "" {
			return fmt.Errorf("audio entry %d: filename required", i)
		}
		if d.Audio[i].SyncMethod == "" {
			d.Audio[i].SyncMethod = SyncMethodSimple
		}
		if err := (SyncData{SyncMethod: d.Audio[i].SyncMethod}).Validate(); err != nil {
			return fmt.Errorf("audio entry %q: %w", d.Audio[i].Filename, err)
		}
	}
	for i := range d.YouTube {
		if d.YouTube[i].VideoID == "" {
			return fmt.Errorf("youtube entry %d: videoID required", i)
		}
		if d.YouTube[i].SyncMethod == "" {
			d.YouTube[i].SyncMethod = SyncMethodSimple
		}
		if err := (SyncData{SyncMethod: d.YouTube[i].SyncMethod}).Validate(); err != nil {
			return fmt.Errorf("youtube entry %q: %w", d.YouTube[i].VideoID, err)
		}
	}
	return nil
}

func newTabInfo(id TabID, title, artist, filename, originalFilename string, createdAt time.Time) TabInfo {
	if strings.TrimSpace(title) == "" {
		title = defaultTitle
	}
	return TabInfo{
		ID:               id.String(),
		Title:            strings.TrimSpace(title),
		Artist:           strings.TrimSpace(artist),
		Filename:         filename,
		OriginalFilename: originalFilename,
		CreatedAt:        createdAt.UTC().Format(time.RFC3339),
		Public:           false,
		Fav:              false,
	}
}
