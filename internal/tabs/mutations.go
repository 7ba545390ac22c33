package tabs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// UpdateTabInfo overwrites the editable metadata of a tab. Audio and video
// lists are untouched.
func (s *Store) UpdateTabInfo(id TabID, update TabInfoUpdate) error {
	title := strings.TrimSpace(update.Title)
	if title == "" {
		return newStoreError(opUpdateTabInfo, "missing_title",
			fmt.Errorf("%w: title is required", ErrValidation))
	}
	return s.Update(id, func(doc *Document) error {
		doc.Tab.Title = title
		doc.Tab.Artist = strings.TrimSpace(update.Artist)
		doc.Tab.Public = update.Public
		return nil
	})
}

// SetFavorite overwrites only the favorite flag of a tab.
func (s *Store) SetFavorite(id TabID, fav bool) error {
	return s.Update(id, func(doc *Document) error {
		doc.Tab.Fav = fav
		return nil
	})
}

// AddAudio stores an uploaded audio file in the tab folder and queues a
// metadata update confirming a default-valued entry for it. FLAC payloads are
// converted to OGG through the transcoder collaborator and stored under the
// rewritten extension. A file of the resulting name already present in the
// folder is a conflict; the existing bytes are left untouched.
func (s *Store) AddAudio(ctx context.Context, id TabID, data []byte, originalFilename string) (string, error) {
	ext := FileExtension(originalFilename)
	if !IsSupportedAudioFormat(ext) {
		return "", newStoreError(opAddAudio, "unsupported_format",
			fmt.Errorf("%w: unsupported audio format %q", ErrValidation, ext))
	}
	if err := ValidateName(originalFilename); err != nil {
		return "", newStoreError(opAddAudio, "invalid_filename", err)
	}

	filename := sanitizeFilename(originalFilename)
	if filename == "" || FileExtension(filename) != ext {
		return "", newStoreError(opAddAudio, "invalid_filename",
			fmt.Errorf("%w: unusable filename %q", ErrValidation, originalFilename))
	}

	exists, err := s.Exists(id)
	if err != nil {
		return "", newStoreError(opAddAudio, "probe_failed", err)
	}
	if !exists {
		return "", newStoreError(opAddAudio, "not_found", fmt.Errorf("%w: tab %s", ErrNotFound, id))
	}

	if ext == "flac" {
		if s.transcoder == nil {
			return "", newStoreError(opAddAudio, "transcoder_unavailable", errMissingTranscode)
		}
		converted, err := s.transcoder.FlacToOgg(ctx, data)
		if err != nil {
			s.logError(opAddAudio, "transcode_failed", err, zap.String("tab_id", id.String()))
			return "", newStoreError(opAddAudio, "transcode_failed",
				fmt.Errorf("%w: %v", ErrTranscodeFailed, err))
		}
		if len(converted) == 0 {
			return "", newStoreError(opAddAudio, "transcode_failed",
				fmt.Errorf("%w: transcoder produced empty output", ErrTranscodeFailed))
		}
		data = converted
		filename = strings.TrimSuffix(filename, filepath.Ext(filename)) + ".ogg"
	}

	target := filepath.Join(s.tabDir(id), filename)
	if _, err := os.Stat(target); err == nil {
		return "", newStoreError(opAddAudio, "duplicate",
			fmt.Errorf("%w: audio file %q already exists", ErrConflict, filename))
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", newStoreError(opAddAudio, "probe_failed", err)
	}

	if err := os.WriteFile(target, data, documentFileMode); err != nil {
		s.logError(opAddAudio, "write_failed", err, zap.String("tab_id", id.String()))
		return "", newStoreError(opAddAudio, "write_failed", err)
	}

	// The reconciler picks the file up on the next scan regardless; recording
	// the default entry keeps the stored document self-consistent.
	err = s.Update(id, func(doc *Document) error {
		for _, entry := range doc.Audio {
			if entry.Filename == filename {
				return nil
			}
		}
		doc.Audio = append(doc.Audio, defaultAudioEntry(filename))
		return nil
	})
	if err != nil {
		return "", err
	}
	return filename, nil
}

// RemoveAudio deletes an audio file from the tab folder and queues a metadata
// update dropping its entry.
func (s *Store) RemoveAudio(id TabID, filename string) error {
	if !IsSupportedAudioFormat(FileExtension(filename)) {
		return newStoreError(opRemoveAudio, "unsupported_format",
			fmt.Errorf("%w: unsupported audio format %q", ErrValidation, FileExtension(filename)))
	}
	path, err := s.AudioFilePath(id, filename)
	if err != nil {
		return newStoreError(opRemoveAudio, "invalid_filename", err)
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return newStoreError(opRemoveAudio, "not_found",
			fmt.Errorf("%w: audio file %q", ErrNotFound, filename))
	} else if err != nil {
		return newStoreError(opRemoveAudio, "probe_failed", err)
	}
	if err := os.Remove(path); err != nil {
		s.logError(opRemoveAudio, "remove_failed", err, zap.String("tab_id", id.String()))
		return newStoreError(opRemoveAudio, "remove_failed", err)
	}
	return s.Update(id, func(doc *Document) error {
		kept := doc.Audio[:0]
		for _, entry := range doc.Audio {
			if entry.Filename != filename {
				kept = append(kept, entry)
			}
		}
		doc.Audio = kept
		return nil
	})
}

// UpdateAudioSync replaces or appends the sync metadata entry for an audio
// file that exists in the tab folder.
func (s *Store) UpdateAudioSync(id TabID, filename string, sync SyncData) error {
	if !IsSupportedAudioFormat(FileExtension(filename)) {
		return newStoreError(opAudioSync, "unsupported_format",
			fmt.Errorf("%w: unsupported audio format %q", ErrValidation, FileExtension(filename)))
	}
	path, err := s.AudioFilePath(id, filename)
	if err != nil {
		return newStoreError(opAudioSync, "invalid_filename", err)
	}
	if err := sync.Validate(); err != nil {
		return newStoreError(opAudioSync, "invalid_sync",
			fmt.Errorf("%w: %v", ErrValidation, err))
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return newStoreError(opAudioSync, "not_found",
			fmt.Errorf("%w: audio file %q", ErrNotFound, filename))
	} else if err != nil {
		return newStoreError(opAudioSync, "probe_failed", err)
	}

	entry := AudioEntry{
		Filename:     filename,
		SyncMethod:   sync.SyncMethod,
		SimpleSync:   sync.SimpleSync,
		AdvancedSync: sync.AdvancedSync,
	}
	return s.Update(id, func(doc *Document) error {
		for i := range doc.Audio {
			if doc.Audio[i].Filename == filename {
				doc.Audio[i] = entry
				return nil
			}
		}
		doc.Audio = append(doc.Audio, entry)
		return nil
	})
}

// AddVideo links a YouTube video to a tab with default sync values. Linking
// an already-linked video is a conflict; the failing mutator aborts only its
// own cycle.
func (s *Store) AddVideo(id TabID, videoID string) error {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return newStoreError(opAddVideo, "missing_video_id",
			fmt.Errorf("%w: videoID is required", ErrValidation))
	}
	return s.Update(id, func(doc *Document) error {
		for _, link := range doc.YouTube {
			if link.VideoID == videoID {
				return newStoreError(opAddVideo, "duplicate",
					fmt.Errorf("%w: video %q already linked", ErrConflict, videoID))
			}
		}
		doc.YouTube = append(doc.YouTube, defaultVideoLink(videoID))
		return nil
	})
}

// UpdateVideoSync replaces or appends the sync metadata entry for a linked
// video. The video id is not checked against any external service.
func (s *Store) UpdateVideoSync(id TabID, videoID string, sync SyncData) error {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return newStoreError(opVideoSync, "missing_video_id",
			fmt.Errorf("%w: videoID is required", ErrValidation))
	}
	if err := sync.Validate(); err != nil {
		return newStoreError(opVideoSync, "invalid_sync",
			fmt.Errorf("%w: %v", ErrValidation, err))
	}
	link := VideoLink{
		VideoID:      videoID,
		SyncMethod:   sync.SyncMethod,
		SimpleSync:   sync.SimpleSync,
		AdvancedSync: sync.AdvancedSync,
	}
	return s.Update(id, func(doc *Document) error {
		for i := range doc.YouTube {
			if doc.YouTube[i].VideoID == videoID {
				doc.YouTube[i] = link
				return nil
			}
		}
		doc.YouTube = append(doc.YouTube, link)
		return nil
	})
}

// RemoveVideo unlinks a video. Removing a link that does not exist is a
// no-op, not a failure: removal is idempotent, addition is not.
func (s *Store) RemoveVideo(id TabID, videoID string) error {
	return s.Update(id, func(doc *Document) error {
		kept := doc.YouTube[:0]
		for _, link := range doc.YouTube {
			if link.VideoID != videoID {
				kept = append(kept, link)
			}
		}
		doc.YouTube = kept
		return nil
	})
}

// ReplaceTabFile swaps the primary tab file for new content, preserving the
// old file under a timestamp-suffixed name, then queues the metadata update
// pointing at the new file.
func (s *Store) ReplaceTabFile(id TabID, data []byte, ext, originalFilename string) error {
	if !IsSupportedTabFormat(ext) {
		return newStoreError(opReplaceFile, "unsupported_format",
			fmt.Errorf("%w: unsupported tab format %q", ErrValidation, ext))
	}
	doc, err := s.ReadDocument(id, false)
	if err != nil {
		return err
	}

	oldPath, err := s.TabFilePath(doc.Tab)
	if err != nil {
		return newStoreError(opReplaceFile, "invalid_filename", err)
	}
	asidePath := fmt.Sprintf("%s.%d", oldPath, s.clock().UnixMilli())
	if err := os.Rename(oldPath, asidePath); err != nil {
		s.logError(opReplaceFile, "rename_failed", err, zap.String("tab_id", id.String()))
		return newStoreError(opReplaceFile, "rename_failed", err)
	}

	filename := tabFileBaseName + "." + ext
	if err := os.WriteFile(filepath.Join(s.tabDir(id), filename), data, documentFileMode); err != nil {
		s.logError(opReplaceFile, "write_failed", err, zap.String("tab_id", id.String()))
		return newStoreError(opReplaceFile, "write_failed", err)
	}

	return s.Update(id, func(doc *Document) error {
		doc.Tab.Filename = filename
		doc.Tab.OriginalFilename = originalFilename
		return nil
	})
}
