package tabs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	configFileName   = "config.json"
	deletedDirName   = "deleted"
	tabCounterName   = "tab_id"
	tabFileBaseName  = "tab"
	documentFileMode = 0o644
	tabDirMode       = 0o755
)

var (
	errMissingRootDir   = errors.New("tabs: root directory is required")
	errMissingAllocator = errors.New("tabs: counter is required")
	errMissingTranscode = errors.New("tabs: transcoder is not configured")
	noOpLogger          = zap.NewNop()
)

const (
	opStoreNew      = "tabs.store.new"
	opAllocateID    = "tabs.allocate_id"
	opCreate        = "tabs.create"
	opRead          = "tabs.read"
	opList          = "tabs.list"
	opUpdate        = "tabs.update"
	opSoftDelete    = "tabs.soft_delete"
	opReplaceFile   = "tabs.replace_file"
	opAddAudio      = "tabs.add_audio"
	opRemoveAudio   = "tabs.remove_audio"
	opAudioSync     = "tabs.audio_sync"
	opAddVideo      = "tabs.add_video"
	opVideoSync     = "tabs.video_sync"
	opRemoveVideo   = "tabs.remove_video"
	opUpdateTabInfo = "tabs.update_info"
	opSetFavorite   = "tabs.set_favorite"
)

// Counter is the durable key-counter collaborator. Next returns the next
// value of the named counter; the implementation must guarantee that two
// concurrent callers never observe the same value, across process restarts.
type Counter interface {
	Next(ctx context.Context, name string) (uint64, error)
}

// Transcoder converts audio payloads between formats. Implementations are
// opaque to the store: bytes in one format to bytes in another.
type Transcoder interface {
	FlacToOgg(ctx context.Context, data []byte) ([]byte, error)
}

// StoreConfig carries the collaborators of a Store.
type StoreConfig struct {
	RootDir    string
	Counter    Counter
	Transcoder Transcoder
	Logger     *zap.Logger
	Clock      func() time.Time
}

// Store owns the mapping from tab identifiers to persisted configuration
// documents: the identifier allocator, the document reader/reconciler, and the
// per-identifier serialized update queue.
type Store struct {
	root       string
	counter    Counter
	transcoder Transcoder
	logger     *zap.Logger
	clock      func() time.Time

	queues queueMap
}

// NewStore validates collaborators and prepares the tabs root directory.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.RootDir == "" {
		return nil, newStoreError(opStoreNew, "missing_root_dir", errMissingRootDir)
	}
	if cfg.Counter == nil {
		return nil, newStoreError(opStoreNew, "missing_counter", errMissingAllocator)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	if err := os.MkdirAll(cfg.RootDir, tabDirMode); err != nil {
		return nil, newStoreError(opStoreNew, "ensure_root_dir", err)
	}
	store := &Store{
		root:       cfg.RootDir,
		counter:    cfg.Counter,
		transcoder: cfg.Transcoder,
		logger:     logger,
		clock:      clock,
	}
	store.queues.init()
	return store, nil
}

// tabDir returns the folder of a tab. The id must already be validated.
func (s *Store) tabDir(id TabID) string {
	return filepath.Join(s.root, id.String())
}

func (s *Store) configPath(id TabID) string {
	return filepath.Join(s.tabDir(id), configFileName)
}

// TabFilePath returns the absolute path of the primary tab file described by
// info. The embedded names are validated before path construction.
func (s *Store) TabFilePath(info TabInfo) (string, error) {
	id, err := NewTabID(info.ID)
	if err != nil {
		return "", err
	}
	if err := ValidateName(info.Filename); err != nil {
		return "", err
	}
	return filepath.Join(s.tabDir(id), info.Filename), nil
}

// AudioFilePath returns the absolute path of an audio file inside a tab
// folder after validating both names.
func (s *Store) AudioFilePath(id TabID, filename string) (string, error) {
	if err := ValidateName(id.String()); err != nil {
		return "", err
	}
	if err := ValidateName(filename); err != nil {
		return "", err
	}
	return filepath.Join(s.tabDir(id), filename), nil
}

// Exists reports whether a persisted document exists for id.
func (s *Store) Exists(id TabID) (bool, error) {
	if err := ValidateName(id.String()); err != nil {
		return false, err
	}
	_, err := os.Stat(s.configPath(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// AllocateNextID produces a fresh tab identifier. The durable counter gives a
// total order on allocations; the folder existence probe guards against
// counter/storage drift, discarding candidates whose folder already exists.
func (s *Store) AllocateNextID(ctx context.Context) (TabID, error) {
	for {
		value, err := s.counter.Next(ctx, tabCounterName)
		if err != nil {
			s.logError(opAllocateID, "counter_failed", err)
			return "", newStoreError(opAllocateID, "counter_failed", err)
		}
		candidate := TabID(strconv.FormatUint(value, 10))
		if _, err := os.Stat(s.tabDir(candidate)); errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		} else if err != nil {
			s.logError(opAllocateID, "probe_failed", err, zap.String("tab_id", candidate.String()))
			return "", newStoreError(opAllocateID, "probe_failed", err)
		}
		s.logger.Warn("tab folder already exists for allocated id, trying next",
			zap.String("tab_id", candidate.String()))
	}
}

// CreateDocument creates the tab folder, writes the primary tab file and then
// the configuration document, in that order. The folder is created with
// Mkdir, not MkdirAll, so a duplicate identifier fails instead of sharing a
// folder.
func (s *Store) CreateDocument(id TabID, tabData []byte, ext, title, artist, originalFilename string) (*Document, error) {
	if err := ValidateName(id.String()); err != nil {
		return nil, newStoreError(opCreate, "invalid_id", err)
	}
	if !IsSupportedTabFormat(ext) {
		return nil, newStoreError(opCreate, "unsupported_format",
			fmt.Errorf("%w: unsupported tab format %q", ErrValidation, ext))
	}

	dir := s.tabDir(id)
	if err := os.Mkdir(dir, tabDirMode); err != nil {
		s.logError(opCreate, "mkdir_failed", err, zap.String("tab_id", id.String()))
		return nil, newStoreError(opCreate, "mkdir_failed", err)
	}

	filename := tabFileBaseName + "." + ext
	if err := os.WriteFile(filepath.Join(dir, filename), tabData, documentFileMode); err != nil {
		s.logError(opCreate, "write_tab_file_failed", err, zap.String("tab_id", id.String()))
		return nil, newStoreError(opCreate, "write_tab_file_failed", err)
	}

	doc := &Document{
		Tab:     newTabInfo(id, title, artist, filename, originalFilename, s.clock()),
		Audio:   []AudioEntry{},
		YouTube: []VideoLink{},
	}
	if err := s.writeDocument(id, doc); err != nil {
		s.logError(opCreate, "write_document_failed", err, zap.String("tab_id", id.String()))
		return nil, newStoreError(opCreate, "write_document_failed", err)
	}
	return doc, nil
}

// ReadDocument returns the authoritative document for id. With
// includeAudioScan the audio list is rebuilt from the files physically
// present in the tab folder, keeping stored sync metadata only for filenames
// that still exist. A corrupt persisted document is logged and reported as
// not found.
func (s *Store) ReadDocument(id TabID, includeAudioScan bool) (*Document, error) {
	if err := ValidateName(id.String()); err != nil {
		return nil, newStoreError(opRead, "invalid_id", err)
	}
	return s.readDocument(id, includeAudioScan)
}

func (s *Store) readDocument(id TabID, includeAudioScan bool) (*Document, error) {
	raw, err := os.ReadFile(s.configPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, newStoreError(opRead, "not_found", fmt.Errorf("%w: tab %s", ErrNotFound, id))
	}
	if err != nil {
		s.logError(opRead, "read_failed", err, zap.String("tab_id", id.String()))
		return nil, newStoreError(opRead, "read_failed", err)
	}

	doc := &Document{}
	if err := json.Unmarshal(raw, doc); err != nil {
		s.logError(opRead, "corrupt_document", err, zap.String("tab_id", id.String()))
		return nil, newStoreError(opRead, "not_found", fmt.Errorf("%w: tab %s", ErrNotFound, id))
	}
	if err := doc.applyDefaults(); err != nil {
		s.logError(opRead, "corrupt_document", err, zap.String("tab_id", id.String()))
		return nil, newStoreError(opRead, "not_found", fmt.Errorf("%w: tab %s", ErrNotFound, id))
	}
	doc.Tab.ID = id.String()

	if includeAudioScan {
		diskFiles, err := scanAudioFiles(s.tabDir(id))
		if err != nil {
			s.logError(opRead, "audio_scan_failed", err, zap.String("tab_id", id.String()))
			return nil, newStoreError(opRead, "audio_scan_failed", err)
		}
		doc.Audio = mergeAudioEntries(diskFiles, doc.Audio)
	}
	return doc, nil
}

// writeDocument persists doc as the full config.json of id, indented for
// human inspection.
func (s *Store) writeDocument(id TabID, doc *Document) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.configPath(id), raw, documentFileMode)
}

// ListAll scans the tabs root and returns every tab's info, newest first.
// Folders missing a config.json are recovered by synthesizing a minimal
// document around any recognizable tab file; folders with neither are
// silently skipped.
func (s *Store) ListAll() ([]TabInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		s.logError(opList, "read_root_failed", err)
		return nil, newStoreError(opList, "read_root_failed", err)
	}

	infos := make([]TabInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == deletedDirName {
			continue
		}
		id, err := NewTabID(entry.Name())
		if err != nil {
			continue
		}
		info, ok := s.loadOrRecover(id)
		if ok {
			infos = append(infos, info)
		}
	}

	sort.SliceStable(infos, func(i, j int) bool {
		left, _ := time.Parse(time.RFC3339, infos[i].CreatedAt)
		right, _ := time.Parse(time.RFC3339, infos[j].CreatedAt)
		return left.After(right)
	})
	return infos, nil
}

// loadOrRecover reads a tab's info, creating a minimal document for folders
// that lost theirs but still hold a recognizable tab file.
func (s *Store) loadOrRecover(id TabID) (TabInfo, bool) {
	doc, err := s.readDocument(id, false)
	if err == nil {
		return doc.Tab, true
	}
	if !errors.Is(err, ErrNotFound) {
		return TabInfo{}, false
	}

	tabFile, err := findTabFile(s.tabDir(id))
	if err != nil || tabFile == "" {
		return TabInfo{}, false
	}

	recovered := &Document{
		Tab:     newTabInfo(id, id.String(), "", tabFile, tabFile, s.clock()),
		Audio:   []AudioEntry{},
		YouTube: []VideoLink{},
	}
	if err := s.writeDocument(id, recovered); err != nil {
		s.logError(opList, "recover_write_failed", err, zap.String("tab_id", id.String()))
		return TabInfo{}, false
	}
	s.logger.Info("recovered missing tab document",
		zap.String("tab_id", id.String()), zap.String("tab_file", tabFile))
	return recovered.Tab, true
}

// SoftDelete relocates the entire tab folder into the deleted area, suffixed
// with the identifier and a timestamp to avoid collisions with previously
// deleted tabs of the same identifier.
func (s *Store) SoftDelete(id TabID) error {
	if err := ValidateName(id.String()); err != nil {
		return newStoreError(opSoftDelete, "invalid_id", err)
	}
	exists, err := s.Exists(id)
	if err != nil {
		s.logError(opSoftDelete, "probe_failed", err, zap.String("tab_id", id.String()))
		return newStoreError(opSoftDelete, "probe_failed", err)
	}
	if !exists {
		return newStoreError(opSoftDelete, "not_found", fmt.Errorf("%w: tab %s", ErrNotFound, id))
	}

	deletedDir := filepath.Join(s.root, deletedDirName)
	if err := os.MkdirAll(deletedDir, tabDirMode); err != nil {
		return newStoreError(opSoftDelete, "ensure_deleted_dir", err)
	}
	target := filepath.Join(deletedDir,
		fmt.Sprintf("%s-%d", id.String(), s.clock().UnixMilli()))
	if err := os.Rename(s.tabDir(id), target); err != nil {
		s.logError(opSoftDelete, "rename_failed", err, zap.String("tab_id", id.String()))
		return newStoreError(opSoftDelete, "rename_failed", err)
	}
	s.logger.Info("tab soft deleted", zap.String("tab_id", id.String()), zap.String("moved_to", target))
	return nil
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("tab store error", attrs...)
}
