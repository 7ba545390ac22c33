package tabs

import (
	"os"
)

// mergeAudioEntries reconciles the audio files physically present in a tab
// folder with the sync metadata of a persisted document. The filesystem is
// ground truth for which files exist; the document is ground truth for the
// sync metadata of known files. Metadata for vanished files is dropped, files
// without metadata get defaults. The result follows disk enumeration order.
func mergeAudioEntries(diskFilenames []string, stored []AudioEntry) []AudioEntry {
	byName := make(map[string]AudioEntry, len(stored))
	for _, entry := range stored {
		byName[entry.Filename] = entry
	}

	merged := make([]AudioEntry, 0, len(diskFilenames))
	for _, filename := range diskFilenames {
		if entry, ok := byName[filename]; ok {
			merged = append(merged, entry)
			continue
		}
		merged = append(merged, defaultAudioEntry(filename))
	}
	return merged
}

// scanAudioFiles lists the files in dir whose extension is a supported audio
// format. Enumeration order is filesystem dependent and callers must not rely
// on it.
func scanAudioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var filenames []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if IsSupportedAudioFormat(FileExtension(entry.Name())) {
			filenames = append(filenames, entry.Name())
		}
	}
	return filenames, nil
}

// findTabFile returns the first file in dir with a supported tab extension,
// or "" when none exists.
func findTabFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if IsSupportedTabFormat(FileExtension(entry.Name())) {
			return entry.Name(), nil
		}
	}
	return "", nil
}
