package media

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Layout places the artifacts of a run below a single working directory:
//
//	<root>/audio/<id>.mp3            downloaded audio
//	<root>/audio/<id>/<id>_000.mp3   fixed length chunks
//	<root>/<id>.txt                  finished transcript
type Layout struct {
	Root string
}

func (l Layout) AudioDir() string { return filepath.Join(l.Root, "audio") }

func (l Layout) AudioPath(id string) string {
	return filepath.Join(l.AudioDir(), id+".mp3")
}

// AudioTemplate is the output template handed to the downloader. The tool
// substitutes the extension.
func (l Layout) AudioTemplate(id string) string {
	return filepath.Join(l.AudioDir(), id+".%(ext)s")
}

func (l Layout) ChunkDir(id string) string {
	return filepath.Join(l.AudioDir(), id)
}

func (l Layout) ChunkTemplate(id string) string {
	return filepath.Join(l.ChunkDir(id), id+"_%03d.mp3")
}

func (l Layout) TranscriptPath(id string) string {
	return filepath.Join(l.Root, id+".txt")
}

// Chunks lists the chunk files of a stream in sequence order.
func (l Layout) Chunks(id string) ([]string, error) {
	entries, err := os.ReadDir(l.ChunkDir(id))
	if err != nil {
		return nil, err
	}
	// ReadDir sorts by name, which is the sequence order for zero padded names
	chunks := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		chunks = append(chunks, filepath.Join(l.ChunkDir(id), e.Name()))
	}

	return chunks, nil
}

// CleanupAudio removes all downloaded audio and chunks.
func (l Layout) CleanupAudio() error {
	if err := os.RemoveAll(l.AudioDir()); err != nil {
		return fmt.Errorf("failed to remove audio dir: %w", err)
	}
	return nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func hasFiles(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			return true, nil
		}
	}
	return false, nil
}
