// Package snapshot archives serialized room grid state as compressed
// files, one per room eviction or deletion. Snapshots are an archive, not
// the source of truth: the verse store is replayed for live hydration.
package snapshot

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

type Archiver struct {
	baseDir string
}

func NewArchiver(dataDir string) *Archiver {
	return &Archiver{baseDir: filepath.Join(dataDir, "snapshots")}
}

// WriteRoomSnapshot writes state (the grid's Serialize output) to
// <dataDir>/snapshots/<code>/<unix-nano>.snap.zst.
func (a *Archiver) WriteRoomSnapshot(code string, state []byte) error {
	path := filepath.Join(a.baseDir, code, fmt.Sprintf("%d.snap.zst", time.Now().UTC().UnixNano()))
	return writeCompressed(path, state)
}

func writeCompressed(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		return err
	}

	bw := bufio.NewWriterSize(enc, 64*1024)
	if _, err := bw.Write(b); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadRoomSnapshot reads one archived snapshot back into serialized form.
func ReadRoomSnapshot(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	return io.ReadAll(dec)
}

// LatestRoomSnapshot returns the newest archived snapshot for a room, or
// "" when none exists.
func (a *Archiver) LatestRoomSnapshot(code string) string {
	dir := filepath.Join(a.baseDir, code)
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	best := ""
	for _, e := range ents {
		if e.IsDir() || filepath.Ext(e.Name()) != ".zst" {
			continue
		}
		if e.Name() > best {
			best = e.Name()
		}
	}
	if best == "" {
		return ""
	}
	return filepath.Join(dir, best)
}
