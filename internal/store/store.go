// Package store persists the whole application document as one JSON file.
// Every save is preceded by a timestamped backup of the previous file, and
// backups beyond the retention count are pruned oldest-first. The store owns
// no business logic; callers mutate the document and hand it back whole.
package store

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tripchat/chat-app/internal/metrics"
)

// Config holds storage locations and the backup retention count.
type Config struct {
	Path       string // document file, e.g. "data/trips.json"
	BackupDir  string // backup folder, e.g. "data/backups"
	MaxBackups int    // backups kept after pruning
}

// DefaultConfig returns the storage defaults.
func DefaultConfig() Config {
	return Config{
		Path:       "data/trips.json",
		BackupDir:  "data/backups",
		MaxBackups: 10,
	}
}

// Store reads and writes the shared document. Writes are last-write-wins at
// document granularity across processes; callers serialize within a process.
type Store struct {
	cfg Config
}

// New creates a store with the given configuration.
func New(cfg Config) *Store {
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = DefaultConfig().MaxBackups
	}
	return &Store{cfg: cfg}
}

// Load reads the full document from disk. A missing or unparsable file
// degrades to an empty document; corruption is logged, never fatal. The
// document is normalized once here so access sites can rely on its shape.
func (s *Store) Load() *Document {
	doc := NewDocument()

	data, err := os.ReadFile(s.cfg.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("store: read %s failed: %v (starting empty)", s.cfg.Path, err)
		}
		return doc
	}
	if err := json.Unmarshal(data, doc); err != nil {
		log.Printf("store: parse %s failed: %v (starting empty)", s.cfg.Path, err)
		return NewDocument()
	}

	doc.Normalize()
	return doc
}

// Save durably persists the full document: backup the current file, then
// write the new content via a temp file + rename so the previous file is
// never left half-written. A backup failure is logged and does not block the
// write. A write failure is returned as a warning; the in-memory document
// stays valid for the session.
func (s *Store) Save(doc *Document) error {
	if err := s.backup(); err != nil {
		metrics.BackupFailures.Inc()
		log.Printf("store: backup failed: %v (continuing with save)", err)
	}

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		metrics.SaveFailures.Inc()
		return fmt.Errorf("store: marshal document: %w", err)
	}

	if err := s.writeAtomic(data); err != nil {
		metrics.SaveFailures.Inc()
		return fmt.Errorf("store: write %s: %w", s.cfg.Path, err)
	}

	metrics.SavesTotal.Inc()
	log.Printf("store: saved %s (%s)", s.cfg.Path, humanize.Bytes(uint64(len(data))))
	return nil
}

// writeAtomic writes data to the document path through a temp file in the
// same directory followed by a rename.
func (s *Store) writeAtomic(data []byte) error {
	dir := filepath.Dir(s.cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".trips-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.cfg.Path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// backup copies the current document file into the backup folder with a
// timestamp suffix, then prunes old backups beyond the retention count.
// A missing document file (first save) is not an error.
func (s *Store) backup() error {
	src, err := os.Open(s.cfg.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open current file: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(s.cfg.BackupDir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	name := fmt.Sprintf("backup_%s.json", time.Now().Format("20060102_150405"))
	dst, err := os.Create(filepath.Join(s.cfg.BackupDir, name))
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("copy backup: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close backup: %w", err)
	}

	s.pruneBackups()
	return nil
}

// pruneBackups removes the oldest backups, by file modification time, until
// at most MaxBackups remain. Prune failures are logged and ignored.
func (s *Store) pruneBackups() {
	entries, err := os.ReadDir(s.cfg.BackupDir)
	if err != nil {
		log.Printf("store: read backup dir failed: %v", err)
		return
	}

	type backup struct {
		path string
		mod  time.Time
	}
	var backups []backup
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backup{
			path: filepath.Join(s.cfg.BackupDir, e.Name()),
			mod:  info.ModTime(),
		})
	}
	if len(backups) <= s.cfg.MaxBackups {
		return
	}

	sort.Slice(backups, func(i, j int) bool { return backups[i].mod.Before(backups[j].mod) })
	for _, b := range backups[:len(backups)-s.cfg.MaxBackups] {
		if err := os.Remove(b.path); err != nil {
			log.Printf("store: prune backup %s failed: %v", b.path, err)
		}
	}
}
