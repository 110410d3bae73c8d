package wal

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/ports"
)

// entry format: [8 bytes id][4 bytes len][len bytes json]
const recordHeaderLen = 12

var errTornRecord = errors.New("torn journal record")

// FileWAL journals emitted event records ahead of the history sink. The
// committed watermark lives next to the log in journal.meta.
type FileWAL struct {
	mu        sync.Mutex
	dir       string
	path      string
	metaPath  string
	file      *os.File
	writer    *bufio.Writer
	nextID    ports.WALEntryID
	committed ports.WALEntryID
	sizeBytes int64
	closed    bool
}

func NewFileWAL(dir string) (*FileWAL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal dir: %w", err)
	}
	w := &FileWAL{
		dir:      dir,
		path:     filepath.Join(dir, "journal.log"),
		metaPath: filepath.Join(dir, "journal.meta"),
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	if err := w.recover(); err != nil {
		_ = w.file.Close()
		return nil, err
	}
	return w, nil
}

func (w *FileWAL) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	w.file = f
	w.writer = bufio.NewWriterSize(f, 64<<10)
	return nil
}

// readRecord returns the next raw record or io.EOF at a clean boundary.
func readRecord(r *bufio.Reader) (ports.WALEntryID, []byte, error) {
	var hdr [recordHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, nil, errTornRecord
		}
		return 0, nil, err
	}
	id := ports.WALEntryID(binary.BigEndian.Uint64(hdr[0:8]))
	body := make([]byte, binary.BigEndian.Uint32(hdr[8:12]))
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, nil, errTornRecord
		}
		return 0, nil, err
	}
	return id, body, nil
}

// recover finds the last whole record, cuts any torn tail and loads the
// committed watermark.
func (w *FileWAL) recover() error {
	rf, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer rf.Close()

	r := bufio.NewReader(rf)
	var (
		offset int64
		lastID ports.WALEntryID
	)
	for {
		id, body, err := readRecord(r)
		if errors.Is(err, io.EOF) || errors.Is(err, errTornRecord) {
			break
		}
		if err != nil {
			return fmt.Errorf("journal scan: %w", err)
		}
		offset += recordHeaderLen + int64(len(body))
		lastID = id
	}
	if err := w.file.Truncate(offset); err != nil {
		return fmt.Errorf("journal truncate tail: %w", err)
	}
	w.sizeBytes = offset
	w.nextID = lastID

	if err := w.loadCommitted(); err != nil {
		return err
	}
	if w.nextID < w.committed {
		w.nextID = w.committed
	}
	return nil
}

func (w *FileWAL) loadCommitted() error {
	data, err := os.ReadFile(w.metaPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	val := strings.TrimSpace(string(data))
	if val == "" {
		return nil
	}
	u, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return fmt.Errorf("journal meta parse: %w", err)
	}
	w.committed = ports.WALEntryID(u)
	return nil
}

func encodeRecord(id ports.WALEntryID, body []byte) []byte {
	buf := make([]byte, recordHeaderLen+len(body))
	binary.BigEndian.PutUint64(buf[0:8], uint64(id))
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(body)))
	copy(buf[recordHeaderLen:], body)
	return buf
}

func (w *FileWAL) Append(r *domain.EventRecord) (ports.WALEntryID, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return 0, fmt.Errorf("encode record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, os.ErrClosed
	}

	id := w.nextID + 1
	rec := encodeRecord(id, body)
	if _, err := w.writer.Write(rec); err != nil {
		return 0, err
	}
	if err := w.writer.Flush(); err != nil {
		return 0, err
	}
	w.nextID = id
	w.sizeBytes += int64(len(rec))
	return id, nil
}

func (w *FileWAL) Iterate(from ports.WALEntryID, fn func(id ports.WALEntryID, r *domain.EventRecord) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		return err
	}

	f, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	for {
		id, body, err := readRecord(br)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("corrupt journal: %w", err)
		}
		if id < from {
			continue
		}
		var rec domain.EventRecord
		if err := json.Unmarshal(body, &rec); err != nil {
			return fmt.Errorf("corrupt journal entry %d: %w", id, err)
		}
		if err := fn(id, &rec); err != nil {
			return err
		}
	}
}

func (w *FileWAL) Commit(upto ports.WALEntryID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if upto <= w.committed {
		return nil
	}
	w.committed = upto
	return os.WriteFile(w.metaPath, []byte(fmt.Sprintf("%d\n", w.committed)), 0o644)
}

// TruncateCommitted rewrites the log without the committed prefix.
func (w *FileWAL) TruncateCommitted() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return os.ErrClosed
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}

	src, err := os.Open(w.path)
	if err != nil {
		return err
	}
	tmpPath := w.path + ".compact"
	dst, err := os.Create(tmpPath)
	if err != nil {
		_ = src.Close()
		return err
	}

	var kept int64
	bw := bufio.NewWriter(dst)
	br := bufio.NewReader(src)
	for {
		id, body, rerr := readRecord(br)
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			err = fmt.Errorf("compact journal: %w", rerr)
			break
		}
		if id <= w.committed {
			continue
		}
		n, werr := bw.Write(encodeRecord(id, body))
		if werr != nil {
			err = werr
			break
		}
		kept += int64(n)
	}
	if err == nil {
		err = bw.Flush()
	}
	err = errors.Join(err, dst.Close(), src.Close())
	if err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := w.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		return err
	}
	if err := w.open(); err != nil {
		return err
	}
	w.sizeBytes = kept
	return nil
}

func (w *FileWAL) Stats() ports.WALStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ports.WALStats{
		OldestUncommitted: w.committed + 1,
		LatestAppended:    w.nextID,
		SizeBytes:         w.sizeBytes,
	}
}

func (w *FileWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return errors.Join(w.writer.Flush(), w.file.Close())
}

var _ ports.WAL = (*FileWAL)(nil)
