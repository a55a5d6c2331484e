package interceptors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/farolabs/beacon/core"
	"github.com/farolabs/beacon/selflog"
)

// spoolEncMode is the CBOR encoder mode for spooled events.
// Configured for nanosecond-precision timestamps and deterministic encoding.
var spoolEncMode cbor.EncMode

// spoolDecMode is the CBOR decoder mode for spooled events.
var spoolDecMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	spoolEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create spool CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	spoolDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create spool CBOR decoder mode: %v", err))
	}
}

// spoolRecord is the on-disk shape of an event.
// CBOR encoding uses integer keys for compactness.
type spoolRecord struct {
	Timestamp     time.Time         `cbor:"1,keyasint"`
	ID            string            `cbor:"2,keyasint"`
	Severity      int               `cbor:"3,keyasint"`
	Purpose       int               `cbor:"4,keyasint"`
	Domain        string            `cbor:"5,keyasint"`
	Action        string            `cbor:"6,keyasint"`
	Message       string            `cbor:"7,keyasint"`
	Payload       map[string]string `cbor:"8,keyasint,omitempty"`
	Critical      bool              `cbor:"9,keyasint,omitempty"`
	CorrelationID string            `cbor:"10,keyasint,omitempty"`
}

func toSpoolRecord(e *core.Event) spoolRecord {
	r := spoolRecord{
		Timestamp: e.Timestamp,
		ID:        e.ID.String(),
		Severity:  int(e.Severity),
		Purpose:   int(e.Purpose),
		Domain:    e.Domain.Name(),
		Action:    e.Action.Name(),
		Message:   e.Message,
		Payload:   e.Payload,
		Critical:  e.Critical,
	}
	if e.CorrelationID != nil {
		r.CorrelationID = e.CorrelationID.String()
	}
	return r
}

// event reconstructs the original event. Unparseable IDs are left zero
// rather than failing the read.
func (r spoolRecord) event() core.Event {
	e := core.Event{
		Timestamp: r.Timestamp,
		Severity:  core.Severity(r.Severity),
		Purpose:   core.Purpose(r.Purpose),
		Domain:    core.CustomDomain(r.Domain),
		Action:    core.CustomAction(r.Action),
		Message:   r.Message,
		Payload:   r.Payload,
		Critical:  r.Critical,
	}
	if id, err := uuid.Parse(r.ID); err == nil {
		e.ID = id
	}
	if r.CorrelationID != "" {
		if cid, err := uuid.Parse(r.CorrelationID); err == nil {
			e.CorrelationID = &cid
		}
	}
	return e
}

// SpoolOptions configures the on-disk spool.
type SpoolOptions struct {
	// Path is the directory that holds spool files.
	Path string

	// MaxFileSize is the size in bytes at which the current file rotates
	// (default 10MB).
	MaxFileSize int64

	// MaxFiles is the number of spool files retained after rotation
	// (default 5). Oldest files are removed first.
	MaxFiles int
}

var errSpoolClosed = errors.New("spool is closed")

// Spool persists events to rotating CBOR files so they survive process
// restarts and can be replayed with a SpoolReader.
type Spool struct {
	options SpoolOptions

	mu          sync.Mutex
	file        *os.File
	fileIndex   int
	currentSize int64
	closed      bool
}

// NewSpool creates a spool writing to the given directory with default
// rotation settings. The directory is created if it does not exist.
func NewSpool(path string) (*Spool, error) {
	return NewSpoolWithOptions(SpoolOptions{Path: path})
}

// NewSpoolWithOptions creates a spool with explicit rotation settings.
func NewSpoolWithOptions(opts SpoolOptions) (*Spool, error) {
	if opts.Path == "" {
		return nil, errors.New("spool path is required")
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = 10 * 1024 * 1024
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = 5
	}

	if err := os.MkdirAll(opts.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	s := &Spool{options: opts}
	if err := s.openCurrentFile(); err != nil {
		return nil, err
	}
	return s, nil
}

// Name identifies the interceptor in health reports.
func (s *Spool) Name() string {
	return "spool"
}

// Intercept appends the event to the current spool file, rotating first
// when the size limit is reached.
func (s *Spool) Intercept(ctx context.Context, event *core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSpoolClosed
	}

	if s.currentSize >= s.options.MaxFileSize {
		if err := s.rotate(); err != nil {
			if selflog.IsEnabled() {
				selflog.Printf("[spool] failed to rotate: %v", err)
			}
			return fmt.Errorf("failed to rotate spool file: %w", err)
		}
	}

	data, err := spoolEncMode.Marshal(toSpoolRecord(event))
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	n, err := s.file.Write(data)
	s.currentSize += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// HealthCheck verifies the spool directory is still writable.
func (s *Spool) HealthCheck(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSpoolClosed
	}

	probe := filepath.Join(s.options.Path, ".spool-probe")
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("spool directory not writable: %w", err)
	}
	f.Close()
	os.Remove(probe)
	return nil
}

// Sync flushes the current file to stable storage.
func (s *Spool) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSpoolClosed
	}
	return s.file.Sync()
}

// Close closes the current spool file. Close is idempotent.
func (s *Spool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

// openCurrentFile opens the highest-indexed spool file for appending, or
// the first file when the directory is empty.
func (s *Spool) openCurrentFile() error {
	s.fileIndex = s.highestFileIndex()
	if s.fileIndex < 0 {
		s.fileIndex = 0
	}

	file, err := os.OpenFile(s.fileName(s.fileIndex), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open spool file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}

	s.file = file
	s.currentSize = info.Size()
	return nil
}

// rotate closes the current file, opens the next one and prunes files
// beyond the retention limit. Called with mu held.
func (s *Spool) rotate() error {
	if s.file != nil {
		s.file.Close()
	}

	s.fileIndex++
	file, err := os.OpenFile(s.fileName(s.fileIndex), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	s.file = file
	s.currentSize = 0

	s.pruneOldFiles()
	return nil
}

func (s *Spool) fileName(index int) string {
	return filepath.Join(s.options.Path, fmt.Sprintf("events-%06d.cbor", index))
}

// spoolFiles returns the spool files in a directory sorted by index.
func spoolFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "events-*.cbor"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (s *Spool) highestFileIndex() int {
	files, err := spoolFiles(s.options.Path)
	if err != nil || len(files) == 0 {
		return -1
	}

	maxIndex := -1
	for _, file := range files {
		base := filepath.Base(file)
		var index int
		if n, err := fmt.Sscanf(base, "events-%06d.cbor", &index); n == 1 && err == nil {
			if index > maxIndex {
				maxIndex = index
			}
		}
	}
	return maxIndex
}

func (s *Spool) pruneOldFiles() {
	files, err := spoolFiles(s.options.Path)
	if err != nil {
		return
	}
	if len(files) <= s.options.MaxFiles {
		return
	}

	for _, file := range files[:len(files)-s.options.MaxFiles] {
		if err := os.Remove(file); err != nil && selflog.IsEnabled() {
			selflog.Printf("[spool] failed to remove old file %s: %v", file, err)
		}
	}
}

// SpoolFilter selects events during replay. Zero/nil fields match all
// events for that criterion.
type SpoolFilter struct {
	// MinSeverity keeps events at or above this severity.
	MinSeverity *core.Severity

	// Domain filters by exact domain name.
	Domain string

	// Action filters by exact action name.
	Action string

	// Since keeps events at or after this time.
	Since *time.Time

	// Until keeps events before this time.
	Until *time.Time

	// Critical, when set, keeps only events whose critical flag matches.
	Critical *bool
}

// matches returns true if the record satisfies all filter criteria.
func (f *SpoolFilter) matches(r spoolRecord) bool {
	if f.MinSeverity != nil && core.Severity(r.Severity) < *f.MinSeverity {
		return false
	}
	if f.Domain != "" && r.Domain != f.Domain {
		return false
	}
	if f.Action != "" && r.Action != f.Action {
		return false
	}
	if f.Since != nil && r.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && !r.Timestamp.Before(*f.Until) {
		return false
	}
	if f.Critical != nil && r.Critical != *f.Critical {
		return false
	}
	return true
}

// SpoolReader replays spooled events from a directory, walking the spool
// files in rotation order.
type SpoolReader struct {
	files   []string
	filter  SpoolFilter
	file    *os.File
	decoder *cbor.Decoder
}

// NewSpoolReader creates a reader over every event in the directory.
func NewSpoolReader(dir string) (*SpoolReader, error) {
	return NewFilteredSpoolReader(dir, SpoolFilter{})
}

// NewFilteredSpoolReader creates a reader over events matching the filter.
func NewFilteredSpoolReader(dir string, filter SpoolFilter) (*SpoolReader, error) {
	files, err := spoolFiles(dir)
	if err != nil {
		return nil, err
	}
	return &SpoolReader{files: files, filter: filter}, nil
}

// Next returns the next event that matches the filter.
// Returns io.EOF when no more events are available.
func (r *SpoolReader) Next() (core.Event, error) {
	for {
		if r.decoder == nil {
			if len(r.files) == 0 {
				return core.Event{}, io.EOF
			}
			file, err := os.Open(r.files[0])
			if err != nil {
				return core.Event{}, err
			}
			r.files = r.files[1:]
			r.file = file
			r.decoder = spoolDecMode.NewDecoder(file)
		}

		var record spoolRecord
		if err := r.decoder.Decode(&record); err != nil {
			r.file.Close()
			r.file = nil
			r.decoder = nil
			if err == io.EOF {
				continue
			}
			return core.Event{}, err
		}

		if r.filter.matches(record) {
			return record.event(), nil
		}
	}
}

// ReadAll returns all remaining events that match the filter.
func (r *SpoolReader) ReadAll() ([]core.Event, error) {
	var events []core.Event
	for {
		event, err := r.Next()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, event)
	}
}

// Close releases the reader's file handle.
func (r *SpoolReader) Close() error {
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		r.decoder = nil
		return err
	}
	return nil
}
