package recorder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"BinarySentinel/internal/history"
	"BinarySentinel/internal/model"
)

// CSVRecorder appends samples to one CSV file per market and UTC day, in the schema
// history.ReadCSV reads back. Pricing, alert and hedge events are not written.
type CSVRecorder struct {
	dir string

	mu      sync.Mutex
	path    string
	file    *os.File
	written int
}

// NewCSVRecorder creates dir if needed.
func NewCSVRecorder(dir string) (*CSVRecorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create csv dir: %w", err)
	}
	log.Infof("csv recorder writing to %s", dir)
	return &CSVRecorder{dir: dir}, nil
}

// FileName is the file holding the samples of marketID on the UTC day of s.
func (r *CSVRecorder) FileName(s *model.MarketSample) string {
	id := strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			return c
		}
		return '_'
	}, s.Market.ID)
	if len(id) > 16 {
		id = id[:16]
	}
	if id == "" {
		id = "unknown"
	}
	return filepath.Join(r.dir, fmt.Sprintf("samples_%s_%s.csv", s.Time.UTC().Format("2006-01-02"), id))
}

func (r *CSVRecorder) RecordSample(s *model.MarketSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	path := r.FileName(s)
	if path != r.path {
		if err := r.rotate(path); err != nil {
			return err
		}
	}

	rows := []history.Sample{history.FromMarketSample(*s)}
	var err error
	if r.written == 0 {
		err = history.WriteSamples(r.file, rows)
	} else {
		err = history.AppendSamples(r.file, rows)
	}
	if err != nil {
		return fmt.Errorf("write sample: %w", err)
	}
	r.written++
	return nil
}

// rotate closes the current file and opens path for appending. An existing non-empty
// file already has its header.
func (r *CSVRecorder) rotate(path string) error {
	if err := r.closeFile(); err != nil {
		log.Warnf("close csv file: %v", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open csv file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat csv file: %w", err)
	}
	r.path, r.file, r.written = path, f, 0
	if info.Size() > 0 {
		r.written = 1
	} else {
		log.Infof("created csv file %s", path)
	}
	return nil
}

func (r *CSVRecorder) closeFile() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file, r.path = nil, ""
	return err
}

func (r *CSVRecorder) RecordPricing(_ *PricingEvent) error { return nil }
func (r *CSVRecorder) RecordAlert(_ *AlertEvent) error     { return nil }
func (r *CSVRecorder) RecordHedge(_ *HedgeEvent) error     { return nil }

func (r *CSVRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeFile()
}

// Multi fans every event out to several recorders and joins their errors.
type Multi []Recorder

func (m Multi) RecordSample(s *model.MarketSample) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordSample(s))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordPricing(evt *PricingEvent) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordPricing(evt))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordAlert(evt *AlertEvent) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordAlert(evt))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordHedge(evt *HedgeEvent) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordHedge(evt))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}
