package sample

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"

	"github.com/pipelined/seedling/log"
)

// ErrInvalidFile is returned when the file is not a valid wav file.
var ErrInvalidFile = errors.New("invalid wav file")

// Handle references a sample in the asset store.
type Handle struct {
	id uint64
}

// IsNil returns true for zero handle.
func (h Handle) IsNil() bool {
	return h.id == 0
}

func (h Handle) String() string {
	return fmt.Sprintf("sample#%d", h.id)
}

// Assets stores decoded samples. Samples are decoded in background, Get
// returns false until the sample is ready. Assets is safe for concurrent
// use.
type Assets struct {
	next    atomic.Uint64
	wg      sync.WaitGroup
	mu      sync.RWMutex
	samples map[Handle]*Sample
	errs    map[Handle]error
	log     logrus.FieldLogger
}

// NewAssets returns an empty asset store. If logger is nil, silent logger
// is used.
func NewAssets(l logrus.FieldLogger) *Assets {
	if l == nil {
		l = log.Silent()
	}
	return &Assets{
		samples: make(map[Handle]*Sample),
		errs:    make(map[Handle]error),
		log:     l,
	}
}

func (a *Assets) handle() Handle {
	return Handle{id: a.next.Add(1)}
}

// Insert adds already decoded sample.
func (a *Assets) Insert(s *Sample) Handle {
	h := a.handle()
	a.mu.Lock()
	a.samples[h] = s
	a.mu.Unlock()
	return h
}

// Reserve returns a handle for a sample which will be provided later with
// Set. Requests referencing it stay queued until then.
func (a *Assets) Reserve() Handle {
	return a.handle()
}

// Set provides sample for reserved handle.
func (a *Assets) Set(h Handle, s *Sample) {
	a.mu.Lock()
	a.samples[h] = s
	a.mu.Unlock()
}

// Load decodes wav file in background.
func (a *Assets) Load(path string) Handle {
	h := a.handle()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		s, err := a.load(path)
		a.mu.Lock()
		defer a.mu.Unlock()
		if err != nil {
			a.errs[h] = err
			a.log.WithFields(logrus.Fields{"path": path, "sample": h}).Errorf("load failed: %v", err)
			return
		}
		a.samples[h] = s
		a.log.WithFields(logrus.Fields{"path": path, "sample": h}).Debug("loaded")
	}()
	return h
}

func (a *Assets) load(path string) (*Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Get returns the sample if it's loaded.
func (a *Assets) Get(h Handle) (*Sample, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.samples[h]
	return s, ok
}

// Err returns the error occurred while loading the sample.
func (a *Assets) Err(h Handle) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.errs[h]
}

// Wait blocks until all background loads are done.
func (a *Assets) Wait() {
	a.wg.Wait()
}

// Decode reads wav data into a sample. Values are normalized to [-1, 1].
func Decode(r io.ReadSeeker) (*Sample, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, ErrInvalidFile
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode pcm: %w", err)
	}
	fb := buf.AsFloatBuffer()
	if d.BitDepth > 0 {
		scale := float64(int64(1) << (d.BitDepth - 1))
		for i := range fb.Data {
			fb.Data[i] /= scale
		}
	}
	return &Sample{Buffer: fb}, nil
}
