package systems

import (
	"sync"

	"github.com/dyluth/stash/pkg/codec"
	"github.com/dyluth/stash/pkg/progress"
)

// Flags saves a game-progress store. Values are encoded with the codec, so
// they are enciphered field by field when encryption is enabled.
type Flags struct {
	name  string
	codec *codec.Codec

	mu    sync.Mutex
	store *progress.Store
}

// NewFlags creates an empty progress store saved under name. A nil codec
// means plain values.
func NewFlags(name string, c *codec.Codec) *Flags {
	if c == nil {
		c = codec.New(nil)
	}
	return &Flags{name: name, codec: c, store: &progress.Store{}}
}

func (f *Flags) SystemName() string { return f.name }

// Update runs fn with exclusive access to the store.
func (f *Flags) Update(fn func(s *progress.Store)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.store)
}

// View runs fn with the store; fn must not retain or modify it.
func (f *Flags) View(fn func(s *progress.Store)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.store)
}

func (f *Flags) CaptureState() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.store.Marshal(f.codec)
}

// RestoreState replaces the store. Values that fail to decode are dropped or
// zeroed and reported in the returned error; the rest is kept. A blob that
// yields nothing usable leaves the store unchanged.
func (f *Flags) RestoreState(blob string) error {
	s, err := progress.Unmarshal(f.codec, blob)
	if err != nil && s.Len() == 0 && blob != "" {
		return err
	}

	f.mu.Lock()
	f.store = s
	f.mu.Unlock()
	return err
}
