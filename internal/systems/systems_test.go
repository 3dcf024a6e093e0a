package systems

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dyluth/stash/pkg/bus"
	"github.com/dyluth/stash/pkg/cipher"
	"github.com/dyluth/stash/pkg/codec"
	"github.com/dyluth/stash/pkg/events"
	"github.com/dyluth/stash/pkg/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRegistrar records registrations.
type fakeRegistrar struct {
	names []string
	fail  error
}

func (r *fakeRegistrar) Register(name string) error {
	if r.fail != nil {
		return r.fail
	}
	r.names = append(r.names, name)
	return nil
}

func (r *fakeRegistrar) Unregister(name string) {
	for i, n := range r.names {
		if n == name {
			r.names = append(r.names[:i], r.names[i+1:]...)
			return
		}
	}
}

// failing is a Saveable that cannot capture its state.
type failing struct{}

func (failing) SystemName() string            { return "Broken" }
func (failing) CaptureState() (string, error) { return "", errors.New("disk on fire") }
func (failing) RestoreState(string) error     { return nil }

type panicking struct{}

func (panicking) SystemName() string            { return "Panicky" }
func (panicking) CaptureState() (string, error) { panic("capture exploded") }
func (panicking) RestoreState(string) error     { return nil }

func encryptedCodec(t *testing.T) *codec.Codec {
	t.Helper()
	key, err := cipher.KeyFromSecret("systems-test")
	require.NoError(t, err)
	aes, err := cipher.NewAES(key)
	require.NoError(t, err)
	return codec.New(aes)
}

func collectResponses(b *bus.Bus) *[]events.SaveResponse {
	var got []events.SaveResponse
	bus.Subscribe(b, func(r events.SaveResponse) { got = append(got, r) })
	return &got
}

func TestAttach_RespondsToSaveRequest(t *testing.T) {
	b := bus.New()
	reg := &fakeRegistrar{}
	inv := NewInventory("Inventory")
	inv.Add("A", 1)
	inv.Add("B", 2)

	p, err := Attach(b, reg, inv)
	require.NoError(t, err)
	assert.Equal(t, []string{"Inventory"}, reg.names)
	assert.Equal(t, "Inventory", p.Name())

	got := collectResponses(b)
	bus.Publish(b, events.SaveRequest{SaveSlot: 2, OperationID: "op-1", ExpectedSystems: 1})

	require.Len(t, *got, 1)
	r := (*got)[0]
	assert.Equal(t, "Inventory", r.SystemName)
	assert.Equal(t, "A=1;B=2", r.SaveData)
	assert.Equal(t, "op-1", r.OperationID)
	assert.Equal(t, 1, r.TotalSystems)
	assert.True(t, r.Success)
}

func TestAttach_RegistrationFailure(t *testing.T) {
	b := bus.New()
	_, err := Attach(b, &fakeRegistrar{fail: errors.New("taken")}, NewInventory("Inventory"))
	require.Error(t, err)
	assert.Equal(t, 0, b.HandlerCount(events.KindSaveRequest))

	_, err = Attach(b, nil, NewInventory(""))
	assert.Error(t, err)
}

func TestParticipant_CaptureFailureReported(t *testing.T) {
	b := bus.New()
	_, err := Attach(b, nil, failing{})
	require.NoError(t, err)

	got := collectResponses(b)
	bus.Publish(b, events.SaveRequest{OperationID: "op"})

	require.Len(t, *got, 1)
	assert.False(t, (*got)[0].Success)
	assert.Empty(t, (*got)[0].SaveData)
}

func TestParticipant_Deferred(t *testing.T) {
	b := bus.New()
	p, err := Attach(b, nil, NewInventory("Inventory"), Deferred())
	require.NoError(t, err)

	got := collectResponses(b)
	bus.Publish(b, events.SaveRequest{OperationID: "op"})
	assert.Empty(t, *got)
	assert.Equal(t, 1, p.Queued())

	assert.Equal(t, 1, p.Flush())
	require.Len(t, *got, 1)
	assert.Equal(t, "op", (*got)[0].OperationID)
	assert.Equal(t, 0, p.Flush())
}

func TestParticipant_LoadDelivery(t *testing.T) {
	b := bus.New()
	inv := NewInventory("Inventory")
	p, err := Attach(b, nil, inv)
	require.NoError(t, err)

	bus.Publish(b, events.LoadDelivery{SystemData: map[string]string{"Flags": "x", "Inventory": "Potion=3"}})
	assert.Equal(t, map[string]int{"Potion": 3}, inv.Items())
	assert.NoError(t, p.LastLoadError())

	// Entries for other systems are ignored; a missing entry leaves state alone.
	bus.Publish(b, events.LoadDelivery{SystemData: map[string]string{"Flags": "x"}})
	assert.Equal(t, 3, inv.Count("Potion"))

	bus.Publish(b, events.LoadDelivery{SystemData: map[string]string{"Inventory": "garbage"}})
	assert.Error(t, p.LastLoadError())
	assert.Equal(t, 3, inv.Count("Potion"))
}

func TestParticipant_Detach(t *testing.T) {
	b := bus.New()
	reg := &fakeRegistrar{}
	p, err := Attach(b, reg, NewInventory("Inventory"), Deferred())
	require.NoError(t, err)

	bus.Publish(b, events.SaveRequest{OperationID: "op"})
	p.Detach()
	p.Detach()

	assert.Empty(t, reg.names)
	assert.Equal(t, 0, p.Queued())
	assert.Equal(t, 0, b.HandlerCount(events.KindSaveRequest))
	assert.Equal(t, 0, b.HandlerCount(events.KindLoadDelivery))
}

func TestInventory_Format(t *testing.T) {
	tests := []struct {
		name  string
		items map[string]int
		blob  string
	}{
		{"empty", map[string]int{}, ""},
		{"sorted", map[string]int{"B": 2, "A": 1}, "A=1;B=2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.blob, FormatInventory(tt.items))
			parsed, err := ParseInventory(tt.blob)
			require.NoError(t, err)
			assert.Equal(t, tt.items, parsed)
		})
	}
}

func TestInventory_ParseErrors(t *testing.T) {
	for _, blob := range []string{"A", "=1", "A=x", "A=0", "A=1;A=2", "A=1;"} {
		_, err := ParseInventory(blob)
		assert.Error(t, err, blob)
	}
}

func TestInventory_Add(t *testing.T) {
	inv := NewInventory("Inventory")
	require.NoError(t, inv.Add("Potion", 2))
	require.NoError(t, inv.Add("Potion", -2))
	assert.Equal(t, 0, inv.Count("Potion"))
	assert.Empty(t, inv.Items())
}

func TestInventory_AddRejectsUnserializableNames(t *testing.T) {
	inv := NewInventory("Inventory")
	for _, name := range []string{"", "Potion;Rare", "Key=Gold"} {
		err := inv.Add(name, 2)
		assert.ErrorIs(t, err, ErrInvalidItemName, name)
	}
	assert.Empty(t, inv.Items())

	require.NoError(t, inv.Add("Potion Rare", 2))
	blob, err := inv.CaptureState()
	require.NoError(t, err)

	restored := NewInventory("Inventory")
	require.NoError(t, restored.RestoreState(blob))
	assert.Equal(t, 2, restored.Count("Potion Rare"))
}

func TestParticipant_CapturePanicReported(t *testing.T) {
	b := bus.New()
	_, err := Attach(b, nil, panicking{})
	require.NoError(t, err)

	got := collectResponses(b)
	require.NotPanics(t, func() {
		bus.Publish(b, events.SaveRequest{OperationID: "op"})
	})

	require.Len(t, *got, 1)
	assert.Equal(t, "Panicky", (*got)[0].SystemName)
	assert.False(t, (*got)[0].Success)
	assert.Empty(t, (*got)[0].SaveData)
}

func TestFlags_RoundTrip(t *testing.T) {
	for name, c := range map[string]*codec.Codec{"plain": nil, "encrypted": encryptedCodec(t)} {
		t.Run(name, func(t *testing.T) {
			f := NewFlags("Flags", c)
			f.Update(func(s *progress.Store) {
				s.SetBool("seenIntro", true)
				s.SetInt("deaths", 3)
				require.NoError(t, s.SetList("visited", []string{"Town", "Cave"}))
			})

			blob, err := f.CaptureState()
			require.NoError(t, err)
			if name == "encrypted" {
				assert.NotContains(t, blob, "seenIntro")
			}

			g := NewFlags("Flags", c)
			require.NoError(t, g.RestoreState(blob))
			g.View(func(s *progress.Store) {
				seen, ok := s.Bool("seenIntro")
				assert.True(t, ok)
				assert.True(t, seen)
				deaths, _ := s.Int("deaths")
				assert.Equal(t, 3, deaths)
				visited, _ := s.List("visited")
				assert.Equal(t, []string{"Town", "Cave"}, visited)
			})
		})
	}
}

func TestFlags_RestoreGarbageKeepsState(t *testing.T) {
	f := NewFlags("Flags", nil)
	f.Update(func(s *progress.Store) { s.SetBool("seenIntro", true) })

	assert.Error(t, f.RestoreState("not json"))
	f.View(func(s *progress.Store) {
		_, ok := s.Bool("seenIntro")
		assert.True(t, ok)
	})
}

func TestSettings_RoundTrip(t *testing.T) {
	for name, c := range map[string]*codec.Codec{"plain": nil, "encrypted": encryptedCodec(t)} {
		t.Run(name, func(t *testing.T) {
			s := NewSettings("Settings", c)
			want := SettingsValues{
				MasterVolume:     0.35,
				Fullscreen:       false,
				PlayerName:       "Ayla | the brave",
				Difficulty:       3,
				AutosaveInterval: 90 * time.Second,
				WindowPosition:   codec.Vector2{X: 120.5, Y: -4},
				AccentColor:      codec.Color{R: 0.1, G: 0.2, B: 0.3, A: 1},
				LastPlayed:       time.Date(2024, 2, 29, 23, 59, 58, 123*int(time.Millisecond), time.UTC),
			}
			s.Set(want)

			blob, err := s.CaptureState()
			require.NoError(t, err)

			restored := NewSettings("Settings", c)
			require.NoError(t, restored.RestoreState(blob))

			got := restored.Values()
			assert.True(t, want.LastPlayed.Equal(got.LastPlayed))
			got.LastPlayed = want.LastPlayed
			assert.Equal(t, want, got)
		})
	}
}

func TestSettings_BrokenFieldKeepsDefault(t *testing.T) {
	s := NewSettings("Settings", nil)
	v := DefaultSettings()
	v.PlayerName = "Kit"
	v.Difficulty = 2
	s.Set(v)

	blob, err := s.CaptureState()
	require.NoError(t, err)

	// Corrupt the difficulty value.
	require.Contains(t, blob, `"name":"difficulty","values":["2"]`)
	blob = strings.Replace(blob, `"name":"difficulty","values":["2"]`, `"name":"difficulty","values":["two"]`, 1)

	restored := NewSettings("Settings", nil)
	err = restored.RestoreState(blob)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "difficulty")

	got := restored.Values()
	assert.Equal(t, "Kit", got.PlayerName)
	assert.Equal(t, DefaultSettings().Difficulty, got.Difficulty)
}

func TestSettings_EncryptedBlobWithPlainCodecFailsClosed(t *testing.T) {
	s := NewSettings("Settings", encryptedCodec(t))
	v := DefaultSettings()
	v.PlayerName = "Secret"
	s.Set(v)
	blob, err := s.CaptureState()
	require.NoError(t, err)

	plain := NewSettings("Settings", nil)
	err = plain.RestoreState(blob)
	assert.ErrorIs(t, err, codec.ErrCipherMismatch)
	assert.Equal(t, DefaultSettings(), plain.Values())
}
