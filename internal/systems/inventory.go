package systems

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Inventory is a stack-count inventory serialized as "item=count;item=count"
// with items in sorted order.
type Inventory struct {
	name string

	mu    sync.Mutex
	items map[string]int
}

// NewInventory creates an empty inventory saved under name.
func NewInventory(name string) *Inventory {
	return &Inventory{name: name, items: make(map[string]int)}
}

func (inv *Inventory) SystemName() string { return inv.name }

// ErrInvalidItemName is returned for item names that cannot be serialized.
var ErrInvalidItemName = errors.New("item name must be non-empty and contain no ';' or '='")

// Add adds qty of item. A non-positive total removes the item.
func (inv *Inventory) Add(item string, qty int) error {
	if item == "" || strings.ContainsAny(item, ";=") {
		return fmt.Errorf("%w: %q", ErrInvalidItemName, item)
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()

	n := inv.items[item] + qty
	if n <= 0 {
		delete(inv.items, item)
		return nil
	}
	inv.items[item] = n
	return nil
}

// Count returns how many of item are held.
func (inv *Inventory) Count(item string) int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.items[item]
}

// Items returns a copy of the contents.
func (inv *Inventory) Items() map[string]int {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	out := make(map[string]int, len(inv.items))
	for k, v := range inv.items {
		out[k] = v
	}
	return out
}

func (inv *Inventory) CaptureState() (string, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return FormatInventory(inv.items), nil
}

// RestoreState replaces the contents. A malformed blob leaves the inventory unchanged.
func (inv *Inventory) RestoreState(blob string) error {
	items, err := ParseInventory(blob)
	if err != nil {
		return err
	}

	inv.mu.Lock()
	inv.items = items
	inv.mu.Unlock()
	return nil
}

// FormatInventory renders items as "A=1;B=2", sorted by item.
func FormatInventory(items map[string]int) string {
	names := make([]string, 0, len(items))
	for name := range items {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+strconv.Itoa(items[name]))
	}
	return strings.Join(parts, ";")
}

// ParseInventory parses the output of FormatInventory.
func ParseInventory(blob string) (map[string]int, error) {
	items := make(map[string]int)
	if blob == "" {
		return items, nil
	}

	for _, part := range strings.Split(blob, ";") {
		name, count, ok := strings.Cut(part, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid inventory entry %q", part)
		}
		n, err := strconv.Atoi(count)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid count for %s: %q", name, count)
		}
		if _, dup := items[name]; dup {
			return nil, fmt.Errorf("duplicate inventory entry %q", name)
		}
		items[name] = n
	}
	return items, nil
}
