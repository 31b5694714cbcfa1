package approval

import (
	"sort"
	"sync"
)

// Guard serialises work on one (project, user) pair within a process.
// Submission holds it while it loads entries and creates the record; entry
// mutations hold it while they check the lock and write. The zero value is
// not usable; call NewGuard.
type Guard struct {
	mu    sync.Mutex
	slots map[string]*guardSlot
}

type guardSlot struct {
	mu   sync.Mutex
	refs int
}

func NewGuard() *Guard {
	return &Guard{slots: make(map[string]*guardSlot)}
}

// Lock acquires every listed (project, user) pair and returns the release
// function. Pairs are taken in sorted order so overlapping callers cannot
// deadlock; duplicates are taken once.
func (g *Guard) Lock(pairs ...[2]string) (unlock func()) {
	keys := make([]string, 0, len(pairs))
	seen := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		k := p[0] + KeyDelimiter + p[1]
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	held := make([]*guardSlot, 0, len(keys))
	for _, k := range keys {
		g.mu.Lock()
		slot, ok := g.slots[k]
		if !ok {
			slot = &guardSlot{}
			g.slots[k] = slot
		}
		slot.refs++
		g.mu.Unlock()

		slot.mu.Lock()
		held = append(held, slot)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			g.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(g.slots, keys[i])
			}
			g.mu.Unlock()
		}
	}
}

// Pair names a (project, user) pair for Lock.
func Pair(projectID, userID string) [2]string {
	return [2]string{projectID, userID}
}

func (g *Guard) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.slots)
}
