// Package finalize holds the process-wide ledger of panics recovered
// from user-defined `fini` bodies. spec.md §7 and §9 leave open whether
// such panics should be surfaced at program exit beyond being "logged
// and swallowed"; SPEC_FULL.md §C.3 resolves that question in favor of
// collecting them so an embedding host can report them, rather than
// discarding them outright.
package finalize

import (
	"fmt"
	"sync"
	"time"
)

// Entry records one recovered panic from a `fini` body.
type Entry struct {
	BoxID     uint64
	TypeName  string
	Recovered any
	Stack     []byte
	At        time.Time
}

func (e Entry) String() string {
	return fmt.Sprintf("fini panic in %s#%d: %v", e.TypeName, e.BoxID, e.Recovered)
}

// PanicLog accumulates Entries. Its zero value is ready to use; a
// single process-wide instance (Default) is shared by the interpreter
// and the VM so both execution paths contribute to the same ledger
// (§8 invariant 7's golden-equivalence expectation extends to
// diagnostics, not just primary output).
type PanicLog struct {
	mu      sync.Mutex
	entries []Entry
}

// Default is the process-wide panic ledger used when no PanicLog is
// threaded explicitly through a box.Forest.
var Default = &PanicLog{}

// Record appends an entry. Safe for concurrent use so that a finalizer
// cascade running on one strand does not race with another.
func (l *PanicLog) Record(e Entry) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

// Entries returns a snapshot of all recorded panics, oldest first.
func (l *PanicLog) Entries() []Entry {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len reports how many panics have been recorded.
func (l *PanicLog) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
