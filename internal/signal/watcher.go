// Package signal handles out-of-band run control through the .troupe
// directory: stop and pause files written by other processes, plus the
// shared notes file agents see in every task prompt.
package signal

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// StopFile ends the run at the next task boundary.
	StopFile = "stop"
	// PauseFile pauses the run at the next task boundary.
	PauseFile = "pause"
	// notesFile is the shared workspace notes document.
	notesFile = "notes.md"
)

// initialNotes seeds an empty notes file.
const initialNotes = `# Workspace Notes

Shared context for the agent team. The contents of this file are appended to
every task prompt; keep it short and factual.
`

// Watcher tracks stop and pause signal files for one workspace. Signals are
// picked up by an fsnotify watcher when available, with a direct stat
// fallback on every query so a missed event never wedges a run.
type Watcher struct {
	controlDir string

	mu          sync.RWMutex
	stopSignal  bool
	pauseSignal bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher creates the control directory under root and starts watching
// its signals subdirectory. A failed fsnotify setup is not an error; the
// watcher degrades to stat polling.
func NewWatcher(root string) (*Watcher, error) {
	controlDir := filepath.Join(root, ".troupe")
	if err := os.MkdirAll(filepath.Join(controlDir, "signals"), 0755); err != nil {
		return nil, err
	}

	notesPath := filepath.Join(controlDir, notesFile)
	if _, err := os.Stat(notesPath); os.IsNotExist(err) {
		if err := os.WriteFile(notesPath, []byte(initialNotes), 0644); err != nil {
			return nil, err
		}
	}

	w := &Watcher{
		controlDir: controlDir,
		done:       make(chan struct{}),
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return w, nil
	}
	if err := fw.Add(filepath.Join(controlDir, "signals")); err != nil {
		fw.Close()
		return w, nil
	}
	w.watcher = fw
	go w.watchSignals()

	return w, nil
}

// watchSignals flips the in-memory flags when signal files appear.
func (w *Watcher) watchSignals() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.mu.Lock()
			// Re-stat under the lock: an event that raced with a clear
			// refers to a file that is already gone and must not flip the
			// flag back on.
			if _, err := os.Stat(event.Name); err == nil {
				switch filepath.Base(event.Name) {
				case StopFile:
					w.stopSignal = true
				case PauseFile:
					w.pauseSignal = true
				}
			}
			w.mu.Unlock()
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Keep watching; the stat fallback covers missed events.
		}
	}
}

// signalPath returns the on-disk path of a signal file.
func (w *Watcher) signalPath(name string) string {
	return filepath.Join(w.controlDir, "signals", name)
}

// checkFile stats the signal file directly, covering watcher gaps.
func (w *Watcher) checkFile(name string, flag *bool) bool {
	if _, err := os.Stat(w.signalPath(name)); err == nil {
		w.mu.Lock()
		*flag = true
		w.mu.Unlock()
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return *flag
}

// ShouldStop reports whether a stop has been requested.
func (w *Watcher) ShouldStop() bool {
	return w.checkFile(StopFile, &w.stopSignal)
}

// ShouldPause reports whether a pause has been requested.
func (w *Watcher) ShouldPause() bool {
	return w.checkFile(PauseFile, &w.pauseSignal)
}

// SendStop writes the stop signal file.
func (w *Watcher) SendStop() error {
	return os.WriteFile(w.signalPath(StopFile), []byte(time.Now().Format(time.RFC3339)), 0644)
}

// SendPause writes the pause signal file.
func (w *Watcher) SendPause() error {
	return os.WriteFile(w.signalPath(PauseFile), []byte(time.Now().Format(time.RFC3339)), 0644)
}

// ClearSignals removes the signal files and resets the in-memory flags.
// Called at run start so a stale file from an earlier session cannot stop a
// fresh run.
func (w *Watcher) ClearSignals() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopSignal = false
	w.pauseSignal = false
	os.Remove(w.signalPath(StopFile))
	os.Remove(w.signalPath(PauseFile))
}

// ClearPause acknowledges a pause once the run has yielded. Without this the
// sticky flag would pause the next continuation immediately.
func (w *Watcher) ClearPause() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pauseSignal = false
	os.Remove(w.signalPath(PauseFile))
}

// ReadNotes returns the shared workspace notes, or empty when unreadable.
// The seed template reads as empty.
func (w *Watcher) ReadNotes() string {
	content, err := os.ReadFile(filepath.Join(w.controlDir, notesFile))
	if err != nil {
		return ""
	}
	text := string(content)
	if text == initialNotes {
		return ""
	}
	return text
}

// AppendNote adds a timestamped line to the workspace notes.
func (w *Watcher) AppendNote(note string) error {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(w.controlDir, notesFile), os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	entry := "\n- " + time.Now().Format("2006-01-02 15:04") + ": " + note + "\n"
	_, err = f.WriteString(entry)
	return err
}

// Dir returns the control directory path.
func (w *Watcher) Dir() string {
	return w.controlDir
}

// Close stops the background watcher. Signal files are left in place.
func (w *Watcher) Close() {
	close(w.done)
	if w.watcher != nil {
		w.watcher.Close()
	}
}
