// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


// Package watch invalidates persisted motion when the frames of a sequence change
package watch

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mlnoga/xslit/internal/frame"
)

const DefaultDebounce = 500 * time.Millisecond

// Watches a frame directory, and deletes the motion file of the sequence
// once image files stop changing for the debounce interval
type Watcher struct {
	watcher    *fsnotify.Watcher
	dir        string
	motionFile string
	debounce   time.Duration
	log        io.Writer

	// Receives the motion file name after every invalidation. Sends never block
	Invalidated chan string

	done chan struct{}
	wg   sync.WaitGroup
}

func New(dir, motionFile string, debounce time.Duration, log io.Writer) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = io.Discard
	}
	return &Watcher{
		watcher:     watcher,
		dir:         dir,
		motionFile:  motionFile,
		debounce:    debounce,
		log:         log,
		Invalidated: make(chan string, 16),
		done:        make(chan struct{}),
	}, nil
}

// Begins watching the directory in the background
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	fmt.Fprintf(w.log, "Watching %s, invalidating %s on changes\n", w.dir, w.motionFile)
	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stops watching and waits for the background goroutine to exit
func (w *Watcher) Stop() error {
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	var pending <-chan time.Time
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if Relevant(event) {
				pending = time.After(w.debounce) // restart the quiet period
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			fmt.Fprintf(w.log, "Watcher error: %s\n", err.Error())

		case <-pending:
			pending = nil
			if err := w.invalidate(); err != nil {
				fmt.Fprintf(w.log, "Error invalidating %s: %s\n", w.motionFile, err.Error())
			}

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) invalidate() error {
	err := os.Remove(w.motionFile)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if err == nil {
		fmt.Fprintf(w.log, "Frames in %s changed, removed %s\n", w.dir, w.motionFile)
	}
	select {
	case w.Invalidated <- w.motionFile:
	default:
	}
	return nil
}

// Returns true if the event changes the frame set of a sequence
func Relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	return frame.IsImageFile(event.Name)
}
