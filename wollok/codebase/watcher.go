package codebase

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher re-parses Wollok files as they change on disk.
type FileWatcher struct {
	codebase *Codebase
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}

	// OnChange, when set, runs after a file has been re-parsed or
	// removed.
	OnChange func(path string)
}

func NewFileWatcher(c *Codebase) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &FileWatcher{
		codebase: c,
		watcher:  watcher,
		stopCh:   make(chan struct{}),
	}, nil
}

func (w *FileWatcher) Start() error {
	if err := w.addDirs(w.codebase.RootDir()); err != nil {
		return err
	}
	go w.run()
	return nil
}

func (w *FileWatcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
}

func (w *FileWatcher) addDirs(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if len(info.Name()) > 1 && info.Name()[0] == '.' {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *FileWatcher) run() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("watch: %s", err.Error())
		}
	}
}

func (w *FileWatcher) handle(event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addDirs(event.Name)
			return
		}
		w.reparse(event.Name)
	case event.Has(fsnotify.Write):
		w.reparse(event.Name)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if IsWollokFile(event.Name) {
			w.codebase.RemoveFile(event.Name)
			w.notify(event.Name)
		}
	}
}

func (w *FileWatcher) reparse(path string) {
	if !IsWollokFile(path) {
		return
	}
	if err := w.codebase.ScanFile(path); err != nil {
		log.Errorf("scan %s: %s", path, err.Error())
		return
	}
	w.notify(path)
}

func (w *FileWatcher) notify(path string) {
	if w.OnChange != nil {
		w.OnChange(path)
	}
}
