package codebase

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/dhamidi/wok/wollok/parser"
)

var log = commonlog.GetLogger("wok.codebase")

// Codebase keeps the parsed view of every Wollok file under a root
// directory. Files are re-parsed whole on every update; the parser is
// cheap enough that no incremental bookkeeping is needed.
type Codebase struct {
	mu      sync.RWMutex
	rootDir string
	files   map[string]*FileInfo
}

type FileInfo struct {
	Path     string
	Content  []byte
	AST      *parser.Package
	Problems []*parser.Problem
}

func New(rootDir string) *Codebase {
	return &Codebase{
		rootDir: rootDir,
		files:   make(map[string]*FileInfo),
	}
}

func (c *Codebase) RootDir() string {
	return c.rootDir
}

func IsWollokFile(path string) bool {
	switch filepath.Ext(path) {
	case ".wlk", ".wtest", ".wpgm":
		return true
	}
	return false
}

func (c *Codebase) ScanAll() error {
	return filepath.Walk(c.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if len(info.Name()) > 1 && info.Name()[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}
		if IsWollokFile(path) {
			c.ScanFile(path)
		}
		return nil
	})
}

func (c *Codebase) ScanFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	c.UpdateFile(path, content)
	return nil
}

func (c *Codebase) UpdateFile(path string, content []byte) {
	ast := parser.ParseFile(path, content)
	problems := parser.CollectProblems(ast)

	c.mu.Lock()
	c.files[path] = &FileInfo{
		Path:     path,
		Content:  content,
		AST:      ast,
		Problems: problems,
	}
	c.mu.Unlock()

	log.Debugf("parsed %s: %d problems", path, len(problems))
}

func (c *Codebase) RemoveFile(path string) {
	c.mu.Lock()
	delete(c.files, path)
	c.mu.Unlock()
}

func (c *Codebase) GetFile(path string) *FileInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.files[path]
}

// Files returns the known files sorted by path.
func (c *Codebase) Files() []*FileInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*FileInfo, 0, len(c.files))
	for _, f := range c.files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (c *Codebase) ProblemCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := 0
	for _, f := range c.files {
		total += len(f.Problems)
	}
	return total
}
