package assets

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/shaderc"
)

// Kind tells how an asset turns into shader code.
type Kind uint8

const (
	KindNone Kind = iota
	// GLSL text, compiled on load.
	KindShaderSource
	// Precompiled SPIR-V named <name>.<stage>.spv.
	KindSpirV
)

var stageExtensions = map[string]metadata.ShaderStage{
	".vert": metadata.ShaderStageVertex,
	".frag": metadata.ShaderStageFragment,
	".comp": metadata.ShaderStageCompute,
}

type AssetInfo struct {
	// Path is slash separated and relative to the asset root.
	Path       string
	Kind       Kind
	Stage      metadata.ShaderStage
	LastLoaded time.Time
}

// AssetManager indexes the shader assets under a root and loads them as
// metadata.ShaderCode. A manager built on a directory can also watch it and
// report changed assets.
type AssetManager struct {
	root     string
	fsys     fs.FS
	compiler shaderc.Compiler

	mutex  sync.RWMutex
	assets map[string]AssetInfo

	changes chan string
}

// NewAssetManager indexes dir. Watch keeps the index current.
func NewAssetManager(dir string, compiler shaderc.Compiler) (*AssetManager, error) {
	s, err := os.Stat(dir)
	if err != nil {
		return nil, core.WrapRecoverable(err, "asset directory")
	}
	if !s.IsDir() {
		return nil, core.Recoverablef("asset root %s is not a directory", dir)
	}
	am := newAssetManager(os.DirFS(dir), compiler)
	am.root = dir
	if err := am.index(); err != nil {
		return nil, err
	}
	return am, nil
}

// NewAssetManagerFS indexes a fixed file system, usually an embed.FS.
func NewAssetManagerFS(fsys fs.FS, compiler shaderc.Compiler) (*AssetManager, error) {
	am := newAssetManager(fsys, compiler)
	if err := am.index(); err != nil {
		return nil, err
	}
	return am, nil
}

func newAssetManager(fsys fs.FS, compiler shaderc.Compiler) *AssetManager {
	return &AssetManager{
		fsys:     fsys,
		compiler: compiler,
		assets:   make(map[string]AssetInfo),
		changes:  make(chan string, 16),
	}
}

func (am *AssetManager) index() error {
	err := fs.WalkDir(am.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			am.handleFileEvent(p)
		}
		return nil
	})
	return core.WrapRecoverable(err, "indexing assets")
}

// Assets lists the indexed assets ordered by path.
func (am *AssetManager) Assets() []AssetInfo {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	out := make([]AssetInfo, 0, len(am.assets))
	for _, a := range am.assets {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b AssetInfo) int {
		if a.Path < b.Path {
			return -1
		}
		if a.Path > b.Path {
			return 1
		}
		return 0
	})
	return out
}

// LoadShader returns the code of the named stage. Sources are compiled with
// defines; precompiled SPIR-V is returned as stored and ignores them.
func (am *AssetManager) LoadShader(ctx context.Context, name string, defines map[string]string) (metadata.ShaderCode, error) {
	am.mutex.RLock()
	asset, exists := am.assets[name]
	am.mutex.RUnlock()
	if !exists {
		return metadata.ShaderCode{}, core.Recoverablef("asset not found: %s", name)
	}

	data, err := fs.ReadFile(am.fsys, asset.Path)
	if err != nil {
		return metadata.ShaderCode{}, core.WrapRecoverable(err, "reading %s", name)
	}

	code := data
	switch asset.Kind {
	case KindShaderSource:
		code, err = am.compiler.Compile(ctx, data, defines, "main", shaderc.Target{Stage: asset.Stage})
		if err != nil {
			// Keeps the compiler's classification.
			return metadata.ShaderCode{}, errors.Wrapf(err, "compiling %s", name)
		}
	case KindSpirV:
		if len(defines) > 0 {
			core.LogDebug("%s is precompiled, defines ignored", name)
		}
	}

	am.mutex.Lock()
	asset.LastLoaded = time.Now()
	am.assets[name] = asset
	am.mutex.Unlock()

	return metadata.ShaderCode{Stage: asset.Stage, EntryPoint: "main", Code: code}, nil
}

// Changes receives the path of every asset created or rewritten while
// Watch runs. Changes arriving while the buffer is full are dropped.
func (am *AssetManager) Changes() <-chan string {
	return am.changes
}

// Watch follows the asset directory until ctx is done. Managers built on a
// plain fs.FS return at once.
func (am *AssetManager) Watch(ctx context.Context) error {
	if am.root == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return core.WrapRecoverable(err, "asset watcher")
	}
	defer watcher.Close()

	if err := am.watchRecursive(watcher, am.root); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case e, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			s, err := os.Stat(e.Name)
			if err == nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(watcher, e.Name); err != nil {
						core.LogWarn("watching %s: %v", e.Name, err)
					}
				}
				continue
			}
			rel, err := filepath.Rel(am.root, e.Name)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if am.handleFileEvent(rel) {
					am.notify(rel)
				}
			}
			// A deleted directory cannot be stat'ed; dropping the watch is
			// harmless when it was a file.
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				am.removeAsset(rel)
				_ = watcher.Remove(e.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			core.LogError("asset watcher: %v", err)
		}
	}
}

func (am *AssetManager) notify(p string) {
	select {
	case am.changes <- p:
	default:
		core.LogDebug("asset change %s dropped", p)
	}
}

// watchRecursive adds dir and its sub-directories to the watch list and
// indexes the files found on the way.
func (am *AssetManager) watchRecursive(watcher *fsnotify.Watcher, dir string) error {
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(p)
		}
		if rel, err := filepath.Rel(am.root, p); err == nil {
			am.handleFileEvent(filepath.ToSlash(rel))
		}
		return nil
	})
	return core.WrapRecoverable(err, "watching %s", dir)
}

// handleFileEvent records a created or modified file and reports whether it
// is a shader asset.
func (am *AssetManager) handleFileEvent(p string) bool {
	kind, stage := determineAssetKind(p)
	if kind == KindNone {
		return false
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.assets[p] = AssetInfo{
		Path:  p,
		Kind:  kind,
		Stage: stage,
	}
	return true
}

func (am *AssetManager) removeAsset(p string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	delete(am.assets, p)
}

func determineAssetKind(p string) (Kind, metadata.ShaderStage) {
	ext := path.Ext(p)
	kind := KindShaderSource
	if ext == ".spv" {
		kind = KindSpirV
		ext = path.Ext(p[:len(p)-len(ext)])
	}
	stage, ok := stageExtensions[ext]
	if !ok {
		return KindNone, 0
	}
	return kind, stage
}
