// Package emitter holds the planning and atomic file writing shared by the
// output emitters.
package emitter

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Options controls where and how an emitter writes.
type Options struct {
	OutDir  string // required; target directory
	Force   bool   // overwrite a directory holding unrelated files
	DryRun  bool   // don't write, only plan
	Verbose bool

	// Siblings names top-level entries another emitter writes into the same
	// directory. They are not treated as unrelated files.
	Siblings []string
}

// PlannedFile describes a file an emitter intends to write.
type PlannedFile struct {
	RelPath string
	Size    int
	Mode    os.FileMode
}

// Result returns the planned files.
type Result struct {
	Planned []PlannedFile
}

// Plan lists files in deterministic order.
func Plan(files map[string][]byte) []PlannedFile {
	rels := make([]string, 0, len(files))
	for p := range files {
		rels = append(rels, p)
	}
	sort.Strings(rels)
	planned := make([]PlannedFile, 0, len(rels))
	for _, rel := range rels {
		planned = append(planned, PlannedFile{RelPath: filepath.ToSlash(rel), Size: len(files[rel]), Mode: 0o644})
	}
	return planned
}

// Emit plans files and, unless DryRun is set, writes them under OutDir.
func Emit(name string, files map[string][]byte, opts Options) (*Result, error) {
	if opts.OutDir == "" {
		return nil, fmt.Errorf("%s: OutDir is required", name)
	}
	res := &Result{Planned: Plan(files)}
	if opts.DryRun {
		return res, nil
	}
	if err := WriteFiles(name, opts.OutDir, files, opts.Force, opts.Siblings...); err != nil {
		return nil, err
	}
	return res, nil
}

// WriteFiles writes files atomically (temp file + rename). Without force it
// refuses an existing directory that holds entries other than the ones being
// written or listed in siblings, so regenerating into the same directory works.
func WriteFiles(name, outDir string, files map[string][]byte, force bool, siblings ...string) error {
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return fmt.Errorf("resolve out dir: %w", err)
	}
	if st, err := os.Stat(abs); err == nil && st.IsDir() && !force {
		entries, rerr := os.ReadDir(abs)
		if rerr == nil {
			ours := make(map[string]struct{}, len(files)+len(siblings))
			for rel := range files {
				ours[topLevel(rel)] = struct{}{}
			}
			for _, rel := range siblings {
				ours[topLevel(rel)] = struct{}{}
			}
			for _, e := range entries {
				if _, ok := ours[e.Name()]; !ok {
					return fmt.Errorf("%s: output directory %q is not empty (use --force to overwrite)", name, abs)
				}
			}
		}
	}
	stamp := time.Now().Format("20060102150405")
	for _, rel := range sortedKeys(files) {
		p := filepath.Join(abs, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
		tmp := p + ".tmp-" + stamp
		if err := os.WriteFile(tmp, files[rel], 0o644); err != nil {
			return fmt.Errorf("write temp %s: %w", rel, err)
		}
		if err := os.Rename(tmp, p); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("rename %s: %w", rel, err)
		}
	}
	return nil
}

func topLevel(rel string) string {
	rel = filepath.ToSlash(filepath.Clean(rel))
	for i := 0; i < len(rel); i++ {
		if rel[i] == '/' {
			return rel[:i]
		}
	}
	return rel
}

func sortedKeys(files map[string][]byte) []string {
	out := make([]string, 0, len(files))
	for k := range files {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
