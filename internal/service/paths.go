package service

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"docrag/internal/extract"
)

// expandPaths resolves glob patterns and directories into a sorted,
// de-duplicated list of files. Files named explicitly are kept even when
// their format is unsupported or they do not exist, so the failure shows
// up in the report; directory and glob matches are limited to supported
// formats and a glob without matches contributes nothing.
func expandPaths(paths []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, p := range paths {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, err
		}
		explicit := !strings.ContainsAny(p, "*?[")
		if matches == nil && explicit {
			matches = []string{p}
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err == nil && info.IsDir() {
				entries, err := os.ReadDir(m)
				if err != nil {
					return nil, err
				}
				for _, e := range entries {
					if !e.IsDir() && extract.Supported(e.Name()) {
						add(filepath.Join(m, e.Name()))
					}
				}
				continue
			}
			if explicit || extract.Supported(m) {
				add(m)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}
