package lode

import (
	"strings"

	"github.com/justapithecus/lode/lode"
)

// partitionFilter selects Hive partitions by exact key=value segments.
// Keys with an empty value are ignored.
type partitionFilter map[string]string

// matchesPath reports whether every constrained key appears in path as
// its own segment, so slot=1 never matches slot=10.
func (f partitionFilter) matchesPath(path string) bool {
	segments := strings.Split(path, "/")
	for key, value := range f {
		if value == "" {
			continue
		}
		want := key + "=" + value
		found := false
		for _, s := range segments {
			if s == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// matches reports whether any file of snap falls inside the filter.
func (f partitionFilter) matches(snap *lode.DatasetSnapshot) bool {
	for _, file := range snap.Manifest.Files {
		if f.matchesPath(file.Path) {
			return true
		}
	}
	return false
}
