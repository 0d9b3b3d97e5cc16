package remote

import "path"

// matchName applies the include and exclude globs to a bare file name.
// A malformed pattern matches nothing.
func matchName(name, pattern, exclude string) bool {
	if pattern == "" {
		pattern = "*"
	}
	ok, err := path.Match(pattern, name)
	if err != nil || !ok {
		return false
	}
	if exclude != "" {
		if skip, err := path.Match(exclude, name); err == nil && skip {
			return false
		}
	}
	return true
}

// capList truncates files to limit when limit is positive.
func capList[T any](files []T, limit int) []T {
	if limit > 0 && len(files) > limit {
		return files[:limit]
	}
	return files
}
