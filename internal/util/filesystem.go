package util

import "os"

func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// RemoveQuiet deletes a file, ignoring missing paths. Scratch cleanup
// runs on every exit path, so the file may legitimately be gone already.
func RemoveQuiet(path string) {
	if path == "" {
		return
	}
	os.Remove(path)
}
