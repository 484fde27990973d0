package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrWatchUnsupported is returned by Watcher.Add for roots on filesystems
// that never deliver inotify events. Types of such projects only change on
// an explicit refresh.
var ErrWatchUnsupported = errors.New("filesystem does not support change notification")

const procMounts = "/proc/mounts"

// watchSupport classifies the filesystem holding dir. It returns
// ErrWatchUnsupported for 9p and sshfs, a warning for network filesystems
// that deliver events unreliably, and nothing otherwise.
func watchSupport(dir string) (warning string, err error) {
	if runtime.GOOS != "linux" {
		return "", nil
	}
	mounts, readErr := os.ReadFile(procMounts)
	if readErr != nil {
		return "", nil
	}
	abs, absErr := filepath.Abs(dir)
	if absErr != nil {
		return "", nil
	}
	return classifyMount(mountType(string(mounts), abs))
}

// mountType returns the filesystem type of the longest mount point
// containing path, parsed from /proc/mounts content.
func mountType(mounts, path string) string {
	var bestPoint, bestType string
	for _, line := range strings.Split(mounts, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		point, typ := fields[1], fields[2]
		if !underMount(path, point) || len(point) <= len(bestPoint) {
			continue
		}
		bestPoint, bestType = point, typ
	}
	return bestType
}

func underMount(path, point string) bool {
	if point == "/" || path == point {
		return true
	}
	return strings.HasPrefix(path, point+"/")
}

func classifyMount(fsType string) (string, error) {
	switch {
	case fsType == "9p":
		return "", fmt.Errorf("9p mount: %w", ErrWatchUnsupported)
	case strings.HasPrefix(fsType, "fuse.sshfs"):
		return "", fmt.Errorf("sshfs mount: %w", ErrWatchUnsupported)
	case fsType == "nfs" || fsType == "nfs4":
		return "NFS mount: marker changes may be missed", nil
	case fsType == "cifs" || fsType == "smbfs":
		return "CIFS/SMB mount: marker changes may be missed", nil
	}
	return "", nil
}
