package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// SysHealth represents real-time process and storage metrics.
type SysHealth struct {
	AllocMB      uint64
	SysMB        uint64
	NumGC        uint32
	Goroutines   int
	DatabaseSize string
	PostsSize    string
	PostCount    int
}

// GetSysHealth collects health data for the process, the database file and the
// post workspace directory.
func GetSysHealth(dbPath, postsPath string) SysHealth {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	postsBytes, posts := dirUsage(postsPath)
	var dbBytes int64
	if info, err := os.Stat(dbPath); err == nil {
		dbBytes = info.Size()
	}

	return SysHealth{
		AllocMB:      m.Alloc / 1024 / 1024,
		SysMB:        m.Sys / 1024 / 1024,
		NumGC:        m.NumGC,
		Goroutines:   runtime.NumGoroutine(),
		DatabaseSize: humanBytes(dbBytes),
		PostsSize:    humanBytes(postsBytes),
		PostCount:    posts,
	}
}

func dirUsage(path string) (size int64, files int) {
	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
			if filepath.Ext(info.Name()) == ".json" {
				files++
			}
		}
		return nil
	})
	return size, files
}

func humanBytes(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
