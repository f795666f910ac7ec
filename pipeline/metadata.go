package pipeline

import (
	"fmt"
	"io/fs"
	"syscall"
	"time"

	"github.com/cairnbackup/cairn/archive"
)

// metadataFromInfo extracts POSIX metadata via the syscall.Stat_t
// underlying info.Sys(), per spec's explicit non-goal of cross-platform
// non-POSIX metadata support.
func metadataFromInfo(info fs.FileInfo) (archive.Metadata, error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return archive.Metadata{}, fmt.Errorf("pipeline: %s: not a POSIX stat_t", info.Name())
	}
	atime := time.Unix(stat.Atim.Sec, stat.Atim.Nsec).UTC()
	mtime := time.Unix(stat.Mtim.Sec, stat.Mtim.Nsec).UTC()
	ctime := time.Unix(stat.Ctim.Sec, stat.Ctim.Nsec).UTC()
	return archive.Metadata{
		Inode: stat.Ino,
		Mode:  uint32(stat.Mode),
		UID:   stat.Uid,
		GID:   stat.Gid,
		Atime: &atime,
		Mtime: &mtime,
		Ctime: &ctime,
	}, nil
}

// isSpecialFile reports whether the mode bits name a device, socket, or
// FIFO — entries the walker skips with a warning rather than archiving.
func isSpecialFile(mode fs.FileMode) bool {
	return mode&(fs.ModeDevice|fs.ModeCharDevice|fs.ModeSocket|fs.ModeNamedPipe) != 0
}
