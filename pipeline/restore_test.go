package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cairnbackup/cairn/archive"
	"github.com/cairnbackup/cairn/cairnlog"
	"github.com/cairnbackup/cairn/errs"
	"github.com/cairnbackup/cairn/locks"
	"github.com/cairnbackup/cairn/record"
	"github.com/cairnbackup/cairn/tree"
)

func TestRestoreRoundTripsFileContent(t *testing.T) {
	srcRoot := t.TempDir()
	content := bytes.Repeat([]byte("cairn round trip content\n"), 100)
	writeFile(t, srcRoot, "data.bin", content)

	st := newFacade(t)
	blockRecs := record.NewBlockRecords()
	tr := archive.NewTree(archive.Metadata{Mode: 0o755})
	lockRegistry := locks.NewRegistry()
	log := cairnlog.New()

	opts := UploadOptions{TargetBlockSize: 64, CompressionLevel: 3, TaskCount: 2}
	if _, err := Upload(context.Background(), st, blockRecs, tr, lockRegistry, []string{srcRoot}, opts, log); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	destDir := t.TempDir()
	stats, err := Restore(context.Background(), st, tr, "", destDir, RestoreOptions{TaskCount: 2}, tree.NewLocalBlocks(), log)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if stats.FilesRestored != 1 {
		t.Fatalf("FilesRestored = %d, want 1", stats.FilesRestored)
	}

	base := filepath.Base(srcRoot)
	got, err := os.ReadFile(filepath.Join(destDir, base, "data.bin"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("restored content mismatch: got %d bytes, want %d bytes", len(got), len(content))
	}
}

func TestRestoreRecreatesDirectoriesAndSymlinks(t *testing.T) {
	srcRoot := t.TempDir()
	if err := os.Mkdir(filepath.Join(srcRoot, "sub"), 0o750); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	writeFile(t, filepath.Join(srcRoot, "sub"), "file.txt", []byte("hello"))
	if err := os.Symlink("file.txt", filepath.Join(srcRoot, "sub", "link.txt")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	st := newFacade(t)
	blockRecs := record.NewBlockRecords()
	tr := archive.NewTree(archive.Metadata{Mode: 0o755})
	lockRegistry := locks.NewRegistry()
	log := cairnlog.New()

	opts := UploadOptions{TargetBlockSize: 1 << 20, CompressionLevel: 3, TaskCount: 1}
	if _, err := Upload(context.Background(), st, blockRecs, tr, lockRegistry, []string{srcRoot}, opts, log); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	destDir := t.TempDir()
	if _, err := Restore(context.Background(), st, tr, "", destDir, RestoreOptions{TaskCount: 1}, tree.NewLocalBlocks(), log); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	base := filepath.Base(srcRoot)
	subDir := filepath.Join(destDir, base, "sub")
	info, err := os.Stat(subDir)
	if err != nil {
		t.Fatalf("Stat sub: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("sub is not a directory")
	}
	if info.Mode().Perm() != 0o750 {
		t.Fatalf("sub mode = %o, want %o", info.Mode().Perm(), 0o750)
	}

	target, err := os.Readlink(filepath.Join(subDir, "link.txt"))
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != "file.txt" {
		t.Fatalf("symlink target = %q, want %q", target, "file.txt")
	}
}

func TestRestoreRefusesToOverwriteExistingPath(t *testing.T) {
	srcRoot := t.TempDir()
	writeFile(t, srcRoot, "a.txt", []byte("content"))

	st := newFacade(t)
	blockRecs := record.NewBlockRecords()
	tr := archive.NewTree(archive.Metadata{Mode: 0o755})
	lockRegistry := locks.NewRegistry()
	log := cairnlog.New()

	opts := UploadOptions{TargetBlockSize: 1 << 20, CompressionLevel: 3, TaskCount: 1}
	if _, err := Upload(context.Background(), st, blockRecs, tr, lockRegistry, []string{srcRoot}, opts, log); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	destDir := t.TempDir()
	base := filepath.Base(srcRoot)
	if err := os.Mkdir(filepath.Join(destDir, base), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	_, err := Restore(context.Background(), st, tr, "", destDir, RestoreOptions{TaskCount: 1}, tree.NewLocalBlocks(), log)
	if err == nil {
		t.Fatalf("Restore: want error, got nil")
	}
	if !wrapsError(err, errs.ErrFileAlreadyExists) {
		t.Fatalf("Restore error = %v, want it to wrap ErrFileAlreadyExists", err)
	}
}

func wrapsError(err, target error) bool {
	for err != nil {
		if err == target {
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

func TestRestoreSubPathRestoresOnlyThatSubtree(t *testing.T) {
	srcRoot := t.TempDir()
	if err := os.Mkdir(filepath.Join(srcRoot, "keep"), 0o755); err != nil {
		t.Fatalf("Mkdir keep: %v", err)
	}
	if err := os.Mkdir(filepath.Join(srcRoot, "skip"), 0o755); err != nil {
		t.Fatalf("Mkdir skip: %v", err)
	}
	writeFile(t, filepath.Join(srcRoot, "keep"), "wanted.txt", []byte("wanted"))
	writeFile(t, filepath.Join(srcRoot, "skip"), "unwanted.txt", []byte("unwanted"))

	st := newFacade(t)
	blockRecs := record.NewBlockRecords()
	tr := archive.NewTree(archive.Metadata{Mode: 0o755})
	lockRegistry := locks.NewRegistry()
	log := cairnlog.New()

	opts := UploadOptions{TargetBlockSize: 1 << 20, CompressionLevel: 3, TaskCount: 1}
	if _, err := Upload(context.Background(), st, blockRecs, tr, lockRegistry, []string{srcRoot}, opts, log); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	base := filepath.Base(srcRoot)
	destDir := t.TempDir()
	// WalkDFSFrom starts at subPath itself, so Restore never creates the
	// ancestor directories above it: the caller is responsible for
	// pre-creating the path down to subPath's parent.
	if err := os.MkdirAll(filepath.Join(destDir, base), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	stats, err := Restore(context.Background(), st, tr, base+"/keep", destDir, RestoreOptions{TaskCount: 1}, tree.NewLocalBlocks(), log)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if stats.FilesRestored != 1 {
		t.Fatalf("FilesRestored = %d, want 1", stats.FilesRestored)
	}

	if _, err := os.Stat(filepath.Join(destDir, base, "keep", "wanted.txt")); err != nil {
		t.Fatalf("Stat wanted.txt: %v", err)
	}
	if _, err := os.Stat(filepath.Join(destDir, base, "skip")); !os.IsNotExist(err) {
		t.Fatalf("skip subtree should not have been restored, Stat err = %v", err)
	}
}
