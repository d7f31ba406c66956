// Package cvr describes a conversion job for the external ReadCVRStats
// executable and the positional argument vector it expects.
package cvr

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ExecutableName is the converter's file name inside the bin directory.
const ExecutableName = "ReadCVRStats"

// Limits passed to the converter.
const (
	// Unlimited processes every record in the folder.
	Unlimited = -1
	// DefaultTestRunLimit is the record limit for a test run.
	DefaultTestRunLimit = 100
)

// Sentinel errors for the cvr package.
var (
	ErrUnknownFileType = errors.New("unknown file type")
	ErrNoFolder        = errors.New("no folder selected")
	ErrNotDirectory    = errors.New("not a directory")
	ErrNoExecutable    = errors.New("converter executable not found")
	ErrBadLimit        = errors.New("limit must be -1 or positive")
	ErrBadArgv         = errors.New("not a converter argument vector")
)

// FileType selects how the converter reads the folder.
type FileType string

// Supported file types.
const (
	SingleCVR FileType = "singlecvr"
	CVRReport FileType = "cvrreport"
)

// FileTypes lists the supported file types in display order.
var FileTypes = []FileType{SingleCVR, CVRReport}

// ParseFileType accepts a file type token, ignoring case and surrounding space.
func ParseFileType(s string) (FileType, error) {
	switch ft := FileType(strings.ToLower(strings.TrimSpace(s))); ft {
	case SingleCVR, CVRReport:
		return ft, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFileType, s)
	}
}

// Next returns the other file type.
func (f FileType) Next() FileType {
	if f == SingleCVR {
		return CVRReport
	}
	return SingleCVR
}

// Job is one converter invocation.
type Job struct {
	Executable string
	Folder     string
	FileType   FileType
	Limit      int
}

// FullRun builds a job that processes the whole folder.
func FullRun(exe, folder string, ft FileType) Job {
	return Job{Executable: exe, Folder: folder, FileType: ft, Limit: Unlimited}
}

// TestRun builds a job limited to limit records.
func TestRun(exe, folder string, ft FileType, limit int) Job {
	if limit <= 0 {
		limit = DefaultTestRunLimit
	}
	return Job{Executable: exe, Folder: folder, FileType: ft, Limit: limit}
}

// IsTestRun reports whether the job is record limited.
func (j Job) IsTestRun() bool {
	return j.Limit != Unlimited
}

// Argv returns [exe, folder, "", fileType, limit, limit]. The empty third
// slot is reserved by the converter.
func (j Job) Argv() []string {
	limit := strconv.Itoa(j.Limit)
	return []string{j.Executable, j.Folder, "", string(j.FileType), limit, limit}
}

// Validate checks the job before it is started.
func (j Job) Validate() error {
	if j.Executable == "" {
		return ErrNoExecutable
	}
	if j.Folder == "" {
		return ErrNoFolder
	}
	info, err := os.Stat(j.Folder)
	if err != nil {
		return fmt.Errorf("folder %s: %w", j.Folder, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("folder %s: %w", j.Folder, ErrNotDirectory)
	}
	if _, err := ParseFileType(string(j.FileType)); err != nil {
		return err
	}
	if j.Limit != Unlimited && j.Limit <= 0 {
		return fmt.Errorf("%w, got %d", ErrBadLimit, j.Limit)
	}
	return nil
}

// ParseArgv recovers the job from an argument vector built by Argv.
func ParseArgv(argv []string) (Job, error) {
	if len(argv) != 6 || argv[2] != "" {
		return Job{}, fmt.Errorf("%w: %d args", ErrBadArgv, len(argv))
	}
	ft, err := ParseFileType(argv[3])
	if err != nil {
		return Job{}, fmt.Errorf("%w: %w", ErrBadArgv, err)
	}
	limit, err := strconv.Atoi(argv[4])
	if err != nil {
		return Job{}, fmt.Errorf("%w: limit %q", ErrBadArgv, argv[4])
	}
	return Job{Executable: argv[0], Folder: argv[1], FileType: ft, Limit: limit}, nil
}

// ResolveExecutable returns the converter path. A configured path wins;
// otherwise bin/ReadCVRStats next to the running program is used.
func ResolveExecutable(configured string) (string, error) {
	candidate := configured
	if candidate == "" {
		self, err := os.Executable()
		if err != nil {
			return "", fmt.Errorf("locate program: %w", err)
		}
		candidate = filepath.Join(filepath.Dir(self), "bin", ExecutableName)
	}
	path, err := exec.LookPath(candidate)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrNoExecutable, candidate, err)
	}
	return path, nil
}
