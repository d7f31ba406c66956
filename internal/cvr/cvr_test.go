package cvr

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseFileType(t *testing.T) {
	ft, err := ParseFileType(" SingleCVR ")
	require.NoError(t, err)
	require.Equal(t, SingleCVR, ft)

	ft, err = ParseFileType("cvrreport")
	require.NoError(t, err)
	require.Equal(t, CVRReport, ft)

	_, err = ParseFileType("ballots")
	require.ErrorIs(t, err, ErrUnknownFileType)
}

func TestFileType_Next(t *testing.T) {
	require.Equal(t, CVRReport, SingleCVR.Next())
	require.Equal(t, SingleCVR, CVRReport.Next())
}

func TestJob_Argv(t *testing.T) {
	tests := []struct {
		name string
		job  Job
		want []string
	}{
		{
			name: "full run",
			job:  FullRun("/opt/bin/ReadCVRStats", "/data/cvrs", SingleCVR),
			want: []string{"/opt/bin/ReadCVRStats", "/data/cvrs", "", "singlecvr", "-1", "-1"},
		},
		{
			name: "test run",
			job:  TestRun("/opt/bin/ReadCVRStats", "/data/cvrs", CVRReport, 100),
			want: []string{"/opt/bin/ReadCVRStats", "/data/cvrs", "", "cvrreport", "100", "100"},
		},
		{
			name: "test run default limit",
			job:  TestRun("exe", "dir", SingleCVR, 0),
			want: []string{"exe", "dir", "", "singlecvr", "100", "100"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.job.Argv())
		})
	}
}

func TestParseArgv_RoundTrip(t *testing.T) {
	job := TestRun("/opt/bin/ReadCVRStats", "/data/cvrs", CVRReport, 25)
	got, err := ParseArgv(job.Argv())
	require.NoError(t, err)
	require.Equal(t, job, got)
	require.True(t, got.IsTestRun())

	_, err = ParseArgv([]string{"exe", "folder"})
	require.ErrorIs(t, err, ErrBadArgv)

	_, err = ParseArgv([]string{"exe", "folder", "", "singlecvr", "many", "many"})
	require.ErrorIs(t, err, ErrBadArgv)
}

func TestJob_Validate(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "CvrExport_1.json")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0600))

	require.NoError(t, FullRun("exe", dir, SingleCVR).Validate())
	require.ErrorIs(t, FullRun("", dir, SingleCVR).Validate(), ErrNoExecutable)
	require.ErrorIs(t, FullRun("exe", "", SingleCVR).Validate(), ErrNoFolder)
	require.ErrorIs(t, FullRun("exe", file, SingleCVR).Validate(), ErrNotDirectory)
	require.ErrorIs(t, FullRun("exe", filepath.Join(dir, "missing"), SingleCVR).Validate(), os.ErrNotExist)
	require.ErrorIs(t, FullRun("exe", dir, "xml").Validate(), ErrUnknownFileType)
	require.ErrorIs(t, Job{Executable: "exe", Folder: dir, FileType: SingleCVR, Limit: 0}.Validate(), ErrBadLimit)
}

func TestResolveExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bit check is unix specific")
	}
	dir := t.TempDir()
	exe := filepath.Join(dir, ExecutableName)
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0700))

	got, err := ResolveExecutable(exe)
	require.NoError(t, err)
	require.Equal(t, exe, got)

	notExec := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(notExec, []byte("x"), 0600))
	_, err = ResolveExecutable(notExec)
	require.ErrorIs(t, err, ErrNoExecutable)
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("0123456789"), 0600))
	}
}

func TestScanner_CountsMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "CvrExport_1.json", "cvrexport_2.JSON", "Batch.zip", "notes.txt", "Manifest.json")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "CvrExport_dir.json"), 0750))

	s, err := NewScanner(nil, 0)
	require.NoError(t, err)
	require.Equal(t, DefaultPatterns, s.Patterns())

	sum, err := s.Scan(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 3, sum.Files)
	require.EqualValues(t, 30, sum.Bytes)
	require.False(t, sum.Newest.IsZero())
}

func TestScanner_CachesUntilInvalidated(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "CvrExport_1.json")

	s, err := NewScanner([]string{"*.json"}, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	sum, err := s.Scan(ctx, dir)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Files)

	writeFiles(t, dir, "CvrExport_2.json")
	sum, err = s.Scan(ctx, dir)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Files, "cached result")

	s.Invalidate(ctx, dir)
	sum, err = s.Scan(ctx, dir)
	require.NoError(t, err)
	require.Equal(t, 2, sum.Files)
}

func TestScanner_BadPattern(t *testing.T) {
	_, err := NewScanner([]string{"[unterminated"}, 0)
	require.Error(t, err)
}

func TestScanner_MissingFolder(t *testing.T) {
	s, err := NewScanner(nil, time.Minute)
	require.NoError(t, err)
	_, err = s.Scan(context.Background(), filepath.Join(t.TempDir(), "gone"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
