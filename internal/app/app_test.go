package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/cvrexport/internal/config"
	"github.com/zjrosen/cvrexport/internal/controller"
	"github.com/zjrosen/cvrexport/internal/cvr"
	"github.com/zjrosen/cvrexport/internal/driver"
	"github.com/zjrosen/cvrexport/internal/process"
	"github.com/zjrosen/cvrexport/internal/testutil"
	"github.com/zjrosen/cvrexport/internal/ui/toaster"
)

func TestMain(m *testing.M) {
	testutil.MaybeRunHelper()
	zone.NewGlobal()
	lipgloss.SetColorProfile(termenv.Ascii)
	os.Exit(m.Run())
}

func testConfig(folder string) config.Config {
	cfg := config.Defaults()
	cfg.Folder = folder
	cfg.Watch.Enabled = false
	cfg.History.Enabled = false
	cfg.Scheduler.StepInterval = 5 * time.Millisecond
	cfg.Scan.CacheTTL = 0
	return cfg
}

// newTestModel builds a sized model whose converter is the test binary
// running scenario.
func newTestModel(t *testing.T, scenario string, cfg config.Config, opts ...Option) Model {
	t.Helper()
	opts = append([]Option{
		WithExecutable(testutil.HelperExecutable(t)),
		WithSpawner(controller.ProcessSpawner(process.Spawner{Env: testutil.HelperEnv(scenario)})),
	}, opts...)
	m := New(cfg, opts...)
	t.Cleanup(func() { _ = m.Close() })
	return update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func cvrFolder(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("{}"), 0o600))
	}
	return dir
}

func TestUIState_Controls(t *testing.T) {
	tests := []struct {
		state  UIState
		want   Controls
		status string
	}{
		{StateNoFolder, Controls{ChooseFolder: true}, "Not Started"},
		{StateReady, Controls{Process: true, TestRun: true, ChooseFolder: true}, "Not Started"},
		{StateStarted, Controls{Cancel: true}, "Running"},
		{StateCancelling, Controls{}, "Cancelling..."},
		{StateFinished, Controls{Process: true, TestRun: true, ChooseFolder: true}, "Finished"},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			require.Equal(t, tt.want, tt.state.Controls())
			require.Equal(t, tt.status, tt.state.StatusText())
		})
	}
	require.True(t, StateStarted.Running())
	require.True(t, StateCancelling.Running())
	require.False(t, StateFinished.Running())
}

func TestNew_WithoutFolder(t *testing.T) {
	m := newTestModel(t, testutil.ScenarioConvert, testConfig(""))

	require.Equal(t, StateNoFolder, m.State())
	view := m.View()
	require.Contains(t, view, Title)
	require.Contains(t, view, "No folder selected")
	require.Contains(t, view, "Process Status: Not Started")
	require.Contains(t, view, "Test Run (100 CVRs)")

	// Runs are gated on a folder.
	m = update(t, m, keyPress("t"))
	m = update(t, m, keyPress("p"))
	require.Equal(t, StateNoFolder, m.State())
	require.False(t, m.ctrl.Active())
}

func TestNew_ConfiguredFolder(t *testing.T) {
	dir := cvrFolder(t, "CvrExport_1.json")
	m := newTestModel(t, testutil.ScenarioConvert, testConfig(dir))

	require.Equal(t, StateReady, m.State())
	require.Equal(t, dir, m.Folder())
	require.Contains(t, m.View(), "Folder Selected:")
	require.Contains(t, m.View(), "Scanning…")

	m = update(t, m, m.scanCmd(m.Folder())())
	require.Contains(t, m.View(), "1 CVR file(s), 2 B")
}

func TestNew_UnusableConfiguredFolder(t *testing.T) {
	m := newTestModel(t, testutil.ScenarioConvert, testConfig(filepath.Join(t.TempDir(), "missing")))
	require.Equal(t, StateNoFolder, m.State())
	require.Empty(t, m.Folder())
}

func TestNew_FileTypeFromConfig(t *testing.T) {
	cfg := testConfig("")
	cfg.FileType = string(cvr.CVRReport)
	m := newTestModel(t, testutil.ScenarioConvert, cfg)
	require.Equal(t, cvr.CVRReport, m.FileType())
}

func TestToggleFileType_SavesConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	m := newTestModel(t, testutil.ScenarioConvert, testConfig(""), WithConfigPath(configPath))

	m = update(t, m, keyPress("tab"))
	require.Equal(t, cvr.CVRReport, m.FileType())

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "file_type: cvrreport")

	m = update(t, m, keyPress("tab"))
	require.Equal(t, cvr.SingleCVR, m.FileType())
}

func TestChooseFolder_SavesConfigAndReadies(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	dir := cvrFolder(t)
	m := newTestModel(t, testutil.ScenarioConvert, testConfig(""), WithConfigPath(configPath))

	m, _ = m.chooseFolder(dir)
	require.Equal(t, StateReady, m.State())
	require.Equal(t, dir, m.Folder())
	require.False(t, m.picking)

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	require.Contains(t, string(data), dir)
}

func TestPicker_OpenAndEscape(t *testing.T) {
	m := newTestModel(t, testutil.ScenarioConvert, testConfig(""))

	m = update(t, m, keyPress("f"))
	require.True(t, m.picking)
	require.Contains(t, m.View(), "Choose CVRs Folder")

	m = update(t, m, keyPress("esc"))
	require.False(t, m.picking)
	require.Equal(t, StateNoFolder, m.State())
}

func TestPicker_SelectCurrentDirectory(t *testing.T) {
	dir := cvrFolder(t)
	m := newTestModel(t, testutil.ScenarioConvert, testConfig(""))

	m = update(t, m, keyPress("f"))
	m.picker.CurrentDirectory = dir
	m = update(t, m, keyPress("s"))

	require.False(t, m.picking)
	require.Equal(t, dir, m.Folder())
	require.Equal(t, StateReady, m.State())
}

func TestClearLog(t *testing.T) {
	m := newTestModel(t, testutil.ScenarioConvert, testConfig(""))
	m.host.log.AppendText("line one\nline two\n")
	m.host.log.Diagnostic("oops")

	m = update(t, m, keyPress("x"))
	require.Empty(t, m.LogText())
	require.Empty(t, m.Diagnostics())
}

func TestDiagnosticsPanel(t *testing.T) {
	m := newTestModel(t, testutil.ScenarioConvert, testConfig(""))
	m.host.log.Diagnostic("first problem")
	m.host.log.Diagnostic("second problem")
	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})

	view := m.View()
	require.Contains(t, view, "Diagnostics (2)")
	require.Contains(t, view, "second problem")
}

func TestStartRun_MissingConverter(t *testing.T) {
	dir := cvrFolder(t)
	cfg := testConfig(dir)
	cfg.Executable = filepath.Join(t.TempDir(), "ReadCVRStats")
	m := New(cfg)
	t.Cleanup(func() { _ = m.Close() })
	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})

	m = update(t, m, keyPress("p"))
	require.Equal(t, StateReady, m.State())
	require.True(t, m.toaster.Visible())
	require.Contains(t, m.toaster.Message(), "Converter not found")
}

func TestStartRun_SpawnFailureFinishes(t *testing.T) {
	dir := cvrFolder(t)
	m := newTestModel(t, testutil.ScenarioConvert, testConfig(dir),
		WithExecutable(filepath.Join(t.TempDir(), "no-such-converter")))

	m = update(t, m, keyPress("p"))
	require.Equal(t, StateFinished, m.State())
	require.False(t, m.ctrl.Active())

	res, ok := m.LastResult()
	require.True(t, ok)
	require.Error(t, res.SpawnErr)
	require.Contains(t, m.toaster.Message(), "Failed to start converter")
	require.Contains(t, m.View(), "Process Status: Finished")
}

func TestCancel_IgnoredWhenIdle(t *testing.T) {
	m := newTestModel(t, testutil.ScenarioConvert, testConfig(cvrFolder(t)))
	m = update(t, m, keyPress("c"))
	require.Equal(t, StateReady, m.State())
}

func TestHelpOverlay(t *testing.T) {
	m := newTestModel(t, testutil.ScenarioConvert, testConfig(""))

	m = update(t, m, keyPress("?"))
	require.True(t, m.showHelp)
	// Actions are blocked while help is open.
	m = update(t, m, keyPress("tab"))
	require.Equal(t, cvr.SingleCVR, m.FileType())

	m = update(t, m, keyPress("esc"))
	require.False(t, m.showHelp)
}

func TestLogOverlay_OnlyInDebugMode(t *testing.T) {
	ctrlX := tea.KeyMsg{Type: tea.KeyCtrlX}

	m := newTestModel(t, testutil.ScenarioConvert, testConfig(""))
	m = update(t, m, ctrlX)
	require.False(t, m.logOverlay.Visible())

	m = newTestModel(t, testutil.ScenarioConvert, testConfig(""), WithDebug(true))
	m = update(t, m, ctrlX)
	require.True(t, m.logOverlay.Visible())
	m = update(t, m, ctrlX)
	require.False(t, m.logOverlay.Visible())
}

func TestQuit(t *testing.T) {
	m := newTestModel(t, testutil.ScenarioConvert, testConfig(""))
	_, cmd := m.Update(keyPress("q"))
	require.NotNil(t, cmd)
}

func TestResultToast(t *testing.T) {
	tests := []struct {
		name  string
		res   driver.Result
		want  string
		style toaster.Style
	}{
		{"ok", driver.Result{}, "Process finished", toaster.StyleSuccess},
		{"exit code", driver.Result{ExitCode: 3}, "Process exited with code 3", toaster.StyleError},
		{"diagnostics", driver.Result{Diagnostics: []string{"a", "b"}}, "Process finished with 2 diagnostic line(s)", toaster.StyleError},
		{"cancelled", driver.Result{ExitCode: 130, Cancelled: true}, "Process cancelled (exit 130)", toaster.StyleWarn},
		{"killed", driver.Result{ExitCode: -1, Cancelled: true, Killed: true}, "Process killed after cancel", toaster.StyleWarn},
		{"spawn", driver.Result{ExitCode: -1, SpawnErr: errors.New("boom")}, "Failed to start converter: boom", toaster.StyleError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, style := resultToast(tt.res)
			require.Equal(t, tt.want, msg)
			require.Equal(t, tt.style, style)
		})
	}
}

func TestFormatBytes(t *testing.T) {
	require.Equal(t, "0 B", formatBytes(0))
	require.Equal(t, "1023 B", formatBytes(1023))
	require.Equal(t, "1.0 KiB", formatBytes(1024))
	require.Equal(t, "1.5 MiB", formatBytes(3*512*1024))
}
