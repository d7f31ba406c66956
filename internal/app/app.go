// Package app contains the root application model: folder and file type
// selection, the run controls, the streamed process log and diagnostics.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	zone "github.com/lrstanley/bubblezone"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/cvrexport/internal/config"
	"github.com/zjrosen/cvrexport/internal/controller"
	"github.com/zjrosen/cvrexport/internal/cvr"
	"github.com/zjrosen/cvrexport/internal/driver"
	"github.com/zjrosen/cvrexport/internal/keys"
	"github.com/zjrosen/cvrexport/internal/log"
	"github.com/zjrosen/cvrexport/internal/process"
	"github.com/zjrosen/cvrexport/internal/pubsub"
	"github.com/zjrosen/cvrexport/internal/scheduler"
	uihelp "github.com/zjrosen/cvrexport/internal/ui/help"
	"github.com/zjrosen/cvrexport/internal/ui/logoverlay"
	"github.com/zjrosen/cvrexport/internal/ui/styles"
	"github.com/zjrosen/cvrexport/internal/ui/toaster"
	"github.com/zjrosen/cvrexport/internal/watcher"
)

// hostState is shared by every copy of the Model. The controller's sinks
// and completion callback write into it while Update runs.
type hostState struct {
	state   UIState
	log     *logPane
	pending []driver.Result
	last    *driver.Result
}

// folderScannedMsg carries a cvr.Scanner result for folder.
type folderScannedMsg struct {
	folder  string
	summary cvr.Summary
	err     error
}

// Model is the root application state.
type Model struct {
	cfg        config.Config
	configPath string
	keys       keys.KeyMap
	debugMode  bool

	width  int
	height int

	ctx    context.Context
	cancel context.CancelFunc

	host  *hostState
	sched *scheduler.Tea
	ctrl  *controller.Controller

	exe    string
	exeErr error

	folder   string
	fileType cvr.FileType
	scanner  *cvr.Scanner
	summary  *cvr.Summary
	scanErr  error

	picking bool
	picker  filepicker.Model

	spinner     spinner.Model
	helpBar     help.Model
	helpOverlay uihelp.Model
	showHelp    bool
	toaster     toaster.Model

	logOverlay  logoverlay.Model
	logListener *log.LogListener

	// Folder watcher (pubsub-based), replaced whenever the folder changes.
	watcherHandle   *watcher.Watcher
	watcherCancel   context.CancelFunc
	watcherListener *pubsub.ContinuousListener[watcher.Change]
}

type options struct {
	spawn      controller.SpawnFunc
	executable string
	recorder   controller.Recorder
	tracer     trace.Tracer
	configPath string
	debug      bool
}

// Option configures New.
type Option func(*options)

// WithSpawner replaces the process spawner.
func WithSpawner(fn controller.SpawnFunc) Option {
	return func(o *options) { o.spawn = fn }
}

// WithExecutable uses path as the converter instead of resolving it from
// the configuration.
func WithExecutable(path string) Option {
	return func(o *options) { o.executable = path }
}

// WithRecorder records every run, e.g. into the history database.
func WithRecorder(r controller.Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithTracer traces sessions.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithConfigPath is the file folder and file type choices are saved to.
func WithConfigPath(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithDebug enables the log overlay (ctrl+x).
func WithDebug(debug bool) Option {
	return func(o *options) { o.debug = debug }
}

// New creates the application model.
func New(cfg config.Config, opts ...Option) Model {
	o := options{spawn: controller.ProcessSpawner(process.Spawner{})}
	for _, opt := range opts {
		opt(&o)
	}

	zone.NewGlobal()

	ctx, cancel := context.WithCancel(context.Background())
	host := &hostState{log: newLogPane(cfg.UI.WrapLog)}
	sched := scheduler.NewTea()

	ctrlOpts := []controller.Option{
		controller.WithLogSink(host.log),
		controller.WithDiagnosticSink(host.log),
		controller.WithCompletion(func(res driver.Result) {
			host.state = StateFinished
			host.pending = append(host.pending, res)
		}),
	}
	if o.recorder != nil {
		ctrlOpts = append(ctrlOpts, controller.WithRecorder(o.recorder))
	}
	if o.tracer != nil {
		ctrlOpts = append(ctrlOpts, controller.WithTracer(o.tracer))
	}

	m := Model{
		cfg:         cfg,
		configPath:  o.configPath,
		keys:        keys.DefaultKeyMap(),
		debugMode:   o.debug,
		ctx:         ctx,
		cancel:      cancel,
		host:        host,
		sched:       sched,
		ctrl:        controller.New(cfg.DriverConfig(), o.spawn, sched, ctrlOpts...),
		fileType:    cvr.SingleCVR,
		spinner:     spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(styles.StatusRunningStyle)),
		helpBar:     help.New(),
		helpOverlay: uihelp.New(keys.DefaultKeyMap(), cfg.TestRunLimit),
		toaster:     toaster.New(),
		logOverlay:  logoverlay.New(),
	}

	if ft, err := cvr.ParseFileType(cfg.FileType); err == nil {
		m.fileType = ft
	}

	m.exe = o.executable
	if m.exe == "" {
		m.exe, m.exeErr = cvr.ResolveExecutable(cfg.Executable)
		if m.exeErr != nil {
			log.Warn(log.CatUI, "Converter not found", "error", m.exeErr)
		}
	}

	scanner, err := cvr.NewScanner(cfg.Scan.Patterns, cfg.Scan.CacheTTL)
	if err != nil {
		log.ErrorErr(log.CatUI, "Bad scan patterns, using defaults", err)
		scanner, _ = cvr.NewScanner(nil, cfg.Scan.CacheTTL)
	}
	m.scanner = scanner

	if o.debug {
		m.logListener = log.NewListener(ctx)
	}

	host.state = StateNoFolder
	if cfg.Folder != "" {
		if info, err := os.Stat(cfg.Folder); err == nil && info.IsDir() {
			m.setFolder(cfg.Folder)
			host.state = StateReady
		} else {
			log.Warn(log.CatUI, "Configured folder unusable", "folder", cfg.Folder)
		}
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{}
	if m.folder != "" {
		cmds = append(cmds, m.scanCmd(m.folder))
	}
	if m.watcherListener != nil {
		cmds = append(cmds, m.watcherListener.Listen())
	}
	if m.logListener != nil {
		cmds = append(cmds, m.logListener.Listen())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	m, cmd := m.update(msg)

	// Controller callbacks may have run; surface what they produced.
	m.host.log.sync()
	m, resultCmd := m.surfaceResults()
	m.layout()

	return m, tea.Batch(cmd, resultCmd, m.sched.Cmd())
}

func (m Model) update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.toaster = m.toaster.SetSize(msg.Width, msg.Height)
		m.helpOverlay = m.helpOverlay.SetSize(msg.Width, msg.Height)
		m.logOverlay = m.logOverlay.SetSize(msg.Width, msg.Height)
		m.helpBar.Width = msg.Width
		if m.picking {
			m.picker.SetHeight(m.pickerHeight())
		}
		return m, nil

	case scheduler.TickMsg:
		m.sched.Handle(msg)
		return m, nil

	case spinner.TickMsg:
		if !m.host.state.Running() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case toaster.DismissMsg:
		m.toaster = m.toaster.Update(msg)
		return m, nil

	case folderScannedMsg:
		if msg.folder != m.folder {
			return m, nil
		}
		if msg.err != nil {
			log.Warn(log.CatUI, "Folder scan failed", "folder", msg.folder, "error", msg.err)
			m.summary, m.scanErr = nil, msg.err
			return m, nil
		}
		sum := msg.summary
		m.summary, m.scanErr = &sum, nil
		return m, nil

	case pubsub.Event[watcher.Change]:
		if m.watcherHandle == nil || msg.Payload.Folder != m.watcherHandle.Folder() {
			// From a watcher that has since been replaced.
			return m, nil
		}
		log.Debug(log.CatUI, "Folder changed", "folder", msg.Payload.Folder, "files", len(msg.Payload.Names))
		m.scanner.Invalidate(m.ctx, m.folder)
		return m, tea.Batch(m.scanCmd(m.folder), m.watcherListener.Listen())

	case log.LogEvent:
		m.logOverlay = m.logOverlay.Append(msg.Payload)
		if m.logListener == nil {
			return m, nil
		}
		return m, m.logListener.Listen()

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.picking {
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if m.picking {
		return m.handlePickerKey(msg)
	}

	if m.logOverlay.Visible() {
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		m.logOverlay = m.logOverlay.Update(msg)
		return m, nil
	}

	if m.showHelp {
		switch {
		case key.Matches(msg, m.keys.Help), key.Matches(msg, m.keys.Escape):
			m.showHelp = false
		case key.Matches(msg, m.keys.Quit):
			return m.quit()
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
	case key.Matches(msg, m.keys.Logs):
		if m.debugMode {
			m.logOverlay = m.logOverlay.Toggle()
		}
	case key.Matches(msg, m.keys.TestRun):
		return m.startRun(true)
	case key.Matches(msg, m.keys.Process):
		return m.startRun(false)
	case key.Matches(msg, m.keys.Cancel):
		return m.cancelRun()
	case key.Matches(msg, m.keys.ClearLog):
		m.clearLog()
	case key.Matches(msg, m.keys.ChooseFolder):
		return m.openPicker()
	case key.Matches(msg, m.keys.ToggleType):
		return m.setFileType(m.fileType.Next())
	case key.Matches(msg, m.keys.ScrollUp):
		m.host.log.ScrollUp(1)
	case key.Matches(msg, m.keys.ScrollDown):
		m.host.log.ScrollDown(1)
	case key.Matches(msg, m.keys.PageUp):
		m.host.log.PageUp()
	case key.Matches(msg, m.keys.PageDown):
		m.host.log.PageDown()
	case key.Matches(msg, m.keys.Escape):
		m.toaster = m.toaster.Hide()
	}
	return m, nil
}

func (m Model) handleMouse(msg tea.MouseMsg) (Model, tea.Cmd) {
	if m.picking || m.showHelp || m.logOverlay.Visible() {
		return m, nil
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.host.log.ScrollUp(3)
		return m, nil
	case tea.MouseButtonWheelDown:
		m.host.log.ScrollDown(3)
		return m, nil
	}

	if msg.Action != tea.MouseActionRelease || msg.Button != tea.MouseButtonLeft {
		return m, nil
	}

	switch {
	case inZone(zoneTestRun, msg):
		return m.startRun(true)
	case inZone(zoneProcess, msg):
		return m.startRun(false)
	case inZone(zoneCancel, msg):
		return m.cancelRun()
	case inZone(zoneClearLog, msg):
		m.clearLog()
	case inZone(zoneChooseFolder, msg):
		return m.openPicker()
	case inZone(zoneSingleCVR, msg):
		return m.setFileType(cvr.SingleCVR)
	case inZone(zoneCVRReport, msg):
		return m.setFileType(cvr.CVRReport)
	}
	return m, nil
}

func inZone(id string, msg tea.MouseMsg) bool {
	z := zone.Get(id)
	return z != nil && z.InBounds(msg)
}

// startRun launches the converter for the chosen folder. A test run is
// limited to cfg.TestRunLimit records.
func (m Model) startRun(testRun bool) (Model, tea.Cmd) {
	controls := m.host.state.Controls()
	if (testRun && !controls.TestRun) || (!testRun && !controls.Process) {
		return m, nil
	}
	if m.exeErr != nil {
		return m.toast(fmt.Sprintf("Converter not found: %v", m.exeErr), toaster.StyleError)
	}

	job := cvr.FullRun(m.exe, m.folder, m.fileType)
	if testRun {
		job = cvr.TestRun(m.exe, m.folder, m.fileType, m.cfg.TestRunLimit)
	}
	if err := job.Validate(); err != nil {
		return m.toast(err.Error(), toaster.StyleError)
	}

	// Set before Start: a spawn failure completes synchronously.
	m.host.state = StateStarted
	if err := m.ctrl.Start(m.ctx, job.Argv()); err != nil {
		if errors.Is(err, controller.ErrSessionActive) {
			return m.toast("A process is already running", toaster.StyleWarn)
		}
		// The completion callback has already reported it.
		log.ErrorErr(log.CatUI, "Start failed", err, "folder", m.folder)
		return m, nil
	}
	return m, m.spinner.Tick
}

func (m Model) cancelRun() (Model, tea.Cmd) {
	if !m.host.state.Controls().Cancel {
		return m, nil
	}
	m.host.state = StateCancelling
	if !m.ctrl.Cancel() {
		log.Debug(log.CatUI, "Cancel had no effect", "state", m.ctrl.State())
	}
	return m, nil
}

func (m Model) clearLog() {
	m.host.log.Clear()
}

// surfaceResults turns finished sessions into a toast.
func (m Model) surfaceResults() (Model, tea.Cmd) {
	if len(m.host.pending) == 0 {
		return m, nil
	}
	res := m.host.pending[len(m.host.pending)-1]
	m.host.pending = nil
	m.host.last = &res

	msg, style := resultToast(res)
	return m.toast(msg, style)
}

func resultToast(res driver.Result) (string, toaster.Style) {
	switch {
	case res.SpawnErr != nil:
		return fmt.Sprintf("Failed to start converter: %v", res.SpawnErr), toaster.StyleError
	case res.Killed:
		return "Process killed after cancel", toaster.StyleWarn
	case res.Cancelled:
		return fmt.Sprintf("Process cancelled (exit %d)", res.ExitCode), toaster.StyleWarn
	case len(res.Diagnostics) > 0:
		return fmt.Sprintf("Process finished with %d diagnostic line(s)", len(res.Diagnostics)), toaster.StyleError
	case res.ExitCode != 0:
		return fmt.Sprintf("Process exited with code %d", res.ExitCode), toaster.StyleError
	default:
		return "Process finished", toaster.StyleSuccess
	}
}

func (m Model) toast(msg string, style toaster.Style) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.toaster, cmd = m.toaster.Show(msg, style, toaster.DefaultDuration)
	return m, cmd
}

func (m Model) setFileType(ft cvr.FileType) (Model, tea.Cmd) {
	if ft == m.fileType {
		return m, nil
	}
	m.fileType = ft
	log.Debug(log.CatUI, "File type changed", "file_type", ft)
	if m.configPath == "" {
		return m, nil
	}
	if err := config.SaveFileType(m.configPath, string(ft)); err != nil {
		log.ErrorErr(log.CatConfig, "Save file type failed", err)
		return m.toast("Could not save file type: "+err.Error(), toaster.StyleError)
	}
	return m, nil
}

func (m Model) openPicker() (Model, tea.Cmd) {
	if !m.host.state.Controls().ChooseFolder || m.ctrl.Active() {
		return m.toast("Folder cannot change while a process is running", toaster.StyleWarn)
	}

	start := "."
	if m.folder != "" {
		start = filepath.Dir(m.folder)
	} else if home, err := os.UserHomeDir(); err == nil {
		start = home
	}
	if abs, err := filepath.Abs(start); err == nil {
		start = abs
	}

	fp := filepicker.New()
	fp.DirAllowed = true
	fp.FileAllowed = false
	fp.CurrentDirectory = start
	// Esc closes the picker instead of going up a directory.
	fp.KeyMap.Back = key.NewBinding(key.WithKeys("h", "backspace", "left"), key.WithHelp("h", "back"))
	fp.SetHeight(m.pickerHeight())

	m.picker = fp
	m.picking = true
	return m, fp.Init()
}

func (m Model) pickerHeight() int {
	// title, current directory, hint and spacing
	return max(m.height-5, 3)
}

func (m Model) handlePickerKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m.quit()
	case "esc":
		m.picking = false
		return m, nil
	case "s":
		return m.chooseFolder(m.picker.CurrentDirectory)
	}

	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)
	if ok, path := m.picker.DidSelectFile(msg); ok {
		return m.chooseFolder(path)
	}
	return m, cmd
}

// chooseFolder makes path the CVR folder and saves it to the config file.
func (m Model) chooseFolder(path string) (Model, tea.Cmd) {
	m.picking = false
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	cmd := m.setFolder(path)
	m.host.state = StateReady
	log.Info(log.CatUI, "Folder selected", "folder", path)

	if m.configPath != "" {
		if err := config.SaveFolder(m.configPath, path); err != nil {
			log.ErrorErr(log.CatConfig, "Save folder failed", err)
			var toastCmd tea.Cmd
			m, toastCmd = m.toast("Could not save folder: "+err.Error(), toaster.StyleError)
			return m, tea.Batch(cmd, toastCmd)
		}
	}
	return m, cmd
}

// setFolder switches the folder, replacing the watcher, and returns the
// commands that scan it and listen for changes.
func (m *Model) setFolder(folder string) tea.Cmd {
	m.folder = filepath.Clean(folder)
	m.summary, m.scanErr = nil, nil
	m.stopWatcher()

	if !m.cfg.Watch.Enabled {
		return m.scanCmd(m.folder)
	}

	w, err := watcher.New(watcher.Config{
		Folder:      m.folder,
		DebounceDur: m.cfg.Watch.Debounce,
		Match:       m.scanner.Matches,
	})
	if err != nil {
		log.ErrorErr(log.CatWatcher, "Watcher init failed", err)
		return m.scanCmd(m.folder)
	}
	watcherCtx, watcherCancel := context.WithCancel(m.ctx)
	// Subscribe before Start so no event is missed.
	listener := pubsub.NewContinuousListener(watcherCtx, w.Broker())
	if err := w.Start(); err != nil {
		// The app works fine without auto-refresh.
		log.ErrorErr(log.CatWatcher, "Watcher start failed", err, "folder", m.folder)
		watcherCancel()
		_ = w.Stop()
		return m.scanCmd(m.folder)
	}
	m.watcherHandle = w
	m.watcherCancel = watcherCancel
	m.watcherListener = listener
	return tea.Batch(m.scanCmd(m.folder), listener.Listen())
}

func (m *Model) stopWatcher() {
	if m.watcherCancel != nil {
		m.watcherCancel()
		m.watcherCancel = nil
	}
	if m.watcherHandle != nil {
		_ = m.watcherHandle.Stop()
		m.watcherHandle = nil
	}
	m.watcherListener = nil
}

func (m Model) scanCmd(folder string) tea.Cmd {
	ctx, scanner := m.ctx, m.scanner
	return func() tea.Msg {
		sum, err := scanner.Scan(ctx, folder)
		return folderScannedMsg{folder: folder, summary: sum, err: err}
	}
}

// quit interrupts a running child before leaving.
func (m Model) quit() (Model, tea.Cmd) {
	if m.ctrl.Active() {
		m.ctrl.Cancel()
	}
	return m, tea.Quit
}

// Close stops the watcher and cancels the context that live children were
// spawned under. Safe to call more than once.
func (m *Model) Close() error {
	m.stopWatcher()
	if m.cancel != nil {
		m.cancel()
	}
	return nil
}

// State returns the current UI state.
func (m Model) State() UIState {
	return m.host.state
}

// Folder returns the chosen CVR folder.
func (m Model) Folder() string {
	return m.folder
}

// FileType returns the selected file type.
func (m Model) FileType() cvr.FileType {
	return m.fileType
}

// LogText returns the process log contents.
func (m Model) LogText() string {
	return m.host.log.Text()
}

// Diagnostics returns the diagnostic lines shown in the panel.
func (m Model) Diagnostics() []string {
	return m.host.log.Diagnostics()
}

// LastResult returns the most recent session result, if any.
func (m Model) LastResult() (driver.Result, bool) {
	if m.host.last == nil {
		return driver.Result{}, false
	}
	return *m.host.last, true
}
