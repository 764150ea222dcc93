// Package capture supervises the external capture driver process.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nir0k/SunLapse/internal/logging"
)

// ErrAlreadyRunning is returned by Start while a driver process is alive.
var ErrAlreadyRunning = errors.New("capture driver already running")

// IntervalPlaceholder in Command.Args expands to the interval in whole seconds.
const IntervalPlaceholder = "{interval}"

// DefaultGracePeriod is how long Terminate waits after SIGTERM before SIGKILL.
const DefaultGracePeriod = 5 * time.Second

// State is the supervisor lifecycle state.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Exited
	Terminating
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Exited:
		return "exited"
	case Terminating:
		return "terminating"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Command describes how to launch the capture driver.
type Command struct {
	Path        string
	Args        []string
	Dir         string
	Interval    time.Duration
	GracePeriod time.Duration
}

// ExpandArgs substitutes IntervalPlaceholder with whole seconds.
func ExpandArgs(args []string, interval time.Duration) []string {
	secs := strconv.Itoa(int(interval / time.Second))
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = strings.ReplaceAll(arg, IntervalPlaceholder, secs)
	}
	return out
}

// Session is one run of the driver process.
type Session struct {
	ID        string
	PID       int
	StartedAt time.Time
	Interval  time.Duration
}

// ExpectedShots estimates how many captures the driver should have made by now.
func (s Session) ExpectedShots(now time.Time) int {
	if s.Interval <= 0 || now.Before(s.StartedAt) {
		return 0
	}
	return int(now.Sub(s.StartedAt) / s.Interval)
}

// Supervisor owns at most one driver process. It never restarts the driver
// on its own; Poll reports an exit and the caller decides when to Start again.
// Methods are meant to be called from a single control goroutine.
type Supervisor struct {
	cmd    Command
	log    logging.Logger
	now    func() time.Time
	signal func(*exec.Cmd, syscall.Signal) error

	mu      sync.Mutex
	state   State
	proc    *exec.Cmd
	done    chan struct{}
	waitErr error
	session Session
}

// NewSupervisor returns a stopped supervisor.
func NewSupervisor(cmd Command, log logging.Logger) *Supervisor {
	if cmd.GracePeriod <= 0 {
		cmd.GracePeriod = DefaultGracePeriod
	}
	if log == nil {
		log = logging.Discard
	}
	return &Supervisor{cmd: cmd, log: log, now: time.Now, signal: signalGroup}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running reports whether a driver process is believed alive.
func (s *Supervisor) Running() bool {
	return s.State() == Running
}

// Session returns the current or most recent session.
func (s *Supervisor) Session() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session, s.session.ID != ""
}

// Start launches a fresh driver process in Command.Dir with stdin and stdout
// detached from the terminal.
func (s *Supervisor) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Running, Starting, Terminating:
		return ErrAlreadyRunning
	}
	s.state = Starting

	// Not CommandContext: cancellation must go through Terminate so the
	// driver gets SIGTERM rather than SIGKILL.
	proc := exec.Command(s.cmd.Path, s.cmd.Args...)
	proc.Dir = s.cmd.Dir
	proc.Stdin = nil
	proc.Stdout = nil
	proc.Stderr = nil
	proc.SysProcAttr = sysProcAttr()

	if err := proc.Start(); err != nil {
		s.state = Stopped
		return fmt.Errorf("start %s: %w", s.cmd.Path, err)
	}

	done := make(chan struct{})
	go func() {
		err := proc.Wait()
		s.mu.Lock()
		s.waitErr = err
		s.mu.Unlock()
		close(done)
	}()

	s.proc = proc
	s.done = done
	s.waitErr = nil
	s.session = Session{
		ID:        uuid.NewString(),
		PID:       proc.Process.Pid,
		StartedAt: s.now(),
		Interval:  s.cmd.Interval,
	}
	s.state = Running
	s.log.Infof("Capture session %s started: %s %s (pid %d)", s.session.ID, s.cmd.Path, strings.Join(s.cmd.Args, " "), s.session.PID)
	return nil
}

// Poll checks without blocking whether the driver has exited. It returns true
// together with the exit cause the first time an exit is observed and on
// every call after that until the next Start or Terminate.
func (s *Supervisor) Poll() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Exited:
		return true, s.waitErr
	case Running:
	default:
		return false, nil
	}

	select {
	case <-s.done:
	default:
		return false, nil
	}

	s.state = Exited
	s.log.Warningf("Capture session %s exited after %s: %v", s.session.ID, s.now().Sub(s.session.StartedAt).Round(time.Second), exitCause(s.waitErr))
	return true, s.waitErr
}

// Terminate stops a running driver with SIGTERM, escalating to SIGKILL after
// the grace period, and always reaps it. Calling it on a stopped supervisor
// is a no-op.
func (s *Supervisor) Terminate() error {
	s.mu.Lock()
	switch s.state {
	case Stopped, Starting:
		s.mu.Unlock()
		return nil
	case Exited:
		s.state = Stopped
		s.mu.Unlock()
		return nil
	}
	s.state = Terminating
	proc, done, session, grace := s.proc, s.done, s.session, s.cmd.GracePeriod
	s.mu.Unlock()

	// Once reaped, the pid and its group id may belong to someone else.
	if !reaped(done) {
		if err := s.signal(proc, syscall.SIGTERM); err != nil {
			s.log.Warningf("Failed to signal capture session %s: %v", session.ID, err)
		}
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		if !reaped(done) {
			s.log.Warningf("Capture session %s ignored SIGTERM for %s, killing", session.ID, grace)
			if err := s.signal(proc, syscall.SIGKILL); err != nil {
				s.log.Warningf("Failed to kill capture session %s: %v", session.ID, err)
			}
		}
		<-done
	}

	now := s.now()
	s.log.Infof("Capture session %s stopped after %s (~%d shots expected)",
		session.ID, now.Sub(session.StartedAt).Round(time.Second), session.ExpectedShots(now))

	s.mu.Lock()
	s.state = Stopped
	s.mu.Unlock()
	return nil
}

func reaped(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// signalGroup signals the driver's process group so helpers it spawned go too.
func signalGroup(proc *exec.Cmd, sig syscall.Signal) error {
	if proc == nil || proc.Process == nil {
		return nil
	}
	err := syscall.Kill(-proc.Process.Pid, sig)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	if err := proc.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func exitCause(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}
