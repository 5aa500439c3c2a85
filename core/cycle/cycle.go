// Package cycle implements the Cycle Controller: it decides whether the
// main loop should run another cycle, sleep, or stop, and for how long.
package cycle

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Jinn-Network/jinn-worker/infrastructure/config"
	"github.com/Jinn-Network/jinn-worker/infrastructure/logging"
)

// DecisionKind is the Cycle Controller's verdict for the next action.
type DecisionKind int

const (
	// Run means the main loop should execute another cycle immediately.
	Run DecisionKind = iota
	// Sleep means the main loop should wait Decision.SleepFor before
	// re-evaluating.
	Sleep
	// Stop means the main loop should exit.
	Stop
)

// StopReason names why Decide returned Stop.
type StopReason string

const (
	StopReasonStopFile    StopReason = "stop_file_present"
	StopReasonMaxRuns     StopReason = "max_runs_reached"
	StopReasonMaxCycles   StopReason = "max_cycles_reached"
	StopReasonStuckCycles StopReason = "max_stuck_cycles_reached"
)

// Decision is the Cycle Controller's verdict, returned by Decide.
type Decision struct {
	Kind       DecisionKind
	SleepFor   time.Duration
	StopReason StopReason
}

// Controller tracks adaptive-poll and earning-window state across cycles.
type Controller struct {
	cfg    *config.Config
	logger *logging.Logger

	runs          int
	cycles        int
	stuckCycles   int
	pollInterval  time.Duration
	windowID      string
	windowJobs    int
	stopFileWatch *fsnotify.Watcher
	stopSignaled  bool
}

// New builds a Controller from cfg. Decide takes the current time as an
// argument so tests can control earning-window evaluation.
func New(cfg *config.Config, logger *logging.Logger) *Controller {
	return &Controller{
		cfg:          cfg,
		logger:       logger,
		pollInterval: cfg.BasePollInterval,
	}
}

// WatchStopFile starts an fsnotify watch on the stop file's parent
// directory so Decide can observe its creation promptly instead of only
// at the next cooperative poll.
func (c *Controller) WatchStopFile() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("cycle: create stop-file watcher: %w", err)
	}
	dir := parentDir(c.cfg.StopFilePath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("cycle: watch %s: %w", dir, err)
	}

	c.stopFileWatch = watcher
	go c.drainStopFileEvents()
	return nil
}

func (c *Controller) drainStopFileEvents() {
	for {
		select {
		case event, ok := <-c.stopFileWatch.Events:
			if !ok {
				return
			}
			if event.Name == c.cfg.StopFilePath && (event.Op&(fsnotify.Create|fsnotify.Write) != 0) {
				c.stopSignaled = true
			}
		case _, ok := <-c.stopFileWatch.Errors:
			if !ok {
				return
			}
		}
	}
}

// CloseStopFileWatch releases the fsnotify watcher, if one was started.
func (c *Controller) CloseStopFileWatch() {
	if c.stopFileWatch != nil {
		c.stopFileWatch.Close()
	}
}

func parentDir(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "."
	}
	return path[:idx]
}

func (c *Controller) stopFilePresent() bool {
	if c.stopSignaled {
		return true
	}
	_, err := os.Stat(c.cfg.StopFilePath)
	return err == nil
}

// Decide evaluates stop conditions, earning-window gating, and adaptive
// sleep to produce the next action.
func (c *Controller) Decide(now time.Time) Decision {
	if c.stopFilePresent() {
		return Decision{Kind: Stop, StopReason: StopReasonStopFile}
	}
	if c.cfg.MaxRuns > 0 && c.runs >= c.cfg.MaxRuns {
		return Decision{Kind: Stop, StopReason: StopReasonMaxRuns}
	}
	if c.cfg.MaxCycles > 0 && c.cycles >= c.cfg.MaxCycles {
		return Decision{Kind: Stop, StopReason: StopReasonMaxCycles}
	}
	if c.cfg.MaxStuckCycles > 0 && c.stuckCycles >= c.cfg.MaxStuckCycles {
		return Decision{Kind: Stop, StopReason: StopReasonStuckCycles}
	}

	if in, sleepUntilOpen := c.evaluateEarningWindow(now); !in {
		sleep := sleepUntilOpen
		if sleep > time.Hour {
			sleep = time.Hour
		}
		return Decision{Kind: Sleep, SleepFor: sleep}
	}

	return Decision{Kind: Run}
}

// evaluateEarningWindow reports whether now falls inside the configured
// window, and if not, how long until it opens. An empty or malformed schedule fails open (always in
// window), logging a warning for the latter.
func (c *Controller) evaluateEarningWindow(now time.Time) (inWindow bool, sleepUntilOpen time.Duration) {
	if c.cfg.EarningWindow == "" {
		return true, 0
	}

	start, end, err := parseWindow(c.cfg.EarningWindow)
	if err != nil {
		if c.logger != nil {
			c.logger.WithError(err).Warn("earning window schedule is malformed, failing open")
		}
		return true, 0
	}

	nowMinutes := now.Hour()*60 + now.Minute()
	startMinutes := start.hour*60 + start.minute
	endMinutes := end.hour*60 + end.minute

	var inside bool
	if startMinutes <= endMinutes {
		inside = nowMinutes >= startMinutes && nowMinutes < endMinutes
	} else {
		// Wraps over midnight.
		inside = nowMinutes >= startMinutes || nowMinutes < endMinutes
	}

	windowID := windowIdentifier(now, start, end, inside)
	if windowID != c.windowID {
		c.windowID = windowID
		c.windowJobs = 0
	}

	if !inside {
		return false, durationUntil(now, startMinutes)
	}
	if c.cfg.EarningWindowCap > 0 && c.windowJobs >= c.cfg.EarningWindowCap {
		return false, durationUntil(now, startMinutes)
	}
	return true, 0
}

type clockTime struct{ hour, minute int }

func parseWindow(spec string) (start, end clockTime, err error) {
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return clockTime{}, clockTime{}, fmt.Errorf("cycle: earning window %q must be HH:MM-HH:MM", spec)
	}
	start, err = parseClockTime(parts[0])
	if err != nil {
		return clockTime{}, clockTime{}, err
	}
	end, err = parseClockTime(parts[1])
	if err != nil {
		return clockTime{}, clockTime{}, err
	}
	return start, end, nil
}

func parseClockTime(s string) (clockTime, error) {
	s = strings.TrimSpace(s)
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return clockTime{}, fmt.Errorf("cycle: invalid time %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return clockTime{}, fmt.Errorf("cycle: invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return clockTime{}, fmt.Errorf("cycle: invalid minute in %q", s)
	}
	return clockTime{hour: hour, minute: minute}, nil
}

// windowIdentifier derives a stable id for the window containing now,
// keyed by the window's most recent start timestamp.
func windowIdentifier(now time.Time, start, end clockTime, inside bool) string {
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), start.hour, start.minute, 0, 0, now.Location())
	if !inside {
		return "out:" + now.Format("2006-01-02")
	}
	nowMinutes := now.Hour()*60 + now.Minute()
	startMinutes := start.hour*60 + start.minute
	if startMinutes > end.hour*60+end.minute && nowMinutes < startMinutes {
		// Past midnight, window began yesterday.
		startOfDay = startOfDay.AddDate(0, 0, -1)
	}
	return startOfDay.Format(time.RFC3339)
}

func durationUntil(now time.Time, targetMinutes int) time.Duration {
	nowMinutes := now.Hour()*60 + now.Minute()
	deltaMinutes := targetMinutes - nowMinutes
	if deltaMinutes <= 0 {
		deltaMinutes += 24 * 60
	}
	return time.Duration(deltaMinutes)*time.Minute - time.Duration(now.Second())*time.Second
}

// RecordCycle advances the controller's counters after one cycle
// executes. processedRequest resets the adaptive-poll interval to base
// and advances the per-window job counter; otherwise the interval grows
// by the configured factor up to the configured max.
func (c *Controller) RecordCycle(processedRequest, stuck bool) {
	c.cycles++
	c.runs++
	if stuck {
		c.stuckCycles++
	} else {
		c.stuckCycles = 0
	}

	if processedRequest {
		c.pollInterval = c.cfg.BasePollInterval
		c.windowJobs++
	} else {
		next := time.Duration(float64(c.pollInterval) * c.cfg.PollFactor)
		if next > c.cfg.MaxPollInterval {
			next = c.cfg.MaxPollInterval
		}
		c.pollInterval = next
	}
}

// PollInterval returns the current adaptive-sleep interval for an idle
// cycle.
func (c *Controller) PollInterval() time.Duration {
	return c.pollInterval
}

// Sleep blocks for d or until ctx is cancelled, whichever comes first,
// re-checking the stop file every second so a cooperative stop is
// observed promptly during a long sleep.
func (c *Controller) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	deadline := time.Now().Add(d)
	for {
		if c.stopFilePresent() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !now.Before(deadline) {
				return
			}
		}
	}
}
