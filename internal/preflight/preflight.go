// Package preflight checks that the host can record before devices are
// opened: capture devices exist, there is memory for the chunk buffer and
// the spool and handoff locations are usable.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/Kaplaugher/vizume/internal/logging"
	"github.com/Kaplaugher/vizume/internal/platform/mediadev"
)

var log = logging.L("preflight")

// Status of a single check.
type Status string

const (
	Pass Status = "pass"
	Warn Status = "warn"
	Fail Status = "fail"
)

// Check is the result of one preflight test.
type Check struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Report holds every check in the order they ran.
type Report struct {
	Checks []Check `json:"checks"`
}

// Overall returns the worst status across all checks. An empty report
// passes.
func (r Report) Overall() Status {
	worst := Pass
	for _, c := range r.Checks {
		if worse(c.Status, worst) {
			worst = c.Status
		}
	}
	return worst
}

func (r *Report) add(name string, status Status, format string, args ...any) {
	c := Check{Name: name, Status: status, Message: fmt.Sprintf(format, args...)}
	r.Checks = append(r.Checks, c)
	if status != Pass {
		log.Warn("preflight check not passing", "check", name, "status", string(status), "message", c.Message)
	}
}

// Env is what the checks inspect. Zero-valued hooks fall back to the host.
type Env struct {
	Devices        func() []mediadev.Device
	Memory         func() (*mem.VirtualMemoryStat, error)
	SpoolDir       string
	HandoffPath    string
	MaxBufferBytes int64
	NeedAudio      bool
}

// Run executes every check.
func Run(env Env) Report {
	if env.Devices == nil {
		env.Devices = mediadev.Enumerate
	}
	if env.Memory == nil {
		env.Memory = mem.VirtualMemory
	}

	var r Report
	checkDevices(&r, env)
	checkMemory(&r, env)
	checkSpool(&r, env.SpoolDir)
	checkHandoff(&r, env.HandoffPath)
	return r
}

func checkDevices(r *Report, env Env) {
	var video, audio int
	for _, d := range env.Devices() {
		switch d.Kind {
		case "video-input":
			video++
		case "audio-input":
			audio++
		}
	}
	switch {
	case video == 0:
		r.add("video devices", Fail, "no camera or display capture driver registered")
	default:
		r.add("video devices", Pass, "%d found", video)
	}
	switch {
	case audio == 0 && env.NeedAudio:
		r.add("audio devices", Warn, "no microphone found, recording without it")
	case audio == 0:
		r.add("audio devices", Pass, "none found, not requested")
	default:
		r.add("audio devices", Pass, "%d found", audio)
	}
}

func checkMemory(r *Report, env Env) {
	vm, err := env.Memory()
	if err != nil {
		r.add("memory", Warn, "cannot read memory stats: %v", err)
		return
	}
	rec := RecommendedBufferLimit(vm.Available)
	switch {
	case env.MaxBufferBytes <= 0:
		r.add("memory", Warn, "buffer is unbounded, %s available (suggest max_buffer_bytes %s)",
			humanize.IBytes(vm.Available), humanize.IBytes(uint64(rec)))
	case uint64(env.MaxBufferBytes) > vm.Available:
		r.add("memory", Fail, "buffer limit %s exceeds available memory %s",
			humanize.IBytes(uint64(env.MaxBufferBytes)), humanize.IBytes(vm.Available))
	case env.MaxBufferBytes > rec:
		r.add("memory", Warn, "buffer limit %s is more than half of available memory %s",
			humanize.IBytes(uint64(env.MaxBufferBytes)), humanize.IBytes(vm.Available))
	default:
		r.add("memory", Pass, "buffer limit %s, %s available",
			humanize.IBytes(uint64(env.MaxBufferBytes)), humanize.IBytes(vm.Available))
	}
}

// RecommendedBufferLimit returns half of available memory, the most the
// chunk buffer should hold.
func RecommendedBufferLimit(available uint64) int64 {
	return int64(available / 2)
}

func checkSpool(r *Report, dir string) {
	if dir == "" {
		r.add("spool dir", Fail, "not configured")
		return
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		r.add("spool dir", Fail, "cannot create %s: %v", dir, err)
		return
	}
	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		r.add("spool dir", Fail, "%s is not writable: %v", dir, err)
		return
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	r.add("spool dir", Pass, "%s", dir)
}

func checkHandoff(r *Report, path string) {
	if path == "" {
		r.add("handoff slot", Fail, "not configured")
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		r.add("handoff slot", Fail, "cannot create %s: %v", filepath.Dir(path), err)
		return
	}
	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	switch {
	case err != nil:
		r.add("handoff slot", Fail, "cannot lock %s: %v", path, err)
	case !ok:
		r.add("handoff slot", Warn, "%s is locked by another process", path)
	default:
		_ = lock.Unlock()
		r.add("handoff slot", Pass, "%s", path)
	}
}

// worse returns true if a is worse than b.
func worse(a, b Status) bool {
	return statusRank(a) > statusRank(b)
}

func statusRank(s Status) int {
	switch s {
	case Warn:
		return 1
	case Fail:
		return 2
	default:
		return 0
	}
}
