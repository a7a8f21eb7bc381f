// Package scan sweeps the target's memory ranges for a byte pattern. One
// range is scanned per loop task, so RPC requests and aborts interleave with
// a running sweep.
package scan

import (
	"encoding/json"

	"memagent/eventloop"
	"memagent/idgen"
	"memagent/process"
	"memagent/process/memory_map"
	"memagent/rpc"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

const (
	DefaultProtection = "r--"
	DefaultLimit      = 500

	// progressEvery is how many ranges pass between progress events.
	progressEvery = 10
)

// Memory is what a scan needs from the engine.
type Memory interface {
	UpdateMemoryMap() error
	GetMemoryMap() ([]memory_map.MemoryMapItem, error)
	process.MemoryScanner
}

type run struct {
	id         string
	aob        process.AOB
	ranges     []memory_map.MemoryMapItem
	limit      int
	next       int
	matches    int
	aborted    bool
	superseded bool
	done       bool

	// set for memory_scan calls that answer with the addresses
	deferred  *rpc.Deferred
	addresses []string
}

// Controller runs at most one scan at a time. Starting a scan while another
// is running finishes the old one as aborted and superseded first.
//
// All methods must run on the event loop.
type Controller struct {
	loop         *eventloop.Loop
	mem          Memory
	sink         rpc.Sink
	defaultLimit int

	current *run
	log     *logger.Logger
}

func New(loop *eventloop.Loop, mem Memory, sink rpc.Sink) *Controller {
	return &Controller{
		loop:         loop,
		mem:          mem,
		sink:         sink,
		defaultLimit: DefaultLimit,
		log:          logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "scan")),
	}
}

func (c *Controller) SetDefaultLimit(n int) {
	if n > 0 {
		c.defaultLimit = n
	}
}

type StartParams struct {
	Pattern    *string `json:"pattern"`
	Protection *string `json:"protection"`
	Limit      *int    `json:"limit"`
}

type Started struct {
	ScanID      string `json:"scanId"`
	TotalRanges int    `json:"totalRanges"`
}

type MatchEvent struct {
	ScanID  string `json:"scanId"`
	Index   int    `json:"index"`
	Address string `json:"address"`
}

type ProgressEvent struct {
	ScanID        string `json:"scanId"`
	ScannedRanges int    `json:"scannedRanges"`
	TotalRanges   int    `json:"totalRanges"`
	Matches       int    `json:"matches"`
}

type CompleteEvent struct {
	ScanID        string `json:"scanId"`
	TotalMatches  int    `json:"totalMatches"`
	ScannedRanges int    `json:"scannedRanges"`
	TotalRanges   int    `json:"totalRanges"`
	Aborted       bool   `json:"aborted"`
	Superseded    bool   `json:"superseded"`
}

// Result answers memory_scan once the sweep is over.
type Result struct {
	ScanID    string   `json:"scanId"`
	Addresses []string `json:"addresses"`
	Aborted   bool     `json:"aborted"`
}

// Start validates the request, enumerates matching ranges and queues the
// first range. It returns before any range has been scanned.
func (c *Controller) Start(p StartParams) (Started, error) {
	r, err := c.start(p, nil)
	if err != nil {
		return Started{}, err
	}
	return Started{ScanID: r.id, TotalRanges: len(r.ranges)}, nil
}

// Collect is Start for callers that want the matched addresses: the returned
// Deferred resolves with a Result when the scan completes, aborts or is superseded.
func (c *Controller) Collect(p StartParams) (*rpc.Deferred, error) {
	d := rpc.NewDeferred()
	if _, err := c.start(p, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (c *Controller) start(p StartParams, d *rpc.Deferred) (*run, error) {
	pattern, err := rpc.RequireString("pattern", p.Pattern)
	if err != nil {
		return nil, err
	}
	aob, err := process.ParseAOB(pattern)
	if err != nil {
		return nil, rpc.Validationf("pattern: %v", err)
	}
	protection := rpc.OrDefault(p.Protection, DefaultProtection)
	if err := memory_map.ValidateProtection(protection); err != nil {
		return nil, rpc.Validationf("protection: %v", err)
	}
	limit := rpc.OrDefault(p.Limit, c.defaultLimit)
	if limit <= 0 {
		return nil, rpc.Validationf("limit must be positive, got %d", limit)
	}

	if err := c.mem.UpdateMemoryMap(); err != nil {
		c.log.Debugln("memory map refresh failed:", err)
	}
	mm, err := c.mem.GetMemoryMap()
	if err != nil {
		return nil, rpc.Enginef(err, "enumerate ranges")
	}

	if prev := c.current; prev != nil {
		prev.aborted = true
		prev.superseded = true
		c.finish(prev)
	}

	r := &run{
		id:       idgen.New("scan"),
		aob:      aob,
		ranges:   memory_map.FilterByProtection(mm, protection),
		limit:    limit,
		deferred: d,
	}
	c.current = r

	c.log.Debugln("scan", r.id, "pattern", aob.String(), "over", len(r.ranges), "ranges")
	c.sink.Emit("memory_scan_started", map[string]any{
		"scanId":      r.id,
		"totalRanges": len(r.ranges),
		"pattern":     aob.String(),
		"protection":  protection,
		"limit":       limit,
	})
	c.loop.Post(func() { c.step(r) })
	return r, nil
}

// step scans one range and queues the next.
func (c *Controller) step(r *run) {
	if r.done {
		return
	}
	if r.aborted || r.next >= len(r.ranges) || r.matches >= r.limit {
		c.finish(r)
		return
	}

	region := r.ranges[r.next]
	err := c.mem.ScanRange(process.ProcessMemoryAddress(region.Address), process.ProcessMemorySize(region.Size), r.aob,
		func(addr process.ProcessMemoryAddress) bool {
			index := r.matches
			r.matches++
			if r.deferred != nil {
				r.addresses = append(r.addresses, addr.ToString())
			}
			c.sink.Emit("memory_scan_match", MatchEvent{ScanID: r.id, Index: index, Address: addr.ToString()})
			return r.matches < r.limit && !r.aborted
		})
	if err != nil {
		c.log.Debugln("scan", r.id, "skipping", region.String(), ":", err)
	}

	r.next++
	if r.next%progressEvery == 0 {
		c.sink.Emit("memory_scan_progress", ProgressEvent{
			ScanID:        r.id,
			ScannedRanges: r.next,
			TotalRanges:   len(r.ranges),
			Matches:       r.matches,
		})
	}

	if r.next >= len(r.ranges) || r.matches >= r.limit {
		c.finish(r)
		return
	}
	c.loop.Post(func() { c.step(r) })
}

func (c *Controller) finish(r *run) {
	if r.done {
		return
	}
	r.done = true
	if c.current == r {
		c.current = nil
	}

	c.sink.Emit("memory_scan_complete", CompleteEvent{
		ScanID:        r.id,
		TotalMatches:  r.matches,
		ScannedRanges: r.next,
		TotalRanges:   len(r.ranges),
		Aborted:       r.aborted,
		Superseded:    r.superseded,
	})
	if r.deferred != nil {
		addresses := r.addresses
		if addresses == nil {
			addresses = []string{}
		}
		r.deferred.Resolve(Result{ScanID: r.id, Addresses: addresses, Aborted: r.aborted})
	}
}

type AbortResult struct {
	Aborted bool   `json:"aborted"`
	ScanID  string `json:"scanId,omitempty"`
}

// Abort flags the running scan; it stops at its next range boundary. A
// non-empty scanID must name the running scan, otherwise nothing happens.
func (c *Controller) Abort(scanID string) AbortResult {
	r := c.current
	if r == nil || r.aborted || (scanID != "" && scanID != r.id) {
		return AbortResult{ScanID: scanID}
	}
	r.aborted = true
	return AbortResult{Aborted: true, ScanID: r.id}
}

type Status struct {
	Running       bool   `json:"running"`
	ScanID        string `json:"scanId,omitempty"`
	ScannedRanges int    `json:"scannedRanges"`
	TotalRanges   int    `json:"totalRanges"`
	Matches       int    `json:"matches"`
}

func (c *Controller) Status() Status {
	r := c.current
	if r == nil {
		return Status{}
	}
	return Status{
		Running:       true,
		ScanID:        r.id,
		ScannedRanges: r.next,
		TotalRanges:   len(r.ranges),
		Matches:       r.matches,
	}
}

// Register installs the memory_scan* methods.
func (c *Controller) Register(router *rpc.Router) {
	router.Handle("memory_scan_async", func(params json.RawMessage) (any, error) {
		var p StartParams
		if err := rpc.Decode(params, &p); err != nil {
			return nil, err
		}
		return c.Start(p)
	})
	router.Handle("memory_scan", func(params json.RawMessage) (any, error) {
		var p StartParams
		if err := rpc.Decode(params, &p); err != nil {
			return nil, err
		}
		return c.Collect(p)
	})
	router.Handle("memory_scan_abort", func(params json.RawMessage) (any, error) {
		var p struct {
			ScanID string `json:"scanId"`
		}
		if err := rpc.Decode(params, &p); err != nil {
			return nil, err
		}
		return c.Abort(p.ScanID), nil
	})
	router.Handle("memory_scan_status", func(json.RawMessage) (any, error) {
		return c.Status(), nil
	})
}
