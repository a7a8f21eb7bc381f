package rpc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestConnReadRequest(t *testing.T) {
	in := strings.NewReader("\n{\"id\":1,\"method\":\"ping\"}\nnot json\n{\"id\":2,\"method\":\"memory_read\",\"params\":{\"address\":\"0x10\"}}\n")
	c := NewConn(in, io.Discard)

	req, err := c.ReadRequest()
	if err != nil || req.ID != 1 || req.Method != "ping" {
		t.Fatalf("first request = %+v, %v", req, err)
	}

	_, err = c.ReadRequest()
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("second read error = %v, want ErrMalformed", err)
	}

	req, err = c.ReadRequest()
	if err != nil || req.ID != 2 || string(req.Params) != `{"address":"0x10"}` {
		t.Fatalf("third request = %+v, %v", req, err)
	}

	if _, err = c.ReadRequest(); err != io.EOF {
		t.Fatalf("read at end = %v, want EOF", err)
	}
}

func TestConnWritesEnvelopes(t *testing.T) {
	pr, pw := io.Pipe()
	c := NewConn(strings.NewReader(""), pw)

	go func() {
		c.WriteResponse(okResponse(5, map[string]int{"count": 2}))
		c.Emit("memory_watch_cleared", map[string]int{"count": 3})
		pw.Close()
	}()

	sc := bufio.NewScanner(pr)
	var lines [][]byte
	for sc.Scan() {
		lines = append(lines, bytes.Clone(sc.Bytes()))
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	var resp struct {
		ID      int64          `json:"id"`
		Result  string         `json:"result"`
		Returns map[string]int `json:"returns"`
	}
	if err := json.Unmarshal(lines[0], &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID != 5 || resp.Result != "ok" || resp.Returns["count"] != 2 {
		t.Errorf("response = %+v", resp)
	}

	var ev Event
	if err := json.Unmarshal(lines[1], &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Name != "memory_watch_cleared" || Fields(ev)["count"] != float64(3) {
		t.Errorf("event = %+v", ev)
	}
}

func TestEventMarshalFlattens(t *testing.T) {
	data, err := json.Marshal(Event{Name: "memory_scan_started", Payload: struct {
		ScanID      string `json:"scanId"`
		TotalRanges int    `json:"totalRanges"`
	}{"scan_1", 4}})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	json.Unmarshal(data, &m)
	if m["event"] != "memory_scan_started" || m["scanId"] != "scan_1" || m["totalRanges"] != float64(4) {
		t.Errorf("marshalled = %s", data)
	}

	if _, err := json.Marshal(Event{Name: "bad", Payload: 3}); err == nil {
		t.Error("non-object payload marshalled without error")
	}
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.Emit("a", nil)
	r.Emit("b", map[string]int{"n": 1})
	r.Emit("a", nil)

	if r.Count("a") != 2 || r.Count("") != 3 {
		t.Errorf("counts a=%d all=%d", r.Count("a"), r.Count(""))
	}
	if !r.WaitFor("b", 1, 0) {
		t.Error("WaitFor b")
	}
	r.Reset()
	if r.Count("") != 0 {
		t.Error("Reset left events")
	}
}
