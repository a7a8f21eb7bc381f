package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"memagent/config"
	"memagent/eventloop"
	"memagent/process_blob"
	"memagent/rpc"
)

type fixture struct {
	agent  *Agent
	engine *process_blob.ProcessDump
	sink   *rpc.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	loop := eventloop.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-loop.Done()
	})
	engine := process_blob.NewSample()
	sink := rpc.NewRecorder()
	return &fixture{agent: New(engine, loop, sink, config.Default()), engine: engine, sink: sink}
}

// call invokes method and returns the result as generic JSON.
func (f *fixture) call(t *testing.T, method string, params any) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := f.agent.Call(ctx, method, params)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("%s: marshal result: %v", method, err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	return out, nil
}

func (f *fixture) mustCall(t *testing.T, method string, params any) any {
	t.Helper()
	v, err := f.call(t, method, params)
	if err != nil {
		t.Fatalf("%s: %v", method, err)
	}
	return v
}

func obj(t *testing.T, v any) map[string]any {
	t.Helper()
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("result %T is not an object", v)
	}
	return m
}

func TestPingAndArch(t *testing.T) {
	f := newFixture(t)

	pong := obj(t, f.mustCall(t, "ping", nil))
	if pong["pong"] != true || pong["timestamp"].(float64) <= 0 {
		t.Errorf("ping = %v", pong)
	}

	arch := obj(t, f.mustCall(t, "get_arch", nil))
	if arch["arch"] != "x64" || arch["platform"] != "linux" || arch["pointerSize"] != 8.0 {
		t.Errorf("get_arch = %v", arch)
	}
}

func TestIntrospection(t *testing.T) {
	f := newFixture(t)

	info := obj(t, f.mustCall(t, "get_process_info", nil))
	if info["pid"] != 4242.0 {
		t.Errorf("process info = %v", info)
	}

	modules := f.mustCall(t, "enumerate_modules", nil).([]any)
	if len(modules) != 2 {
		t.Errorf("modules = %v", modules)
	}

	exports := f.mustCall(t, "enumerate_exports", map[string]any{"module": "libc.so.6"}).([]any)
	if len(exports) != 2 {
		t.Errorf("exports = %v", exports)
	}

	if _, err := f.call(t, "enumerate_exports", map[string]any{"module": "nope.so"}); err == nil || !strings.Contains(err.Error(), "nope.so") {
		t.Errorf("unknown module: %v", err)
	}

	threads := f.mustCall(t, "enumerate_threads", nil).([]any)
	if len(threads) != 2 {
		t.Errorf("threads = %v", threads)
	}
}

func TestEnumerateRanges(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		protection string
		want       int
	}{
		{"r--", 4},
		{"rw-", 1},
		{"r-x", 2},
		{"---", 5},
	}
	for _, tt := range tests {
		ranges := f.mustCall(t, "enumerate_ranges", map[string]any{"protection": tt.protection}).([]any)
		if len(ranges) != tt.want {
			t.Errorf("protection %q: %d ranges, want %d", tt.protection, len(ranges), tt.want)
		}
	}

	first := obj(t, f.mustCall(t, "enumerate_ranges", nil).([]any)[0])
	if first["base"] != process_blob.SampleCodeBase.ToString() || first["protection"] != "r-x" {
		t.Errorf("first range = %v", first)
	}

	if _, err := f.call(t, "enumerate_ranges", map[string]any{"protection": "rwz"}); err == nil {
		t.Error("bad protection accepted")
	}
}

func TestResolveSymbol(t *testing.T) {
	f := newFixture(t)

	sym := obj(t, f.mustCall(t, "resolve_symbol", map[string]any{"name": "malloc"}))
	if sym["address"] != process_blob.SampleMalloc.ToString() {
		t.Errorf("malloc = %v", sym)
	}

	sym = obj(t, f.mustCall(t, "resolve_symbol", map[string]any{"name": "main", "module": "sample"}))
	if sym["address"] != process_blob.SampleMain.ToString() {
		t.Errorf("sample!main = %v", sym)
	}

	if _, err := f.call(t, "resolve_symbol", map[string]any{"name": "nope"}); err == nil {
		t.Error("unknown symbol resolved")
	}
}

func TestMemoryReadWrite(t *testing.T) {
	f := newFixture(t)
	heap := process_blob.SampleHeapBase.ToString()

	got := obj(t, f.mustCall(t, "memory_read", map[string]any{
		"address":   process_blob.SampleRodataBase.ToString(),
		"valueType": "utf8",
	}))
	if got["value"] != process_blob.SampleGreeting {
		t.Errorf("greeting = %v", got)
	}

	w := obj(t, f.mustCall(t, "memory_write", map[string]any{"address": heap, "valueType": "s64", "value": "-9223372036854775808"}))
	if w["bytesWritten"] != 8.0 {
		t.Errorf("write = %v", w)
	}
	got = obj(t, f.mustCall(t, "memory_read", map[string]any{"address": heap, "valueType": "s64"}))
	if got["value"] != "-9223372036854775808" {
		t.Errorf("s64 round trip = %v", got)
	}

	// numeric value sent as a JSON number
	f.mustCall(t, "memory_write", map[string]any{"address": heap, "valueType": "u16", "value": 513})
	bytes := obj(t, f.mustCall(t, "memory_read_bytes", map[string]any{"address": heap, "size": 2}))
	if bytes["bytes"] != "0102" {
		t.Errorf("read bytes = %v", bytes)
	}

	if _, err := f.call(t, "memory_write", map[string]any{"address": process_blob.SampleRodataBase.ToString(), "valueType": "u8", "value": "1"}); err == nil {
		t.Error("write to read-only memory succeeded")
	}
	if _, err := f.call(t, "memory_read", map[string]any{"address": "0x10", "valueType": "u8"}); err == nil {
		t.Error("read of unmapped memory succeeded")
	}
}

func TestSizeLimits(t *testing.T) {
	f := newFixture(t)
	heap := process_blob.SampleHeapBase.ToString()

	tests := []struct {
		method string
		params map[string]any
		want   string
	}{
		{"memory_read_bytes", map[string]any{"address": heap}, `"size"`},
		{"memory_read_bytes", map[string]any{"address": heap, "size": 0}, "size must be"},
		{"memory_read_bytes", map[string]any{"address": heap, "size": 2 << 20}, "size must be"},
		{"memory_hexdump", map[string]any{"address": heap, "size": 4097}, "size must be"},
		{"disassemble", map[string]any{"address": heap, "count": 257}, "count must be"},
		{"memory_read", map[string]any{"address": "0xzz", "valueType": "u8"}, `"address"`},
		{"memory_read", map[string]any{"address": heap, "valueType": "u128"}, "u128"},
	}
	for _, tt := range tests {
		_, err := f.call(t, tt.method, tt.params)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s %v: error %v, want mention of %s", tt.method, tt.params, err, tt.want)
		}
	}
}

func TestHexdump(t *testing.T) {
	f := newFixture(t)

	dump := obj(t, f.mustCall(t, "memory_hexdump", map[string]any{"address": process_blob.SampleRodataBase.ToString(), "size": 32}))
	text := dump["text"].(string)
	if !strings.Contains(text, "68 65 6c 6c") || !strings.Contains(text, "hello") {
		t.Errorf("hexdump:\n%s", text)
	}
	if dump["size"] != 32.0 {
		t.Errorf("size = %v", dump["size"])
	}
}

func TestDisassemble(t *testing.T) {
	f := newFixture(t)

	insts := f.mustCall(t, "disassemble", map[string]any{"address": process_blob.SampleMain.ToString(), "count": 5}).([]any)
	if len(insts) != 5 {
		t.Fatalf("got %d instructions", len(insts))
	}
	first := obj(t, insts[0])
	if first["mnemonic"] != "push" || first["address"] != process_blob.SampleMain.ToString() {
		t.Errorf("first = %v", first)
	}
	if last := obj(t, insts[4]); last["mnemonic"] != "ret" {
		t.Errorf("last = %v", last)
	}

	// stops at the end of the region
	end := process_blob.SampleLibcBase + 2*process_blob.SampleRegionSize - 1
	insts = f.mustCall(t, "disassemble", map[string]any{"address": end.ToString(), "count": 10}).([]any)
	if len(insts) != 1 {
		t.Errorf("got %d instructions at region end", len(insts))
	}
}

func TestListMethods(t *testing.T) {
	f := newFixture(t)

	methods := f.mustCall(t, "list_methods", nil).([]any)
	have := map[string]bool{}
	for _, m := range methods {
		have[m.(string)] = true
	}
	for _, want := range []string{
		"ping", "get_arch", "memory_freeze_add", "memory_freeze_read", "memory_watch_clear",
		"interceptor_attach", "interceptor_flush", "attach_module_observer", "set_exception_handler",
		"memory_scan_async", "memory_scan_abort", "disassemble", "list_methods",
	} {
		if !have[want] {
			t.Errorf("method %s not registered", want)
		}
	}
}

func TestMissingParameterNamed(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		method string
		params map[string]any
		param  string
	}{
		{"memory_read", map[string]any{"valueType": "u8"}, "address"},
		{"memory_write", map[string]any{"address": "0x600000", "valueType": "u8"}, "value"},
		{"memory_freeze_add", map[string]any{"address": "0x600000", "value": "1"}, "valueType"},
		{"memory_watch_add", map[string]any{"valueType": "u8"}, "address"},
		{"interceptor_attach", map[string]any{}, "target"},
		{"memory_scan_async", map[string]any{}, "pattern"},
		{"resolve_symbol", map[string]any{}, "name"},
	}
	for _, tt := range tests {
		v, err := f.call(t, tt.method, tt.params)
		if err == nil {
			t.Errorf("%s: succeeded with %v", tt.method, v)
			continue
		}
		if !strings.Contains(err.Error(), `"`+tt.param+`"`) {
			t.Errorf("%s: error %q does not name %s", tt.method, err, tt.param)
		}
	}
}

func TestDeferredScan(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.WriteMemory(process_blob.SampleHeapBase+0x10, []byte{0x41, 0x41, 0x41, 0x41}); err != nil {
		t.Fatal(err)
	}

	res := obj(t, f.mustCall(t, "memory_scan", map[string]any{"pattern": "41 41 41 41", "protection": "rw-", "limit": 1}))
	addrs := res["addresses"].([]any)
	if len(addrs) != 1 || addrs[0] != (process_blob.SampleHeapBase+0x10).ToString() {
		t.Errorf("scan result = %v", res)
	}
	if n := f.sink.Count("memory_scan_match"); n > 1 {
		t.Errorf("%d match events with limit 1", n)
	}
	complete := f.sink.Events("memory_scan_complete")
	if len(complete) != 1 || rpc.Fields(complete[0])["totalMatches"].(float64) > 1 {
		t.Errorf("complete = %v", complete)
	}
}

func TestShutdownReleasesEverything(t *testing.T) {
	f := newFixture(t)
	heap := process_blob.SampleHeapBase.ToString()

	f.mustCall(t, "memory_freeze_add", map[string]any{"address": heap, "valueType": "u8", "value": "7"})
	f.mustCall(t, "memory_watch_add", map[string]any{"address": heap, "valueType": "u8"})
	f.mustCall(t, "interceptor_attach", map[string]any{"target": "malloc", "onEnter": true})
	f.mustCall(t, "attach_thread_observer", nil)

	if err := f.agent.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if n := f.engine.HookCount(process_blob.SampleMalloc); n != 0 {
		t.Errorf("%d hooks left", n)
	}
	if list := f.mustCall(t, "memory_freeze_list", nil).([]any); len(list) != 0 {
		t.Errorf("freeze list = %v", list)
	}
	if list := f.mustCall(t, "memory_watch_list", nil).([]any); len(list) != 0 {
		t.Errorf("watch list = %v", list)
	}
}

func TestServeOverPipe(t *testing.T) {
	f := newFixture(t)

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	conn := rpc.NewConn(inR, outW)

	done := make(chan error, 1)
	go func() { done <- f.agent.Serve(context.Background(), conn) }()

	lines := bufio.NewScanner(outR)
	go func() {
		io.WriteString(inW, "not json\n")
		io.WriteString(inW, `{"id":1,"method":"ping"}`+"\n")
		io.WriteString(inW, `{"id":2,"method":"memory_read","params":{"valueType":"u8"}}`+"\n")
		io.WriteString(inW, `{"id":3,"method":"no_such_method"}`+"\n")
	}()

	want := []struct {
		id     int64
		result string
		has    string
	}{
		{1, rpc.ResultOK, "pong"},
		{2, rpc.ResultError, `\"address\"`},
		{3, rpc.ResultError, `unknown method \"no_such_method\"`},
	}
	for _, w := range want {
		if !lines.Scan() {
			t.Fatalf("no response for %d: %v", w.id, lines.Err())
		}
		var resp rpc.Response
		if err := json.Unmarshal(lines.Bytes(), &resp); err != nil {
			t.Fatalf("bad envelope %q: %v", lines.Text(), err)
		}
		if resp.ID != w.id || resp.Result != w.result || !strings.Contains(lines.Text(), w.has) {
			t.Errorf("response %s, want id %d %s containing %s", lines.Text(), w.id, w.result, w.has)
		}
	}

	inW.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return on EOF")
	}
}
