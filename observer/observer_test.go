package observer

import (
	"encoding/json"
	"testing"

	"memagent/process"
	"memagent/process_blob"
	"memagent/rpc"
)

func TestSingleton(t *testing.T) {
	r := New(process_blob.NewSample(), rpc.Discard)

	for _, k := range []Kind{Modules, Threads, Exceptions} {
		first, err := r.Attach(k)
		if err != nil || first.Status != StatusAttached {
			t.Fatalf("%s first attach = %+v, %v", k, first, err)
		}
		second, err := r.Attach(k)
		if err != nil || second.Status != StatusAlreadyRunning {
			t.Errorf("%s second attach = %+v, %v", k, second, err)
		}
	}
}

func TestModuleEvents(t *testing.T) {
	p := process_blob.NewSample()
	sink := rpc.NewRecorder()
	r := New(p, sink)

	r.Attach(Modules)
	p.AddModule(process.Module{Name: "libm.so.6", Base: 0x7f0000100000, Size: 0x1000})
	p.RemoveModule("libm.so.6")

	added := sink.Events("module_added")
	if len(added) != 1 || rpc.Fields(added[0])["name"] != "libm.so.6" || rpc.Fields(added[0])["base"] != "0x7f0000100000" {
		t.Errorf("module_added = %+v", added)
	}
	if sink.Count("module_removed") != 1 {
		t.Error("no module_removed event")
	}

	st, _ := r.Detach(Modules)
	if st.Status != StatusDetached {
		t.Errorf("detach = %+v", st)
	}
	p.AddModule(process.Module{Name: "libz.so.1"})
	if sink.Count("module_added") != 1 {
		t.Error("event after detach")
	}
	if st, _ := r.Detach(Modules); st.Status != StatusNotRunning {
		t.Errorf("second detach = %+v", st)
	}
	if st, _ := r.Attach(Modules); st.Status != StatusAttached {
		t.Errorf("reattach = %+v", st)
	}
}

func TestThreadEvents(t *testing.T) {
	p := process_blob.NewSample()
	sink := rpc.NewRecorder()
	r := New(p, sink)
	r.Attach(Threads)

	p.AddThread(process.Thread{ID: 1003, Name: "gc"})
	p.RenameThread(1003, "gc-worker")
	p.RemoveThread(1003)

	renamed := sink.Events("thread_renamed")
	if sink.Count("thread_added") != 1 || sink.Count("thread_removed") != 1 || len(renamed) != 1 {
		t.Fatalf("events = %+v", sink.Events(""))
	}
	f := rpc.Fields(renamed[0])
	if f["previousName"] != "gc" || f["name"] != "gc-worker" {
		t.Errorf("thread_renamed = %v", f)
	}
}

func TestExceptionNeverSuppressed(t *testing.T) {
	p := process_blob.NewSample()
	sink := rpc.NewRecorder()
	r := New(p, sink)
	r.Attach(Exceptions)

	handled := p.RaiseException(process.ExceptionDetails{
		Type:     "access-violation",
		Address:  0x41414141,
		ThreadID: 1001,
		Memory:   &process.ExceptionMemory{Operation: "read", Address: 0x41414141},
	})
	if handled {
		t.Error("exception handler suppressed the exception")
	}

	events := sink.Events("native_exception")
	if len(events) != 1 {
		t.Fatalf("native_exception events = %d", len(events))
	}
	f := rpc.Fields(events[0])
	if f["type"] != "access-violation" || f["address"] != "0x41414141" {
		t.Errorf("payload = %v", f)
	}
}

func TestRegisterMethods(t *testing.T) {
	router := rpc.NewRouter()
	New(process_blob.NewSample(), rpc.Discard).Register(router)

	var got []string
	for _, m := range []string{"attach_thread_observer", "attach_thread_observer", "detach_thread_observer"} {
		router.Dispatch(rpc.Request{Method: m, Params: json.RawMessage(`{}`)}, func(resp rpc.Response) {
			got = append(got, resp.Returns.(Status).Status)
		})
	}
	want := []string{StatusAttached, StatusAlreadyRunning, StatusDetached}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d status = %s, want %s", i, got[i], want[i])
		}
	}
}
