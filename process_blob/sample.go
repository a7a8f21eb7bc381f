package process_blob

import "memagent/process"

// Addresses of the image built by NewSample.
const (
	SampleCodeBase   process.ProcessMemoryAddress = 0x400000
	SampleRodataBase process.ProcessMemoryAddress = 0x500000
	SampleHeapBase   process.ProcessMemoryAddress = 0x600000
	SampleGuardBase  process.ProcessMemoryAddress = 0x700000
	SampleLibcBase   process.ProcessMemoryAddress = 0x7f0000000000

	SampleMalloc = SampleLibcBase + 0x100
	SampleFree   = SampleLibcBase + 0x200
	SampleMain   = SampleCodeBase + 0x40

	SampleRegionSize = 0x1000
)

// SampleGreeting is stored NUL-terminated at SampleRodataBase.
const SampleGreeting = "hello from memagent"

// NewSample builds a small x64 image: an executable with code and rodata, a
// writable heap, an inaccessible guard page and libc exporting malloc/free.
// Threads 1001 "main" and 1002 "worker" exist.
func NewSample() *ProcessDump {
	p := NewProcessDump()
	p.PID = 4242
	p.Name = "sample"

	code := make([]byte, SampleRegionSize)
	// push rbp; mov rbp, rsp; xor eax, eax; pop rbp; ret
	copy(code[SampleMain-SampleCodeBase:], []byte{0x55, 0x48, 0x89, 0xe5, 0x31, 0xc0, 0x5d, 0xc3})
	rodata := make([]byte, SampleRegionSize)
	copy(rodata, SampleGreeting+"\x00")
	libc := make([]byte, 2*SampleRegionSize)
	copy(libc[SampleMalloc-SampleLibcBase:], []byte{0xf3, 0x0f, 0x1e, 0xfa, 0xc3})
	copy(libc[SampleFree-SampleLibcBase:], []byte{0xf3, 0x0f, 0x1e, 0xfa, 0xc3})

	regions := []struct {
		addr  process.ProcessMemoryAddress
		perms string
		path  string
		data  []byte
	}{
		{SampleCodeBase, "r-xp", "/usr/bin/sample", code},
		{SampleRodataBase, "r--p", "/usr/bin/sample", rodata},
		{SampleHeapBase, "rw-p", "[heap]", make([]byte, SampleRegionSize)},
		{SampleGuardBase, "---p", "", make([]byte, SampleRegionSize)},
		{SampleLibcBase, "r-xp", "/usr/lib/libc.so.6", libc},
	}
	for _, r := range regions {
		if err := p.AddRegion(r.addr, r.perms, r.path, r.data); err != nil {
			panic(err)
		}
	}

	p.AddModule(process.Module{Name: "sample", Base: SampleCodeBase, Size: 0x101000, Path: "/usr/bin/sample"},
		process.Export{Type: process.ExportFunction, Name: "main", Address: SampleMain},
	)
	p.AddModule(process.Module{Name: "libc.so.6", Base: SampleLibcBase, Size: 2 * SampleRegionSize, Path: "/usr/lib/libc.so.6"},
		process.Export{Type: process.ExportFunction, Name: "malloc", Address: SampleMalloc},
		process.Export{Type: process.ExportFunction, Name: "free", Address: SampleFree},
	)
	p.AddThread(process.Thread{ID: 1001, Name: "main", State: "running"})
	p.AddThread(process.Thread{ID: 1002, Name: "worker", State: "waiting"})
	return p
}
