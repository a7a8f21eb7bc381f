package agent

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"memagent/codec"
	"memagent/config"
	"memagent/disasm"
	"memagent/hexdump"
	"memagent/interceptor"
	"memagent/process"
	"memagent/process/memory_map"
	"memagent/rpc"

	"github.com/samber/lo"
)

// Range is one entry of enumerate_ranges.
type Range struct {
	Base       string `json:"base"`
	Size       uint   `json:"size"`
	Protection string `json:"protection"`
	Path       string `json:"path,omitempty"`
}

type Symbol struct {
	Name    string `json:"name"`
	Module  string `json:"module,omitempty"`
	Address string `json:"address"`
}

// handle registers a method whose params decode into P.
func handle[P any](router *rpc.Router, method string, fn func(P) (any, error)) {
	router.Handle(method, func(params json.RawMessage) (any, error) {
		var p P
		if err := rpc.Decode(params, &p); err != nil {
			return nil, err
		}
		return fn(p)
	})
}

type none struct{}

func (a *Agent) registerCapabilities() {
	handle(a.router, "ping", func(none) (any, error) {
		return map[string]any{"pong": true, "timestamp": time.Now().UnixMilli()}, nil
	})
	handle(a.router, "get_arch", func(none) (any, error) {
		return map[string]any{
			"arch":        a.engine.Arch(),
			"platform":    a.engine.Platform(),
			"pointerSize": a.engine.PointerSize(),
		}, nil
	})
	handle(a.router, "get_process_info", func(none) (any, error) {
		info, err := a.engine.ProcessInfo()
		if err != nil {
			return nil, rpc.Enginef(err, "process info")
		}
		return info, nil
	})
	handle(a.router, "enumerate_modules", func(none) (any, error) {
		modules, err := a.engine.EnumerateModules()
		if err != nil {
			return nil, rpc.Enginef(err, "enumerate modules")
		}
		return orEmpty(modules), nil
	})
	handle(a.router, "enumerate_exports", a.enumerateExports)
	handle(a.router, "enumerate_threads", func(none) (any, error) {
		threads, err := a.engine.EnumerateThreads()
		if err != nil {
			return nil, rpc.Enginef(err, "enumerate threads")
		}
		return orEmpty(threads), nil
	})
	handle(a.router, "enumerate_ranges", a.enumerateRanges)
	handle(a.router, "resolve_symbol", a.resolveSymbol)
	handle(a.router, "memory_read", a.memoryRead)
	handle(a.router, "memory_write", a.memoryWrite)
	handle(a.router, "memory_read_bytes", a.memoryReadBytes)
	handle(a.router, "memory_hexdump", a.memoryHexdump)
	handle(a.router, "disassemble", a.disassemble)
	handle(a.router, "list_methods", func(none) (any, error) {
		return a.router.Methods(), nil
	})
}

func orEmpty[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}

func (a *Agent) enumerateExports(p struct {
	Module *string `json:"module"`
}) (any, error) {
	module, err := rpc.RequireString("module", p.Module)
	if err != nil {
		return nil, err
	}
	exports, err := a.engine.EnumerateExports(module)
	if errors.Is(err, process.ErrSymbolNotFound) {
		return nil, rpc.Resolutionf("module %q", module)
	}
	if err != nil {
		return nil, rpc.Enginef(err, "enumerate exports of %s", module)
	}
	return orEmpty(exports), nil
}

func (a *Agent) enumerateRanges(p struct {
	Protection *string `json:"protection"`
}) (any, error) {
	protection := rpc.OrDefault(p.Protection, "r--")
	if err := memory_map.ValidateProtection(protection); err != nil {
		return nil, rpc.Validationf("%v", err)
	}
	if err := a.engine.UpdateMemoryMap(); err != nil {
		return nil, rpc.Enginef(err, "refresh memory map")
	}
	mm, err := a.engine.GetMemoryMap()
	if err != nil {
		return nil, rpc.Enginef(err, "enumerate ranges")
	}
	ranges := lo.Map(memory_map.FilterByProtection(mm, protection), func(item memory_map.MemoryMapItem, _ int) Range {
		return Range{
			Base:       process.ProcessMemoryAddress(item.Address).ToString(),
			Size:       item.Size,
			Protection: item.Protection(),
			Path:       item.Path,
		}
	})
	return orEmpty(ranges), nil
}

func (a *Agent) resolveSymbol(p struct {
	Name   *string `json:"name"`
	Module string  `json:"module"`
}) (any, error) {
	name, err := rpc.RequireString("name", p.Name)
	if err != nil {
		return nil, err
	}
	target := name
	if p.Module != "" {
		target = p.Module + "!" + name
	}
	addr, err := interceptor.ResolveTarget(a.engine, target)
	if err != nil {
		return nil, err
	}
	return Symbol{Name: name, Module: p.Module, Address: addr.ToString()}, nil
}

func (a *Agent) memoryRead(p struct {
	Address   *string `json:"address"`
	ValueType *string `json:"valueType"`
	Length    int     `json:"length"`
}) (any, error) {
	addr, err := rpc.RequireAddress("address", p.Address)
	if err != nil {
		return nil, err
	}
	kind, err := requireKind(p.ValueType)
	if err != nil {
		return nil, err
	}
	if p.Length < 0 {
		return nil, rpc.Validationf("length must not be negative")
	}
	value, err := codec.ReadValue(a.engine, addr, kind, p.Length)
	if err != nil {
		return nil, rpc.Enginef(err, "read %s at %s", kind, addr.ToString())
	}
	return map[string]string{"address": addr.ToString(), "valueType": string(kind), "value": value}, nil
}

func (a *Agent) memoryWrite(p struct {
	Address   *string   `json:"address"`
	ValueType *string   `json:"valueType"`
	Value     *rpc.Text `json:"value"`
}) (any, error) {
	addr, err := rpc.RequireAddress("address", p.Address)
	if err != nil {
		return nil, err
	}
	kind, err := requireKind(p.ValueType)
	if err != nil {
		return nil, err
	}
	value, err := rpc.RequireText("value", p.Value)
	if err != nil {
		return nil, err
	}
	raw, err := codec.Encode(value, kind)
	if err != nil {
		return nil, rpc.Validationf("value %q: %v", value, err)
	}
	if err := a.engine.WriteMemory(addr, raw); err != nil {
		return nil, rpc.Enginef(err, "write %s at %s", kind, addr.ToString())
	}
	return map[string]any{"address": addr.ToString(), "bytesWritten": len(raw)}, nil
}

func requireKind(v *string) (codec.Kind, error) {
	tag, err := rpc.RequireString("valueType", v)
	if err != nil {
		return "", err
	}
	kind, err := codec.ParseKind(tag)
	if err != nil {
		return "", rpc.Validationf("%v", err)
	}
	return kind, nil
}

type sizedRead struct {
	Address *string `json:"address"`
	Size    *int    `json:"size"`
}

func (a *Agent) readSized(p sizedRead, def, limit int) (process.ProcessMemoryAddress, []byte, error) {
	addr, err := rpc.RequireAddress("address", p.Address)
	if err != nil {
		return 0, nil, err
	}
	if def == 0 {
		if _, err := rpc.Require("size", p.Size); err != nil {
			return 0, nil, err
		}
	}
	size := rpc.OrDefault(p.Size, def)
	if size <= 0 || size > limit {
		return 0, nil, rpc.Validationf("size must be in 1..%d, got %d", limit, size)
	}
	data, err := a.engine.ReadMemory(addr, process.ProcessMemorySize(size))
	if err != nil {
		return 0, nil, rpc.Enginef(err, "read %d bytes at %s", size, addr.ToString())
	}
	return addr, data, nil
}

func (a *Agent) memoryReadBytes(p sizedRead) (any, error) {
	limit := a.cfg.MaxReadBytes
	if limit <= 0 {
		limit = config.Default().MaxReadBytes
	}
	addr, data, err := a.readSized(p, 0, limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"address": addr.ToString(), "size": len(data), "bytes": hex.EncodeToString(data)}, nil
}

func (a *Agent) memoryHexdump(p sizedRead) (any, error) {
	addr, data, err := a.readSized(p, 256, hexdump.MaxSize)
	if err != nil {
		return nil, err
	}
	mm, _ := a.engine.GetMemoryMap()
	return map[string]any{
		"address": addr.ToString(),
		"size":    len(data),
		"text":    hexdump.HexdumpBasic(data, uint64(addr), mm),
	}, nil
}

func (a *Agent) disassemble(p struct {
	Address *string `json:"address"`
	Count   *int    `json:"count"`
}) (any, error) {
	addr, err := rpc.RequireAddress("address", p.Address)
	if err != nil {
		return nil, err
	}
	count := rpc.OrDefault(p.Count, 10)
	if count <= 0 || count > disasm.MaxCount {
		return nil, rpc.Validationf("count must be in 1..%d, got %d", disasm.MaxCount, count)
	}

	code, err := a.readCode(addr, count*disasm.MaxInstructionLen(a.engine.Arch()))
	if err != nil {
		return nil, rpc.Enginef(err, "read code at %s", addr.ToString())
	}
	insts, err := disasm.Disassemble(a.engine.Arch(), code, uint64(addr), count)
	if err != nil {
		return nil, rpc.Enginef(err, "disassemble")
	}
	return orEmpty(insts), nil
}

// readCode reads up to n bytes at addr without crossing the end of its region.
func (a *Agent) readCode(addr process.ProcessMemoryAddress, n int) ([]byte, error) {
	mm, err := a.engine.GetMemoryMap()
	if err != nil {
		return nil, err
	}
	region := memory_map.GetMemoryRegionForAddress(uint64(addr), mm)
	if region == nil {
		return nil, process.ErrAddressNotMapped
	}
	n = min(n, int(region.End()-uint64(addr)))
	return a.engine.ReadMemory(addr, process.ProcessMemorySize(n))
}
