package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"memagent/agent"

	"github.com/manifoldco/promptui"
	"github.com/samber/lo"
)

// consoleSink prints events between prompts.
type consoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

func newConsoleSink(w io.Writer) *consoleSink {
	return &consoleSink{w: w}
}

func (s *consoleSink) Emit(name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(fmt.Sprintf("%q", err.Error()))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "[%s] %s\n", name, data)
}

// parseLine splits "method {json}" into its parts. Params may be omitted.
func parseLine(line string) (string, json.RawMessage, error) {
	method, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)
	if method == "" {
		return "", nil, errors.New("empty command")
	}
	if rest == "" {
		return method, nil, nil
	}
	if !json.Valid([]byte(rest)) {
		return "", nil, fmt.Errorf("params are not valid JSON: %s", rest)
	}
	return method, json.RawMessage(rest), nil
}

func runREPL(ctx context.Context, a *agent.Agent, label string, w io.Writer) error {
	methods := a.Router().Methods()
	prompt := promptui.Prompt{
		Label: label,
		Validate: func(line string) error {
			method, _, _ := strings.Cut(strings.TrimSpace(line), " ")
			if method == "" || method == "help" || method == "quit" || lo.Contains(methods, method) {
				return nil
			}
			return fmt.Errorf("unknown method %q", method)
		},
	}

	fmt.Fprintln(w, "type a method name followed by JSON params, \"help\" for the list, \"quit\" to leave")
	for ctx.Err() == nil {
		line, err := prompt.Run()
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return nil
		}
		if err != nil {
			return err
		}

		switch strings.TrimSpace(line) {
		case "":
			continue
		case "quit":
			return nil
		case "help":
			fmt.Fprintln(w, strings.Join(methods, "\n"))
			continue
		}

		method, params, err := parseLine(line)
		if err != nil {
			fmt.Fprintln(w, "error:", err)
			continue
		}
		var args any
		if params != nil {
			args = params
		}
		result, err := a.Call(ctx, method, args)
		if err != nil {
			fmt.Fprintln(w, "error:", err)
			continue
		}
		printResult(w, result)
	}
	return nil
}

// printResult renders lists of objects as a table and everything else as
// indented JSON.
func printResult(w io.Writer, result any) {
	raw, err := json.Marshal(result)
	if err != nil {
		fmt.Fprintln(w, "error:", err)
		return
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		fmt.Fprintln(w, string(raw))
		return
	}

	if rows, ok := generic.([]any); ok && len(rows) > 0 {
		if objects, ok := asObjects(rows); ok {
			tableOf(objects).Render(w)
			return
		}
	}

	pretty, _ := json.MarshalIndent(generic, "", "  ")
	fmt.Fprintln(w, string(pretty))
}

func asObjects(rows []any) ([]map[string]any, bool) {
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		m, ok := r.(map[string]any)
		if !ok {
			return nil, false
		}
		out = append(out, m)
	}
	return out, true
}
