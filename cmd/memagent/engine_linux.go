package main

import (
	"time"

	"memagent/process"
	"memagent/process_linux"
)

func openLive(pid int, name string, poll time.Duration) (process.Engine, error) {
	var p *process_linux.LinuxProcess
	var err error
	if name != "" {
		p, err = process_linux.OpenByName(name)
	} else {
		p, err = process_linux.Open(process.ProcessID(pid))
	}
	if err != nil {
		return nil, err
	}
	p.SetPollInterval(poll)
	return p, nil
}
