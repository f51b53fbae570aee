package decoder

// Pid returns the process id of the running decoder, or 0.
func (d *Decoder) Pid() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Running || d.cmd == nil || d.cmd.Process == nil {
		return 0
	}
	return d.cmd.Process.Pid
}
