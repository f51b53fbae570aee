package detector

import "io"

// attach wires in-memory pipes in place of a worker process.
func (w *WorkerModel) attach(stdin io.WriteCloser, stdout io.ReadCloser) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stdin = stdin
	w.stdout = stdout
}
