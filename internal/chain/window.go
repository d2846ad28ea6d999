package chain

import "fmt"

// Window is an inclusive block range.
type Window struct {
	From uint64
	To   uint64
}

// SplitWindows splits [from, to] into consecutive windows of at most size blocks.
func SplitWindows(from, to, size uint64) ([]Window, error) {
	if size == 0 {
		return nil, fmt.Errorf("window size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	windows := make([]Window, 0, (to-from)/size+1)
	start := from
	for {
		end := to
		if to-start >= size {
			end = start + size - 1
		}
		windows = append(windows, Window{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}

	return windows, nil
}
