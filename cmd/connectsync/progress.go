package main

import (
	"fmt"
	"io"

	"github.com/tcmartin/connectsync/pkg/flows"
)

// progress rewrites a single "<label>: i/n" line on w
func progress(w io.Writer, label string) flows.ProgressFunc {
	return func(done, total int) {
		fmt.Fprintf(w, "\r%s: %d/%d", label, done, total)
		if done == total {
			fmt.Fprintln(w)
		}
	}
}
