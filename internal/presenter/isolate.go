package presenter

import (
	"fmt"
	"runtime/debug"
)

// Isolate renders each item on its own. An item whose render fails or
// panics is reported and left out; the rest still render.
func Isolate[T, R any](items []T, render func(T) (R, error), report func(item T, err error)) []R {
	out := make([]R, 0, len(items))
	for _, item := range items {
		r, err := renderOne(item, render)
		if err != nil {
			if report != nil {
				report(item, err)
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

func renderOne[T, R any](item T, render func(T) (R, error)) (r R, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("render panic: %v\n%s", p, debug.Stack())
		}
	}()
	return render(item)
}
