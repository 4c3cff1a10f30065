package replay

import (
	"github.com/lineprof/lineprof/pkg/host"
)

type frame struct {
	file   string
	line   int
	cal    host.Callable
	parent *frame
}

func (f *frame) File() string {
	return f.file
}

func (f *frame) Line() int {
	return f.line
}

func (f *frame) Callable() host.Callable {
	return f.cal
}

func (f *frame) Caller() host.Frame {
	if f.parent == nil {
		return nil
	}
	return f.parent
}

// freeze copies the chain so snapshot consumers can walk it while the
// owning replay goroutine keeps mutating the live frames.
func (f *frame) freeze() *frame {
	cp := &frame{file: f.file, line: f.line, cal: f.cal}
	if f.parent != nil {
		cp.parent = f.parent.freeze()
	}
	return cp
}
