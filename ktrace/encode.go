package ktrace

import (
	"strconv"

	"github.com/joeycumines/go-kthread/kthread"
	"github.com/joeycumines/go-utilpkg/jsonenc"
)

// line accumulates one JSON object.
type line struct {
	buf []byte
}

func (x *line) end() {
	x.buf = append(x.buf, '}', '\n')
}

func (x *line) appendFieldSeparator() {
	if x.buf[len(x.buf)-1] != '{' {
		x.buf = append(x.buf, ',')
	}
}

func (x *line) appendKey(key string) {
	x.appendFieldSeparator()
	x.buf = jsonenc.AppendString(x.buf, key)
	x.buf = append(x.buf, ':')
}

func (x *line) addString(key, val string) {
	x.appendKey(key)
	x.buf = jsonenc.AppendString(x.buf, val)
}

func (x *line) addInt64(key string, val int64) {
	x.appendKey(key)
	x.buf = strconv.AppendInt(x.buf, val, 10)
}

// AppendEvent appends ev, encoded as a single JSON line, to dst. The run
// field is omitted if runID is empty, and other if it is zero.
func AppendEvent(dst []byte, runID string, ev kthread.TraceEvent) []byte {
	x := line{buf: dst}
	x.buf = append(x.buf, '{')
	if runID != `` {
		x.addString(`run`, runID)
	}
	x.addString(`kind`, ev.Kind.String())
	x.addInt64(`tick`, ev.Tick)
	x.addInt64(`tid`, int64(ev.TID))
	x.addString(`name`, ev.Name)
	x.addInt64(`priority`, int64(ev.Priority))
	if ev.Other != 0 {
		x.addInt64(`other`, int64(ev.Other))
	}
	x.end()
	return x.buf
}
