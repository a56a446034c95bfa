package restyutil

import (
	"strconv"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

type Output interface {
	Write(id string, contents string)
}

// Dumper writes every http exchange of the clients it instruments to an output, with
// ids shared across those clients.
type Dumper struct {
	output    Output
	idcounter atomic.Uint64
}

func NewDumper(output Output) *Dumper {
	return &Dumper{output: output}
}

func (d *Dumper) Instrument(client *resty.Client) {
	client.OnAfterResponse(d.onAfterResponse)
}

func (d *Dumper) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	if res.RawResponse == nil || res.Request.RawRequest == nil {
		return nil
	}
	id := strconv.FormatUint(d.idcounter.Add(1), 10)
	d.output.Write(id, formatHttpMessage(res))
	return nil
}
