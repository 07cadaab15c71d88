package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

type serializedValue struct {
	Time    time.Time       `json:"time"`
	Preview string          `json:"preview"`
	Value   json.RawMessage `json:"value,omitempty"`
}

// serialize tries to serialize as much as it can of v.
func serialize(v interface{}) (sv *serializedValue) {
	sv = &serializedValue{
		Time:    time.Now(),
		Preview: fmt.Sprintf("%v", v),
	}
	data, err := json.Marshal(v)
	if err == nil {
		sv.Value = data
	}
	return
}

// Recorder writes every value of a multiplexer to w as one JSON object per line.
type Recorder[E any] struct {
	lock sync.Mutex
	w    io.Writer
}

func NewRecorder[E any](w io.Writer) *Recorder[E] {
	return &Recorder[E]{w: w}
}

func (r *Recorder[E]) Record(e E) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	buf := new(bytes.Buffer)
	err := json.NewEncoder(buf).Encode(serialize(e))
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	_, err = io.Copy(r.w, buf)
	if err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	return nil
}

// Run records everything m sends until ctx is done.
func (r *Recorder[E]) Run(ctx context.Context, m *Multiplexer[E]) error {
	ch := make(chan E, senderQueue)
	m.Subscribe("trace recorder", ch)
	defer m.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-ch:
			if err := r.Record(e); err != nil {
				zap.S().Errorw("trace: record failed", "err", err)
			}
		}
	}
}
