//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

type lineWatcher struct {
	chip   *gpiocdev.Chip
	line   *gpiocdev.Line
	events chan Edge
}

// Watch requests rising-edge events on the given line of the given chip
// (e.g. "/dev/gpiochip0").
func Watch(chipPath string, offset int, consumer string) (Watcher, error) {
	if offset < 0 {
		return nil, fmt.Errorf("gpio: invalid line offset %d", offset)
	}

	w := &lineWatcher{events: make(chan Edge, 4)}

	chip, err := gpiocdev.NewChip(chipPath)
	if err != nil {
		return nil, fmt.Errorf("gpio: open chip %s: %w", chipPath, err)
	}

	line, err := chip.RequestLine(offset,
		gpiocdev.AsInput,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithConsumer(consumer),
		gpiocdev.WithEventHandler(w.handle),
	)
	if err != nil {
		_ = chip.Close()
		return nil, fmt.Errorf("gpio: request line %d on %s: %w", offset, chipPath, err)
	}

	w.chip = chip
	w.line = line
	return w, nil
}

// handle runs on the gpiocdev event goroutine and must not block: on a full
// channel the oldest edge is discarded so the newest always lands.
func (w *lineWatcher) handle(evt gpiocdev.LineEvent) {
	if evt.Type != gpiocdev.LineEventRisingEdge {
		return
	}
	e := Edge{Seq: evt.LineSeqno, Mono: evt.Timestamp}
	for {
		select {
		case w.events <- e:
			return
		default:
			select {
			case <-w.events:
			default:
			}
		}
	}
}

func (w *lineWatcher) Events() <-chan Edge { return w.events }

func (w *lineWatcher) Close() error {
	if w == nil {
		return nil
	}
	var err error
	if w.line != nil {
		err = w.line.Close()
		w.line = nil
	}
	if w.chip != nil {
		_ = w.chip.Close()
		w.chip = nil
	}
	return err
}
