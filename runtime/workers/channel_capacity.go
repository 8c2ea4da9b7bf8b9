package workers

import (
	"context"
	"log/slog"
	"reflect"
	"time"
)

type NamedChannel struct {
	Name    string
	Channel any
}

type ChannelObserver interface {
	ObserveChannel(name string, length, capacity int)
}

// ChannelCapacityWorker periodically samples the length and capacity of
// internal channels. Reading len and cap never blocks the producers.
// A warning is logged when the free space drops under lowCapacityPercent.
type ChannelCapacityWorker struct {
	log                *slog.Logger
	channels           []NamedChannel
	observer           ChannelObserver
	interval           time.Duration
	lowCapacityPercent int
}

func NewChannelCapacityWorker(log *slog.Logger, channels []NamedChannel, observer ChannelObserver,
	interval time.Duration, lowCapacityPercent int) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log:                log,
		channels:           channels,
		observer:           observer,
		interval:           interval,
		lowCapacityPercent: lowCapacityPercent,
	}
}

func (w *ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Sample()
		}
	}
}

func (w *ChannelCapacityWorker) Sample() {
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		capacity, length := v.Cap(), v.Len()
		w.observer.ObserveChannel(nc.Name, length, capacity)
		if capacity > 0 && (capacity-length)*100 < capacity*w.lowCapacityPercent {
			w.log.Warn("Channel almost full", "name", nc.Name, "length", length, "capacity", capacity)
		}
	}
}
