package main

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/plugmeter/plugmeter/pkg/energy"
	"github.com/plugmeter/plugmeter/pkg/log"
	"github.com/plugmeter/plugmeter/pkg/plug"
	"github.com/plugmeter/plugmeter/pkg/rate"
	"github.com/plugmeter/plugmeter/pkg/storage"
	"github.com/plugmeter/plugmeter/pkg/types"
)

func main() {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	}
	s := storage.Configured()
	rates := rate.Configured(s)
	span := lflag.Duration("seed-span", 48*time.Hour, "How much history to generate")
	interval := lflag.Duration("seed-interval", time.Minute, "Time between generated readings")
	lflag.Configure()
	defer s.Close()

	ctx := context.Background()

	ids := plug.EnvCatalog(os.Getenv).IDs()
	if len(ids) == 0 {
		ids = []string{"demo-freezer", "demo-computer"}
	}

	log.Ctx(ctx).InfoContext(ctx, "seeding mock data", slog.Any("devices", ids), slog.Duration("span", *span))

	// Use a new random source
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	now := time.Now()
	for _, id := range ids {
		ctx := log.WithDevice(ctx, id)
		r, err := rates.Get(ctx, id)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to get rate", slog.Any("error", err))
			os.Exit(1)
		}

		start := now.Add(-*span)
		acc := energy.NewAccumulator(start, 0)
		batch := make([]types.Reading, 0, storage.MaxReadings)
		total := 0
		for t := start.Add(*interval); t.Before(now); t = t.Add(*interval) {
			watts := plug.SimulatedWatts(id, t)
			// evenings run hotter, nights mostly idle
			switch h := t.Hour(); {
			case h >= 18 && h < 23:
				watts *= 1.5
			case h < 6:
				watts *= 0.3
			}
			// Jitter
			watts += rng.Float64()*10 - 5
			if watts < 0 {
				watts = 0
			}

			sample, _ := acc.Sample(t, watts, r)
			batch = append(batch, types.Reading{DeviceID: id, Sample: sample})
			if len(batch) == storage.MaxReadings {
				if err := s.AppendReadings(ctx, batch); err != nil {
					log.Ctx(ctx).ErrorContext(ctx, "failed to store readings", slog.Any("error", err))
					os.Exit(1)
				}
				total += len(batch)
				batch = batch[:0]
			}
		}
		if err := s.AppendReadings(ctx, batch); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to store readings", slog.Any("error", err))
			os.Exit(1)
		}
		total += len(batch)
		log.Ctx(ctx).InfoContext(ctx, "seeded device", slog.Int("readings", total), slog.Float64("kWh", acc.Cumulative()))
	}

	log.Ctx(ctx).InfoContext(ctx, "seeding complete")
}
