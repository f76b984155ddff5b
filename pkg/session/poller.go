package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/plugmeter/plugmeter/pkg/log"
	"github.com/plugmeter/plugmeter/pkg/metrics"
)

// ReadTimeout bounds a single plug or history read.
const ReadTimeout = 15 * time.Second

// Poller reads the active device on a fixed interval.
type Poller struct {
	manager  *Manager
	metrics  *metrics.Metrics
	interval time.Duration
}

// ConfiguredPoller registers the poll-interval flag.
func ConfiguredPoller(mgr *Manager, m *metrics.Metrics) *Poller {
	interval := lflag.Duration("poll-interval", 10*time.Second, "How often the active device is read")

	p := NewPoller(mgr, m, 10*time.Second)
	lflag.Do(func() {
		p.interval = *interval
	})
	return p
}

// NewPoller creates a Poller for the manager's active device.
func NewPoller(mgr *Manager, m *metrics.Metrics, interval time.Duration) *Poller {
	return &Poller{manager: mgr, metrics: m, interval: interval}
}

// Run polls until ctx is done and then waits for pending writes. Ticks that
// arrive while a poll is running are dropped by the ticker.
func (p *Poller) Run(ctx context.Context) error {
	if p.interval <= 0 {
		return errors.New("poll interval must be positive")
	}
	log.Ctx(ctx).InfoContext(ctx, "starting poller", slog.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Ctx(ctx).InfoContext(ctx, "stopping poller, waiting for pending writes")
			p.manager.Wait()
			return nil
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if _, err := p.Poll(ctx); err != nil && !errors.Is(err, ErrNoDevice) && !errors.Is(err, ErrStale) {
		log.Ctx(ctx).WarnContext(ctx, "poll failed", slog.Any("error", err))
	}
}

// Poll reads the active device once and processes the reading.
func (p *Poller) Poll(ctx context.Context) (Update, error) {
	p.manager.Refresh(p.manager.now())

	device, gen, err := p.manager.Active()
	if err != nil {
		return Update{}, err
	}
	ctx = log.WithDevice(ctx, device.ID)

	readCtx, cancel := context.WithTimeout(ctx, ReadTimeout)
	r, err := p.manager.plugs.ReadPower(readCtx, device.ID)
	cancel()
	p.metrics.Poll(device.ID, err)
	if err != nil {
		return Update{}, err
	}

	u, err := p.manager.Accept(ctx, gen, r)
	if errors.Is(err, ErrStale) {
		log.Ctx(ctx).DebugContext(ctx, "discarding reading for previous selection")
	}
	return u, err
}
