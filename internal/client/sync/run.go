package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/iudanet/gophsync/internal/models"
)

//go:generate moq -out subscriber_mock.go . Subscriber

// Subscriber delivers push notifications about changed collections.
// The channel is closed when the subscription ends.
type Subscriber interface {
	Subscribe(ctx context.Context, path string) (<-chan models.Notification, error)
}

// Run subscribes to push notifications on path, runs the first pass
// immediately and then a debounced pass after every burst of notifications.
//
// Passes run outside the notification loop: a burst that ends while a pass
// is running requests the single follow-up pass, which starts as soon as the
// running one finishes. Run returns when ctx is done or the subscription is
// closed, after the started passes have finished.
func (c *Coordinator) Run(ctx context.Context, sub Subscriber, path string) error {
	notes, err := sub.Subscribe(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", path, err)
	}

	var wg gosync.WaitGroup
	defer wg.Wait()

	start := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.runPass(ctx)
		}()
	}

	start()

	d := &debouncer{wait: c.cfg.Debounce, max: c.cfg.MaxDelay}
	// Reset без слива канала корректен для таймеров Go 1.23+
	timer := time.NewTimer(c.cfg.MaxDelay)
	timer.Stop()
	defer timer.Stop()

	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case n, ok := <-notes:
			if !ok {
				c.logger.Info("Push subscription closed", "path", path)
				return nil
			}
			c.logger.Debug("Push notification received",
				"collection", n.CollectionID,
				"timestamp", n.Timestamp)

			timer.Reset(d.next(time.Now()))
			timerC = timer.C

		case <-timerC:
			timerC = nil
			d.fired()
			start()
		}
	}
}

func (c *Coordinator) runPass(ctx context.Context) {
	res, err := c.Sync(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		c.logger.Debug("Sync pass canceled")
	default:
		c.logger.Error("Sync pass failed", "error", err)
		return
	}
	if res.Queued {
		c.logger.Debug("Sync pass queued behind a running one")
	}
}
