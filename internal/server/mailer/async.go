package mailer

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/cardflow/internal/logging"
	"github.com/dmitrijs2005/cardflow/internal/server/metrics"
)

// DefaultSendTimeout bounds a single background delivery.
const DefaultSendTimeout = 30 * time.Second

// AsyncMailer hands each message to a goroutine and returns at once.
// Delivery failures are logged and counted, never returned: a request
// must not fail because a mail could not be sent.
type AsyncMailer struct {
	next    Mailer
	logger  logging.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	wg sync.WaitGroup
}

func NewAsyncMailer(next Mailer, l logging.Logger, m *metrics.Metrics, timeout time.Duration) *AsyncMailer {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &AsyncMailer{
		next:    next,
		logger:  l.With("module", "async_mailer"),
		metrics: m,
		timeout: timeout,
	}
}

func (a *AsyncMailer) Send(ctx context.Context, kind Kind, recipient string, data map[string]string) error {
	// the request context is about to be cancelled; keep its values only
	sendCtx := context.WithoutCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(sendCtx, a.timeout)
		defer cancel()

		err := a.next.Send(ctx, kind, recipient, data)
		a.metrics.MailDispatch(string(kind), err)
		if err != nil {
			a.logger.Error(ctx, "email delivery failed", "kind", kind, "to", recipient, "error", err)
		}
	}()
	return nil
}

// Wait blocks until every queued message has been attempted.
func (a *AsyncMailer) Wait() {
	a.wg.Wait()
}
