package controller

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/nommer/internal/common"
	"github.com/bobmcallan/nommer/internal/job"
)

// callbackTimeout bounds the total time a notifier call may take,
// matching the ≤30s ceiling from the concurrency model.
const callbackTimeout = 30 * time.Second

// Notifier fires best-effort, non-retrying callbacks to a job's
// notify_url, grounded on the original's job_state_notifier.send_notification.
// Outbound calls are rate-limited the way the teacher's eodhd client
// bounds its own outbound requests (WithRateLimit), applied here per
// process rather than per client instance.
type Notifier struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  *common.Logger
}

// NewNotifier constructs a Notifier allowing up to ratePerSecond
// outbound callback POSTs per second, bursting up to burst.
func NewNotifier(ratePerSecond float64, burst int, logger *common.Logger) *Notifier {
	return &Notifier{
		client:  &http.Client{Timeout: callbackTimeout},
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		logger:  logger,
	}
}

// Notify fires a single POST to j.NotifyURL. It never returns an error
// to the caller: failures are logged and swallowed, per the best-effort
// contract explicitly preserved from the original (spec's Design Notes
// open question: no retry).
func (n *Notifier) Notify(ctx context.Context, j *job.Job) {
	if j.NotifyURL == "" {
		return
	}

	if err := n.limiter.Wait(ctx); err != nil {
		if n.logger != nil {
			n.logger.Warn().Str("job_id", j.ID).Err(err).Msg("callback rate limiter wait failed")
		}
		return
	}

	ctx, cancel := context.WithTimeout(ctx, callbackTimeout)
	defer cancel()

	body := url.Values{
		"unique_id":         {j.ID},
		"job_state":         {string(j.State)},
		"job_state_details": {j.StateDetail},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.NotifyURL, strings.NewReader(body.Encode()))
	if err != nil {
		if n.logger != nil {
			n.logger.Warn().Str("job_id", j.ID).Err(err).Msg("building callback request failed")
		}
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		if n.logger != nil {
			n.logger.Warn().Str("job_id", j.ID).Str("notify_url", j.NotifyURL).Err(err).Msg("callback delivery failed")
		}
		return
	}
	defer resp.Body.Close()

	if n.logger != nil {
		n.logger.Info().Str("job_id", j.ID).Str("notify_url", j.NotifyURL).Int("status", resp.StatusCode).Msg("callback delivered")
	}
}
