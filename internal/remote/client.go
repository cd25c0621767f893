package remote

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/triage-ai/guardrails/internal/metrics"
)

// NewClient returns a resty client for one remote service. Deadlines are
// set per request through the context, so a single client can serve
// calls with different budgets.
func NewClient(service string, m *metrics.Metrics) *resty.Client {
	c := resty.New().
		SetHeader("Accept", "application/json").
		SetRetryCount(0)

	c.OnAfterResponse(func(_ *resty.Client, r *resty.Response) error {
		m.ObserveCall(service, strconv.Itoa(r.StatusCode()), r.Time())
		return nil
	})
	c.OnError(func(req *resty.Request, err error) {
		// resty wraps every failure in a ResponseError; only those carrying
		// a real HTTP response were already counted by OnAfterResponse.
		var re *resty.ResponseError
		if errors.As(err, &re) && re.Response != nil && re.Response.RawResponse != nil {
			return
		}
		outcome := "error"
		if IsTimeout(err) {
			outcome = "timeout"
		}
		m.ObserveCall(service, outcome, time.Since(req.Time))
	})
	return c
}
