package downloader

import (
	"errors"
	"net/http"
	"testing"
	"time"

	tilehttp "github.com/craftxbox/wplace-downloader/internal/http"
)

func TestPolicyDecide(t *testing.T) {
	p := Policy{RequestInterval: time.Second, RetryMargin: 1.05}

	tests := []struct {
		name     string
		out      tilehttp.Outcome
		wantAct  Action
		wantWait time.Duration
	}{
		{
			name:     "saved advances after request interval",
			out:      tilehttp.Outcome{Kind: tilehttp.Saved, Status: http.StatusOK},
			wantAct:  Advance,
			wantWait: time.Second,
		},
		{
			name:     "empty advances after request interval",
			out:      tilehttp.Outcome{Kind: tilehttp.Empty, Status: http.StatusNotFound},
			wantAct:  Advance,
			wantWait: time.Second,
		},
		{
			name:     "rate limited retries after advised delay with margin",
			out:      tilehttp.Outcome{Kind: tilehttp.Retryable, Status: http.StatusTooManyRequests, Delay: 20 * time.Second},
			wantAct:  Retry,
			wantWait: 21 * time.Second,
		},
		{
			name:     "server error retries",
			out:      tilehttp.Outcome{Kind: tilehttp.Retryable, Status: http.StatusBadGateway, Delay: 10 * time.Second},
			wantAct:  Retry,
			wantWait: time.Duration(float64(10*time.Second) * 1.05),
		},
		{
			name:    "fatal aborts",
			out:     tilehttp.Outcome{Kind: tilehttp.Fatal, Err: errors.New("boom")},
			wantAct: Abort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := p.Decide(tt.out, 1)
			if dec.Action != tt.wantAct {
				t.Fatalf("action = %v, want %v", dec.Action, tt.wantAct)
			}
			if tt.wantAct != Abort && dec.Wait != tt.wantWait {
				t.Errorf("wait = %v, want %v", dec.Wait, tt.wantWait)
			}
			if tt.wantAct == Abort && dec.Err == nil {
				t.Error("abort without error")
			}
		})
	}
}

func TestPolicyRetryWaitNeverBelowAdvisedDelay(t *testing.T) {
	for _, margin := range []float64{0, 0.5, 1, 1.05, 2} {
		p := Policy{RetryMargin: margin}
		delay := 3 * time.Second
		dec := p.Decide(tilehttp.Outcome{Kind: tilehttp.Retryable, Delay: delay}, 1)
		if dec.Wait < delay {
			t.Errorf("margin %v: wait %v < advised %v", margin, dec.Wait, delay)
		}
	}
}

func TestPolicyUnboundedByDefault(t *testing.T) {
	p := DefaultPolicy()
	out := tilehttp.Outcome{Kind: tilehttp.Retryable, Delay: time.Second}
	if dec := p.Decide(out, 10_000); dec.Action != Retry {
		t.Errorf("attempt 10000: action = %v, want retry", dec.Action)
	}
}

func TestPolicyMaxAttempts(t *testing.T) {
	p := Policy{RetryMargin: 1.05, MaxAttempts: 3}
	out := tilehttp.Outcome{Kind: tilehttp.Retryable, Status: http.StatusServiceUnavailable, Delay: time.Second}

	for attempt := 1; attempt < 3; attempt++ {
		if dec := p.Decide(out, attempt); dec.Action != Retry {
			t.Fatalf("attempt %d: action = %v, want retry", attempt, dec.Action)
		}
	}

	dec := p.Decide(out, 3)
	if dec.Action != Abort {
		t.Fatalf("attempt 3: action = %v, want abort", dec.Action)
	}
	if !errors.Is(dec.Err, ErrRetriesExhausted) {
		t.Errorf("err = %v, want ErrRetriesExhausted", dec.Err)
	}
}
