package executor

import (
	"context"
	"crypto/tls"
	"net/http/httptrace"
	"time"
)

// TimingDetail breaks the round trip down by connection phase.
type TimingDetail struct {
	DNSLookup    time.Duration
	TCPConnect   time.Duration
	TLSHandshake time.Duration
	TTFB         time.Duration
	Transfer     time.Duration
	Total        time.Duration
}

// traceRecorder captures httptrace phase timestamps for one request.
type traceRecorder struct {
	dnsStart     time.Time
	connStart    time.Time
	tlsStart     time.Time
	gotConn      time.Time
	gotFirstByte time.Time

	dnsDuration  time.Duration
	connDuration time.Duration
	tlsDuration  time.Duration
}

func newTraceRecorder() *traceRecorder {
	return &traceRecorder{}
}

func (r *traceRecorder) wrap(ctx context.Context) context.Context {
	trace := &httptrace.ClientTrace{
		DNSStart: func(_ httptrace.DNSStartInfo) {
			r.dnsStart = time.Now()
		},
		DNSDone: func(_ httptrace.DNSDoneInfo) {
			r.dnsDuration = time.Since(r.dnsStart)
		},
		ConnectStart: func(_, _ string) {
			r.connStart = time.Now()
		},
		ConnectDone: func(_, _ string, _ error) {
			r.connDuration = time.Since(r.connStart)
		},
		TLSHandshakeStart: func() {
			r.tlsStart = time.Now()
		},
		TLSHandshakeDone: func(_ tls.ConnectionState, _ error) {
			r.tlsDuration = time.Since(r.tlsStart)
		},
		GotConn: func(_ httptrace.GotConnInfo) {
			r.gotConn = time.Now()
		},
		GotFirstResponseByte: func() {
			r.gotFirstByte = time.Now()
		},
	}
	return httptrace.WithClientTrace(ctx, trace)
}

func (r *traceRecorder) detail(total, transfer time.Duration) *TimingDetail {
	var ttfb time.Duration
	if !r.gotConn.IsZero() && !r.gotFirstByte.IsZero() {
		ttfb = r.gotFirstByte.Sub(r.gotConn)
	}
	return &TimingDetail{
		DNSLookup:    r.dnsDuration,
		TCPConnect:   r.connDuration,
		TLSHandshake: r.tlsDuration,
		TTFB:         ttfb,
		Transfer:     transfer,
		Total:        total,
	}
}
