// Package probe checks whether the post office servers behind IMAP
// mailboxes still answer, so a disabled mailbox can be offered for
// re-enabling with some confidence.
package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/mailto/internal/model"
)

// maxConcurrent bounds how many servers are contacted at once.
const maxConcurrent = 4

// DialFunc opens a connection to addr.
type DialFunc func(ctx context.Context, addr string) (net.Conn, error)

// Result is the outcome of probing one mailbox.
type Result struct {
	Mailbox      model.Mailbox
	Host         string
	Reachable    bool
	Capabilities []string
	Elapsed      time.Duration
	Err          error
}

// Prober contacts IMAP servers.
type Prober struct {
	port    int
	timeout time.Duration
	dial    DialFunc
	log     *zap.Logger
}

// New creates a Prober that connects over implicit TLS.
func New(cfg model.ProbeConfig, log *zap.Logger) *Prober {
	if log == nil {
		log = zap.NewNop()
	}
	d := &tls.Dialer{}
	return &Prober{
		port:    cfg.Port,
		timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		dial: func(ctx context.Context, addr string) (net.Conn, error) {
			return d.DialContext(ctx, "tcp", addr)
		},
		log: log,
	}
}

// WithDialer returns a copy of p that connects with dial.
func (p *Prober) WithDialer(dial DialFunc) *Prober {
	cp := *p
	cp.dial = dial
	return &cp
}

// Host returns the server an IMAP mailbox lives on, e.g. PO12.MIT.EDU.
func Host(b model.Mailbox) (string, bool) {
	if b.Kind != model.KindIMAP {
		return "", false
	}
	at := strings.LastIndex(b.Address, "@")
	if at < 0 || at == len(b.Address)-1 {
		return "", false
	}
	return strings.ToUpper(b.Address[at+1:]), true
}

// Probe contacts the server of every IMAP mailbox in boxes, enabled or
// not. Other kinds are skipped. Results keep the order of boxes.
func (p *Prober) Probe(ctx context.Context, boxes []model.Mailbox) ([]Result, error) {
	var targets []model.Mailbox
	for _, b := range boxes {
		if _, ok := Host(b); ok {
			targets = append(targets, b)
		}
	}

	results := make([]Result, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for i, b := range targets {
		g.Go(func() error {
			results[i] = p.probeOne(gctx, b)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("probing servers: %w", err)
	}

	return results, nil
}

func (p *Prober) probeOne(ctx context.Context, b model.Mailbox) (res Result) {
	host, _ := Host(b)
	res = Result{Mailbox: b, Host: host}
	start := time.Now()
	defer func() {
		res.Elapsed = time.Since(start)
	}()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	addr := net.JoinHostPort(host, strconv.Itoa(p.port))
	conn, err := p.dial(ctx, addr)
	if err != nil {
		res.Err = fmt.Errorf("connecting to %s: %w", addr, err)
		p.log.Info("probe failed", zap.String("host", host), zap.Error(err))
		return res
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client := imapclient.New(conn, nil)
	defer client.Close()

	caps, err := client.Capability().Wait()
	if err != nil {
		res.Err = fmt.Errorf("reading capabilities from %s: %w", addr, err)
		p.log.Info("probe failed", zap.String("host", host), zap.Error(err))
		return res
	}
	_ = client.Logout().Wait()

	for c := range caps {
		res.Capabilities = append(res.Capabilities, string(c))
	}
	sort.Strings(res.Capabilities)
	res.Reachable = true

	p.log.Debug("probe ok", zap.String("host", host), zap.Strings("caps", res.Capabilities))
	return res
}
