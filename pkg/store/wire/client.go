package wire

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tablewriter/pkg/errors"
	"github.com/ajitpratap0/tablewriter/pkg/logger"
	"github.com/ajitpratap0/tablewriter/pkg/observability"
	"github.com/ajitpratap0/tablewriter/pkg/pool"
	"github.com/ajitpratap0/tablewriter/pkg/store"
	"github.com/ajitpratap0/tablewriter/pkg/table"
)

func init() {
	store.MustRegister("wire", store.DialerFunc(func(ctx context.Context, opts store.ConnOptions) (store.Conn, error) {
		return Dial(ctx, opts)
	}))
}

// Client is one connection to a wire server.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	addr   string
	logger *zap.Logger
}

// Dial connects and logs in. With high availability enabled the sites are
// tried in order after the primary address.
func Dial(ctx context.Context, opts store.ConnOptions) (*Client, error) {
	l := logger.Component(opts.Logger, "wire-client")
	var lastErr error
	for _, addr := range opts.Addrs() {
		nc, err := dialAddr(ctx, addr, opts)
		if err != nil {
			l.Warn("connect failed", zap.String("addr", addr), zap.Error(err))
			lastErr = err
			continue
		}
		c := &Client{
			conn:   nc,
			r:      bufio.NewReader(nc),
			w:      bufio.NewWriter(nc),
			addr:   addr,
			logger: l.With(zap.String("addr", addr)),
		}
		if err := c.login(ctx, opts); err != nil {
			_ = nc.Close()
			if errors.IsType(err, errors.ErrorTypeConnection) {
				lastErr = err
				continue
			}
			return nil, err
		}
		c.logger.Debug("connected", zap.Bool("tls", opts.UseSSL))
		return c, nil
	}
	return nil, errors.Wrap(lastErr, errors.ErrorTypeConnection,
		fmt.Sprintf("Failed to connect to server %s", opts.Addr()))
}

func dialAddr(ctx context.Context, addr string, opts store.ConnOptions) (net.Conn, error) {
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	nd := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	if !opts.UseSSL {
		return nd.DialContext(ctx, "tcp", addr)
	}
	cfg := opts.TLSConfig
	if cfg == nil {
		host, _, _ := net.SplitHostPort(addr)
		cfg = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	td := &tls.Dialer{NetDialer: nd, Config: cfg}
	return td.DialContext(ctx, "tcp", addr)
}

func (c *Client) login(ctx context.Context, opts store.ConnOptions) error {
	_, err := c.roundTrip(ctx, KindLogin, loginRequest{
		User:     opts.User,
		Password: opts.Password,
		Compress: opts.Compress,
	}, nil)
	return err
}

// Schema implements store.Conn.
func (c *Client) Schema(ctx context.Context, dbPath, tableName string) (*store.TableInfo, error) {
	req := schemaRequest{DBPath: dbPath, TableName: tableName, Trace: map[string]string{}}
	observability.InjectContext(ctx, req.Trace)
	resp, err := c.roundTrip(ctx, KindSchema, req, nil)
	if err != nil {
		return nil, err
	}
	return decodeTableInfo(resp.Table)
}

// Insert implements store.Conn.
func (c *Client) Insert(ctx context.Context, target store.Target, batch *table.Batch) (int, error) {
	blocks, err := table.EncodeColumns(batch, target.CompressMethods)
	if err != nil {
		return 0, err
	}
	hdr := insertHeader{
		DBPath:    target.DBPath,
		TableName: target.TableName,
		Rows:      batch.NumRows(),
		Methods:   methodNames(target.CompressMethods),
		Trace:     map[string]string{},
	}
	observability.InjectContext(ctx, hdr.Trace)
	resp, err := c.roundTrip(ctx, KindInsert, hdr, blocks)
	if err != nil {
		return 0, err
	}
	return resp.Accepted, nil
}

// roundTrip sends one request and reads its response. Insert payloads are
// [u32 header length][header][blocks...].
func (c *Client) roundTrip(ctx context.Context, kind Kind, header any, blocks [][]byte) (*response, error) {
	hdr, err := marshalFrame(header)
	if err != nil {
		return nil, err
	}
	payload := hdr
	if kind == KindInsert {
		size := 4 + len(hdr)
		for _, b := range blocks {
			size += 4 + len(b)
		}
		payload = appendBlock(pool.Buffers.Get(size), hdr)
		for _, b := range blocks {
			payload = appendBlock(payload, b)
		}
		defer pool.Buffers.Put(payload)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, errors.New(errors.ErrorTypeConnection, "connection is closed")
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(dl)
		defer func() { _ = c.conn.SetDeadline(time.Time{}) }()
	}

	if err := WriteFrame(c.w, kind, payload); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, fmt.Sprintf("write %s to %s", kind, c.addr))
	}
	if err := c.w.Flush(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, fmt.Sprintf("write %s to %s", kind, c.addr))
	}
	rk, body, err := ReadFrame(c.r)
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeProtocol) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, fmt.Sprintf("read response from %s", c.addr))
	}
	if rk != KindResponse {
		return nil, errors.Newf(errors.ErrorTypeProtocol, "expected response frame, got %s", rk)
	}
	var resp response
	if err := unmarshalFrame(body, &resp); err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Close implements store.Conn.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
