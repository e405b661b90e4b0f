package wire

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tablewriter/pkg/errors"
	"github.com/ajitpratap0/tablewriter/pkg/logger"
	"github.com/ajitpratap0/tablewriter/pkg/observability"
	"github.com/ajitpratap0/tablewriter/pkg/store/memory"
	"github.com/ajitpratap0/tablewriter/pkg/table"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	Catalog *memory.Catalog
	// User and Password, when User is set, are required at login.
	User      string
	Password  string
	TLSConfig *tls.Config
	Logger    *zap.Logger
}

// Server answers wire clients from a memory catalog.
type Server struct {
	cfg    ServerConfig
	logger *zap.Logger

	mu     sync.Mutex
	ln     net.Listener
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewServer creates a server. A nil catalog serves memory.Default.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Catalog == nil {
		cfg.Catalog = memory.Default
	}
	return &Server{
		cfg:    cfg,
		logger: logger.Component(cfg.Logger, "wire-server"),
		conns:  make(map[net.Conn]struct{}),
	}
}

// ListenAndServe listens on addr and serves until Close.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "listen")
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Close. It returns nil after Close.
func (s *Server) Serve(ln net.Listener) error {
	if s.cfg.TLSConfig != nil {
		ln = tls.NewListener(ln, s.cfg.TLSConfig)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	s.ln = ln
	s.mu.Unlock()
	s.logger.Info("serving", zap.String("addr", ln.Addr().String()), zap.Bool("tls", s.cfg.TLSConfig != nil))

	for {
		nc, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return errors.Wrap(err, errors.ErrorTypeConnection, "accept")
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = nc.Close()
			return nil
		}
		s.conns[nc] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()
		go s.handle(nc)
	}
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close stops accepting, closes every connection and waits for handlers.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	for nc := range s.conns {
		_ = nc.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

func (s *Server) handle(nc net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, nc)
		s.mu.Unlock()
		_ = nc.Close()
	}()
	l := s.logger.With(zap.String("remote", nc.RemoteAddr().String()))
	r := bufio.NewReader(nc)
	w := bufio.NewWriter(nc)

	loggedIn := false
	for {
		kind, payload, err := ReadFrame(r)
		if err != nil {
			l.Debug("connection closed", zap.Error(err))
			return
		}
		var resp *response
		switch {
		case kind == KindLogin:
			resp = s.login(payload)
			loggedIn = resp.OK
		case !loggedIn:
			resp = errorResponse(errors.New(errors.ErrorTypeConnection, "login required"))
		case kind == KindSchema:
			resp = s.schema(payload)
		case kind == KindInsert:
			resp = s.insert(payload)
		default:
			resp = errorResponse(errors.Newf(errors.ErrorTypeProtocol, "unexpected %s frame", kind))
		}
		if !resp.OK {
			l.Warn("request failed", zap.Stringer("kind", kind), zap.String("error", resp.Error))
		}

		body, err := marshalFrame(resp)
		if err == nil {
			err = WriteFrame(w, KindResponse, body)
		}
		if err == nil {
			err = w.Flush()
		}
		if err != nil {
			l.Debug("write failed", zap.Error(err))
			return
		}
	}
}

func (s *Server) login(payload []byte) *response {
	var req loginRequest
	if err := unmarshalFrame(payload, &req); err != nil {
		return errorResponse(err)
	}
	if s.cfg.User != "" && (req.User != s.cfg.User || req.Password != s.cfg.Password) {
		return errorResponse(errors.New(errors.ErrorTypeConfig, "The user name or password is incorrect"))
	}
	return &response{OK: true}
}

func (s *Server) schema(payload []byte) *response {
	var req schemaRequest
	if err := unmarshalFrame(payload, &req); err != nil {
		return errorResponse(err)
	}
	t, err := s.cfg.Catalog.Lookup(req.DBPath, req.TableName)
	if err != nil {
		return errorResponse(err)
	}
	return &response{OK: true, Table: encodeTableInfo(t.Info())}
}

func (s *Server) insert(payload []byte) *response {
	hdrBytes, rest, err := splitBlock(payload)
	if err != nil {
		return errorResponse(err)
	}
	var hdr insertHeader
	if err := unmarshalFrame(hdrBytes, &hdr); err != nil {
		return errorResponse(err)
	}
	ctx := observability.ExtractContext(context.Background(), hdr.Trace)
	_, span := observability.Tracer().Start(ctx, "tablewriter.server_insert")
	defer span.End()
	span.SetAttributes(
		attribute.String("table", hdr.DBPath+"/"+hdr.TableName),
		attribute.Int("rows", hdr.Rows),
	)

	t, err := s.cfg.Catalog.Lookup(hdr.DBPath, hdr.TableName)
	if err != nil {
		return errorResponse(err)
	}
	methods, err := parseMethods(hdr.Methods)
	if err != nil {
		return errorResponse(err)
	}
	schema := t.Info().Schema
	blocks := make([][]byte, 0, schema.Len())
	for len(rest) > 0 {
		var b []byte
		if b, rest, err = splitBlock(rest); err != nil {
			return errorResponse(err)
		}
		blocks = append(blocks, b)
	}
	batch, err := table.DecodeColumns(schema, hdr.Rows, blocks, methods)
	if err != nil {
		return errorResponse(err)
	}
	defer batch.Release()

	n, err := t.Append(batch.Rows())
	if err != nil {
		span.RecordError(err)
		return errorResponse(err)
	}
	return &response{OK: true, Accepted: n}
}
