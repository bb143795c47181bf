package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/rbright/powerctl/internal/protocol"
)

const maxLineBytes = 4 << 10

// ServeSerial accepts line-protocol clients until ctx is cancelled or the
// listener closes. Connections are served one at a time and the commands on a
// connection are handled in order.
func ServeSerial(ctx context.Context, listener net.Listener, svc *Service, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = listener.Close()
	})
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept serial connection: %w", err)
		}
		serveLines(ctx, conn, svc, logger)
	}
}

func serveLines(ctx context.Context, conn net.Conn, svc *Service, logger *slog.Logger) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	remote := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	logger.Info("serial client connected", "remote", remote)
	defer logger.Info("serial client disconnected", "remote", remote)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 256), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		var resp protocol.Response
		req, err := protocol.DecodeCommand(line)
		if err != nil {
			logger.Warn("serial command rejected", "remote", remote, "error", err.Error())
			resp = failureResponse("", err)
		} else {
			resp, _ = svc.Handle(ctx, Call{Request: req, Transport: TransportSerial, Remote: remote})
		}

		if _, err := io.WriteString(conn, protocol.EncodeResponse(resp)); err != nil {
			logger.Warn("serial write failed", "remote", remote, "error", err.Error())
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
		logger.Warn("serial read failed", "remote", remote, "error", err.Error())
		_, _ = io.WriteString(conn, protocol.EncodeResponse(protocol.Response{Success: false, Message: "Invalid command format"}))
	}
}
