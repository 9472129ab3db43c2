package epgsql

import (
	"context"
	"encoding/binary"
	"log/slog"
	"net"

	"github.com/Online-GS/epgsql/pkg/types"
)

// Cancel requests the backend to abort the query currently running on this
// connection. The request travels over an ephemeral second connection
// carrying the cancellation key received during startup; the main connection
// is not touched. A running query observes the cancellation as a regular
// backend error on its own connection.
func (conn *Conn) Cancel(ctx context.Context) error {
	peer := conn.socket.RemoteAddr()
	conn.logger.Debug("sending cancel request", slog.String("peer", peer.String()), slog.Int("pid", int(conn.backendPID)))

	dialer := net.Dialer{Timeout: conn.connectTimeout}
	side, err := dialer.DialContext(ctx, peer.Network(), peer.String())
	if err != nil {
		return err
	}

	defer side.Close()

	frame := make([]byte, 16)
	binary.BigEndian.PutUint32(frame[0:4], 16)
	binary.BigEndian.PutUint32(frame[4:8], uint32(types.VersionCancel))
	binary.BigEndian.PutUint32(frame[8:12], uint32(conn.backendPID))
	binary.BigEndian.PutUint32(frame[12:16], uint32(conn.backendSecret))

	_, err = side.Write(frame)
	return err
}
