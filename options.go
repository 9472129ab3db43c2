package epgsql

import (
	"crypto/tls"
	"log/slog"
	"time"
)

// OptionFn options pattern used to configure a connection before it is
// established.
type OptionFn func(*Conn)

// Logger sets the logger used by the connection to trace wire activity.
func Logger(logger *slog.Logger) OptionFn {
	return func(conn *Conn) {
		conn.logger = logger
	}
}

// Port overrides the default PostgreSQL port (5432).
func Port(port int) OptionFn {
	return func(conn *Conn) {
		conn.port = port
	}
}

// Database selects the database to connect to. The backend defaults to the
// database named after the connecting user.
func Database(name string) OptionFn {
	return func(conn *Conn) {
		conn.database = name
	}
}

// ConnectTimeout overrides the default dial timeout (5 seconds).
func ConnectTimeout(timeout time.Duration) OptionFn {
	return func(conn *Conn) {
		conn.connectTimeout = timeout
	}
}

// SSL sets the TLS requirement of the connection.
func SSL(mode SSLMode) OptionFn {
	return func(conn *Conn) {
		conn.sslMode = mode
	}
}

// TLSConfig provides the TLS configuration used during the opportunistic
// connection upgrade. Without one the upgrade proceeds without verifying the
// server certificate.
func TLSConfig(config *tls.Config) OptionFn {
	return func(conn *Conn) {
		conn.tlsConfig = config
	}
}

// BufferedMsgSize overrides the maximum inbound message size accepted by the
// connection.
func BufferedMsgSize(size int) OptionFn {
	return func(conn *Conn) {
		conn.bufferSize = size
	}
}

// OnNotification subscribes the given function to asynchronous notifications
// received for channels the connection issued LISTEN on. Delivery happens on
// the connection actor and is not awaited; the subscriber must not block.
func OnNotification(fn NotificationFunc) OptionFn {
	return func(conn *Conn) {
		conn.onNotification = fn
	}
}

// OnNotice subscribes the given function to asynchronous backend notices.
func OnNotice(fn NoticeFunc) OptionFn {
	return func(conn *Conn) {
		conn.onNotice = fn
	}
}
