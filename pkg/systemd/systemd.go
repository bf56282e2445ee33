// Package systemd reports daemon lifecycle to systemd via sd_notify.
// Every call is a no-op outside a systemd unit (NOTIFY_SOCKET unset).
package systemd

import (
	"github.com/coreos/go-systemd/v22/daemon"
)

// NotifyReady tells the service manager startup has finished.
func NotifyReady() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
}

// NotifyStopping tells the service manager shutdown has begun.
func NotifyStopping() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}

// NotifyStatus publishes a free-form status line (shown by systemctl status).
func NotifyStatus(msg string) {
	_, _ = daemon.SdNotify(false, "STATUS="+msg)
}
