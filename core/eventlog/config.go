package eventlog

import "time"

// Config holds event log settings.
type Config struct {
	Namespace     string        `env:"EVENTLOG_NAMESPACE" envDefault:"mailbox"`
	ScanBatchSize int           `env:"EVENTLOG_SCAN_BATCH_SIZE" envDefault:"500"`
	Retention     time.Duration `env:"EVENTLOG_RETENTION" envDefault:"24h"`
}

const (
	DefaultNamespace     = "mailbox"
	DefaultScanBatchSize = 500
	DefaultRetention     = 24 * time.Hour
)
