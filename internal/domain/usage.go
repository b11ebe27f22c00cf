package domain

import "time"

type UsageLog struct {
	RequestID      string
	ClientID       string
	Outputs        int
	Archive        bool
	PixelsProduced int64
	BytesIn        int64
	BytesOut       int64
	ComputeTimeMS  int64
	CreatedAt      time.Time
}
