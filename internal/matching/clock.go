package matching

import "time"

// nowMillis is the wall-clock timestamp source for Trade.TimestampMs,
// isolated here so tests can substitute it if determinism is ever needed.
var nowMillis = func() int64 { return time.Now().UnixMilli() }
