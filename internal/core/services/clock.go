package services

import "time"

// timeNow is overridden in tests to pin the clock.
var timeNow = time.Now
