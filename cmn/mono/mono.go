// Package mono provides a cheap monotonic clock used for deadlines,
// back-off pacing, and snapshot/log timestamps.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package mono

import "time"

var start = time.Now()

// NanoTime returns a monotonic nanosecond counter measured from process
// start. Unlike time.Now().UnixNano() it is never affected by wall-clock
// adjustments.
func NanoTime() int64 { return int64(time.Since(start)) }

// Since is a small helper mirroring the call sites that used to do
// time.Duration(NanoTime()-last).
func Since(last int64) time.Duration { return time.Duration(NanoTime() - last) }
