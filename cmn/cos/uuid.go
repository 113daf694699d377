// Package cos provides common low-level types and utilities shared across
// this module, grounded on the teacher's cmn/cos package.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/teris-io/shortid"
)

const (
	// alphabet for short IDs, mirrors the teacher's shortid.DEFAULT_ABC variant
	shortIDABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

	LenShortID = 9 // short-id length, per github.com/teris-io/shortid#id-length
	tooLongID  = 64
)

var (
	sidOnce sync.Once
	sid     *shortid.Shortid
	rtie    atomic.Uint32
)

func initShortID() {
	sidOnce.Do(func() {
		sid = shortid.MustNew(4 /*worker*/, shortIDABC, 1)
	})
}

// GenShortID produces a short, collision-resistant string identifier used
// for segment IDs, snapshot names, and transfer IDs (spec.md §3) where a
// full UUID would be needlessly long for something that only needs to be
// unique within one collection.
func GenShortID() string {
	initShortID()
	return sid.MustGenerate()
}

// GenPointUUID produces a random (v4) UUID for the "id (UUID or u64)"
// variant of Point.id (spec.md §3).
func GenPointUUID() uuid.UUID { return uuid.New() }

// IsValidUUID reports whether s is long enough and alphanumeric-plus
// ('-', '_') to be one of our generated short IDs.
func IsValidUUID(s string) bool {
	if len(s) < LenShortID || len(s) > tooLongID {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}

// GenTie produces a 3-character tie-breaker, used to disambiguate two IDs
// generated in the same clock tick (e.g. two segments created back to back
// by the same optimizer run).
func GenTie() string {
	tie := rtie.Add(1)
	b0 := shortIDABC[tie&0x3f]
	b1 := shortIDABC[(^tie)&0x3f]
	b2 := shortIDABC[(tie>>2)&0x3f]
	return fmt.Sprintf("%c%c%c", b0, b1, b2)
}
