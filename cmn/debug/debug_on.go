//go:build debug

// Package debug provides invariant assertions that are active only in
// builds with the `debug` tag. Without it (debug_off.go) every assert is a
// no-op: a violated invariant is neither reported nor turned into an error.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package debug

import (
	"fmt"
	"sync"
)

func ON() bool { return true }

func Infof(f string, a ...any) { fmt.Printf("[debug] "+f+"\n", a...) }

func Func(f func()) { f() }

func Assert(cond bool, a ...any) {
	if !cond {
		panic(fmt.Sprint("assertion failed", fmt.Sprint(a...)))
	}
}

func AssertFunc(f func() bool, a ...any) { Assert(f(), a...) }

func AssertNoErr(err error) {
	if err != nil {
		panic("assertion failed: " + err.Error())
	}
}

func Assertf(cond bool, f string, a ...any) {
	if !cond {
		panic(fmt.Sprintf("assertion failed: "+f, a...))
	}
}

func AssertNotPstr(v any) {
	if _, ok := v.(*string); ok {
		panic("assertion failed: unexpected *string")
	}
}

func FailTypeCast(v any) { panic(fmt.Sprintf("unexpected type %T", v)) }

// Mutex states aren't introspectable in the stdlib; these remain advisory
// no-ops even in debug builds (kept only so call sites need not be
// conditionally compiled).
func AssertMutexLocked(_ *sync.Mutex)      {}
func AssertRWMutexLocked(_ *sync.RWMutex)  {}
func AssertRWMutexRLocked(_ *sync.RWMutex) {}
