// Copyright 2026 The ManaGameFramework Authors
// SPDX-License-Identifier: BSD-3-Clause

package devicetest

import (
	"errors"
	"testing"

	"github.com/katze7514/ManaGameFramework-sub000/device"
)

func TestDevice_ResetScript(t *testing.T) {
	d := New(64, 64)
	d.Lose()
	d.ScriptResets(device.ResetNotReady, device.ResetNotReady)

	want := []device.ResetResult{device.ResetNotReady, device.ResetNotReady, device.ResetSuccess}
	for i, w := range want {
		if got := d.Reset(device.ResetParams{}); got != w {
			t.Fatalf("Reset #%d = %v, want %v", i, got, w)
		}
	}
	if d.IsLost() {
		t.Error("device still lost after ResetSuccess")
	}
	if _, _, resets := d.Counters(); resets != 3 {
		t.Errorf("resets = %d, want 3", resets)
	}
}

func TestDevice_LostRefusesWork(t *testing.T) {
	d := New(8, 8)
	d.Lose()
	if _, err := d.CreateBuffer("vb", 4); !errors.Is(err, device.ErrDeviceLost) {
		t.Errorf("CreateBuffer on lost device = %v, want ErrDeviceLost", err)
	}
	if err := d.BeginFrame(); !errors.Is(err, device.ErrDeviceLost) {
		t.Errorf("BeginFrame on lost device = %v, want ErrDeviceLost", err)
	}
}

func TestDevice_DrawOutsideFrame(t *testing.T) {
	d := New(8, 8)
	vb, _ := d.CreateBuffer("vb", 4)
	if err := d.Draw(device.DrawCall{Buffer: vb, Count: 1}); !errors.Is(err, device.ErrNotInFrame) {
		t.Errorf("Draw outside frame = %v, want ErrNotInFrame", err)
	}

	_ = d.BeginFrame()
	if err := d.Draw(device.DrawCall{Buffer: vb, Count: 2}); err != nil {
		t.Fatalf("Draw = %v", err)
	}
	_ = d.EndFrame()
	if got := d.DrawnQuads(); got != 2 {
		t.Errorf("DrawnQuads() = %d, want 2", got)
	}

	d.DestroyResource(vb)
	_ = d.BeginFrame()
	if err := d.Draw(device.DrawCall{Buffer: vb, Count: 1}); !errors.Is(err, device.ErrInvalidHandle) {
		t.Errorf("Draw with destroyed buffer = %v, want ErrInvalidHandle", err)
	}
}
