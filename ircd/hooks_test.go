package ircd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHookBusFiresInPriorityOrder(t *testing.T) {
	b := NewHookBus()
	var order []string

	b.AddCanJoin(PriorityHigh, func(*CanJoinData) { order = append(order, "high") })
	b.AddCanJoin(PriorityLow, func(*CanJoinData) { order = append(order, "low") })
	b.AddCanJoin(PriorityMonitor, func(*CanJoinData) { order = append(order, "monitor") })
	b.AddCanJoin(PriorityNormal, func(*CanJoinData) { order = append(order, "normal") })

	b.FireCanJoin(&CanJoinData{})

	assert.Equal(t, []string{"low", "normal", "high", "monitor"}, order)
}

func TestHookBusCanJoinSkipsMonitorOnceApproved(t *testing.T) {
	b := NewHookBus()
	var monitorSaw int

	b.AddCanJoin(PriorityNormal, func(d *CanJoinData) { d.Approved = 1 })
	b.AddCanJoin(PriorityMonitor, func(d *CanJoinData) { monitorSaw = d.Approved })

	d := &CanJoinData{}
	b.FireCanJoin(d)

	assert.Equal(t, 1, d.Approved)
	assert.Equal(t, 0, monitorSaw, "monitor callback should be skipped once a decision is made")
}

func TestHookBusCountReflectsRegistrations(t *testing.T) {
	b := NewHookBus()
	assert.Equal(t, 0, b.Count(HookClientExit))

	b.AddClientExit(PriorityNormal, func(*ClientExitData) {})
	b.AddClientExit(PriorityMonitor, func(*ClientExitData) {})

	assert.Equal(t, 2, b.Count(HookClientExit))
}

func TestHookBusFireClientExitDeliversPayload(t *testing.T) {
	b := NewHookBus()
	var got *ClientExitData

	b.AddClientExit(PriorityNormal, func(d *ClientExitData) { got = d })

	c := &Client{Nick: "nick"}
	b.FireClientExit(&ClientExitData{Client: c, Reason: "bye"})

	if assert.NotNil(t, got) {
		assert.Same(t, c, got.Client)
		assert.Equal(t, "bye", got.Reason)
	}
}

func TestHookBusFireBanInstalledAndRemoved(t *testing.T) {
	b := NewHookBus()
	var installed *BanInstalledData
	var removed *BanRemovedData

	b.AddBanInstalled(PriorityNormal, func(d *BanInstalledData) { installed = d })
	b.AddBanRemoved(PriorityNormal, func(d *BanRemovedData) { removed = d })

	rec := &Conf{Kind: ConfKill, UserMask: "*", HostMask: "*.example.com"}
	b.FireBanInstalled(&BanInstalledData{Conf: rec, OperName: "oper", Target: "*"})
	b.FireBanRemoved(&BanRemovedData{Kind: ConfKill, UserMask: "*", HostMask: "*.example.com"})

	if assert.NotNil(t, installed) {
		assert.Equal(t, "oper", installed.OperName)
		assert.Equal(t, "*", installed.Target)
	}
	if assert.NotNil(t, removed) {
		assert.Equal(t, ConfKill, removed.Kind)
	}
}

func TestHookBusUnregisteredHookIsNoOp(t *testing.T) {
	b := NewHookBus()
	assert.NotPanics(t, func() {
		b.FireIntroduceClient(&Client{})
	})
}
