// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewContextDefaults(t *testing.T) {
	tests := []struct {
		name   string
		ctx    *Context
		action Action
	}{
		{
			name:   "connect",
			ctx:    NewConnectContext("c1", Auth{Username: "u", Password: []byte("p")}),
			action: Connect,
		},
		{
			name:   "publish",
			ctx:    NewPublishContext("c1", "t1", []byte("m1"), Options{OptQoS: byte(1)}),
			action: Publish,
		},
		{
			name:   "subscribe",
			ctx:    NewSubscribeContext("c1", map[string]Options{"t1": {}}),
			action: Subscribe,
		},
		{
			name:   "unsubscribe",
			ctx:    NewUnsubscribeContext("c1", []string{"t1"}),
			action: Unsubscribe,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.action, tt.ctx.Action)
			assert.Equal(t, "c1", tt.ctx.ClientID)
			assert.True(t, tt.ctx.Authorized)
			assert.False(t, tt.ctx.Reject)
			assert.NoError(t, tt.ctx.Err)
		})
	}
}

func TestSubscriptionSet(t *testing.T) {
	subs := map[string]Options{"t1": {OptQoS: byte(1)}, "t2": {OptQoS: byte(0)}}

	tests := []struct {
		name string
		ctx  *Context
		want map[string]Options
	}{
		{
			name: "set form",
			ctx:  NewSubscribeContext("c1", subs),
			want: subs,
		},
		{
			name: "single topic form",
			ctx:  NewSubscribeTopicContext("c1", "t1", Options{OptQoS: byte(1)}),
			want: map[string]Options{"t1": {OptQoS: byte(1)}},
		},
		{
			name: "empty",
			ctx:  &Context{Action: Subscribe},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ctx.SubscriptionSet())
		})
	}
}

func TestUnsubscribeTopics(t *testing.T) {
	tests := []struct {
		name string
		ctx  *Context
		want []string
	}{
		{
			name: "set form",
			ctx:  NewUnsubscribeContext("c1", []string{"t1", "t2"}),
			want: []string{"t1", "t2"},
		},
		{
			name: "single topic form",
			ctx:  NewUnsubscribeTopicContext("c1", "t1"),
			want: []string{"t1"},
		},
		{
			name: "empty",
			ctx:  &Context{Action: Unsubscribe},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ctx.UnsubscribeTopics())
		})
	}
}

func TestOptions(t *testing.T) {
	assert.Equal(t, byte(1), Options{OptQoS: byte(1)}.QoS())
	assert.Equal(t, byte(2), Options{OptQoS: 2}.QoS())
	assert.Equal(t, byte(0), Options{}.QoS())
	assert.Equal(t, byte(0), Options(nil).QoS())

	assert.True(t, Options{OptRetain: true}.Retain())
	assert.False(t, Options{}.Retain())

	assert.Equal(t, uint16(7), Options{OptMessageID: uint16(7)}.MessageID())
	assert.Equal(t, uint16(7), Options{OptMessageID: 7}.MessageID())
	assert.Equal(t, uint16(0), Options{}.MessageID())
}
