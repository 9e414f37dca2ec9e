// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/absmach/mbridge"
)

type pubCall struct {
	topic   string
	payload []byte
	opts    mbridge.Options
}

type mockDown struct {
	actions chan *mbridge.Context
	errs    chan error
	acks    chan *mbridge.Context

	mu        sync.Mutex
	published []pubCall
	notified  []error
	closed    int
	ackErr    error
}

var _ mbridge.Downstream = (*mockDown)(nil)

func newMockDown() *mockDown {
	return &mockDown{
		actions: make(chan *mbridge.Context, 8),
		errs:    make(chan error, 1),
		acks:    make(chan *mbridge.Context, 8),
	}
}

func (m *mockDown) Actions() <-chan *mbridge.Context {
	return m.actions
}

func (m *mockDown) Errors() <-chan error {
	return m.errs
}

func (m *mockDown) Publish(topic string, payload []byte, opts mbridge.Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, pubCall{topic: topic, payload: payload, opts: opts})
	return nil
}

func (m *mockDown) Ack(ctx *mbridge.Context) error {
	m.mu.Lock()
	err := m.ackErr
	m.mu.Unlock()
	m.acks <- ctx
	return err
}

func (m *mockDown) NotifyError(_ *mbridge.Context, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notified = append(m.notified, err)
}

func (m *mockDown) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *mockDown) pubCalls() []pubCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]pubCall(nil), m.published...)
}

func (m *mockDown) notifications() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]error(nil), m.notified...)
}

func (m *mockDown) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type mockUp struct {
	msgs chan mbridge.Message
	errs chan error

	mu           sync.Mutex
	published    []pubCall
	subscribed   []map[string]mbridge.Options
	unsubscribed [][]string
	terminated   int
	pubErr       error
	subErr       error
}

var _ mbridge.Upstream = (*mockUp)(nil)

func newMockUp() *mockUp {
	return &mockUp{
		msgs: make(chan mbridge.Message, 8),
		errs: make(chan error, 1),
	}
}

func (m *mockUp) Messages() <-chan mbridge.Message {
	return m.msgs
}

func (m *mockUp) Errors() <-chan error {
	return m.errs
}

func (m *mockUp) Publish(topic string, payload []byte, opts mbridge.Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, pubCall{topic: topic, payload: payload, opts: opts})
	return m.pubErr
}

func (m *mockUp) Subscribe(subs map[string]mbridge.Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribed = append(m.subscribed, subs)
	return m.subErr
}

func (m *mockUp) Unsubscribe(topics ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubscribed = append(m.unsubscribed, topics)
	return nil
}

func (m *mockUp) Terminate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminated++
	return nil
}

func (m *mockUp) pubCalls() []pubCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]pubCall(nil), m.published...)
}

func (m *mockUp) subCalls() []map[string]mbridge.Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]mbridge.Options(nil), m.subscribed...)
}

func (m *mockUp) unsubCalls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.unsubscribed...)
}

func (m *mockUp) termCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminated
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func recvAck(t *testing.T, ch <-chan *mbridge.Context) *mbridge.Context {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for acknowledgement")
		return nil
	}
}

func recvErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error")
		return nil
	}
}
