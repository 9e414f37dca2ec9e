// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mbridge

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
		want    Config
		wantErr bool
	}{
		{
			name:    "defaults",
			environ: map[string]string{},
			want: Config{
				PathPrefix: "/mqtt",
				OpTimeout:  30 * time.Second,
			},
		},
		{
			name: "full listener",
			environ: map[string]string{
				"MB_ADDRESS":    ":1884",
				"MB_TARGET":     "tcp://localhost:1883",
				"MB_OP_TIMEOUT": "5s",
				"MB_USERNAME":   "bridge",
				"MB_PASSWORD":   "secret",
			},
			want: Config{
				Address:    ":1884",
				PathPrefix: "/mqtt",
				Target:     "tcp://localhost:1883",
				OpTimeout:  5 * time.Second,
				Username:   "bridge",
				Password:   "secret",
			},
		},
		{
			name: "invalid timeout",
			environ: map[string]string{
				"MB_OP_TIMEOUT": "soon",
			},
			wantErr: true,
		},
		{
			name: "missing cert files",
			environ: map[string]string{
				"MB_CERT_FILE": "testdata/nonexistent.crt",
				"MB_KEY_FILE":  "testdata/nonexistent.key",
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewConfig(env.Options{Prefix: "MB_", Environment: tt.environ})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
