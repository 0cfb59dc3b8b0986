package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGlobal(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantOpts   globalOptions
		wantRemain []string
		wantErr    bool
	}{
		{
			name:       "default values",
			args:       []string{},
			wantOpts:   globalOptions{addr: defaultAddr, timeout: defaultRequestTimeout},
			wantRemain: []string{},
		},
		{
			name:       "with remaining args",
			args:       []string{"simulation", "list"},
			wantOpts:   globalOptions{addr: defaultAddr, timeout: defaultRequestTimeout},
			wantRemain: []string{"simulation", "list"},
		},
		{
			name:       "custom addr",
			args:       []string{"--addr", "10.0.0.5:9090"},
			wantOpts:   globalOptions{addr: "10.0.0.5:9090", timeout: defaultRequestTimeout},
			wantRemain: []string{},
		},
		{
			name:       "json output flag",
			args:       []string{"--json"},
			wantOpts:   globalOptions{addr: defaultAddr, jsonOutput: true, timeout: defaultRequestTimeout},
			wantRemain: []string{},
		},
		{
			name:       "custom timeout",
			args:       []string{"--timeout", "5m"},
			wantOpts:   globalOptions{addr: defaultAddr, timeout: 5 * time.Minute},
			wantRemain: []string{},
		},
		{
			name:       "version flag",
			args:       []string{"--version"},
			wantOpts:   globalOptions{addr: defaultAddr, timeout: defaultRequestTimeout, showVersion: true},
			wantRemain: []string{},
		},
		{
			name:    "invalid timeout",
			args:    []string{"--timeout", "soon"},
			wantErr: true,
		},
		{
			name:       "empty addr falls back to default",
			args:       []string{"--addr", ""},
			wantOpts:   globalOptions{addr: defaultAddr, timeout: defaultRequestTimeout},
			wantRemain: []string{},
		},
		{
			name:       "flags after positional arg are not parsed",
			args:       []string{"run", "--addr", "10.0.0.5:9090"},
			wantOpts:   globalOptions{addr: defaultAddr, timeout: defaultRequestTimeout},
			wantRemain: []string{"run", "--addr", "10.0.0.5:9090"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, remain, err := parseGlobal(tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOpts, opts)
			assert.Equal(t, tt.wantRemain, remain)
		})
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	err := dispatch(context.Background(), []string{"sandwich"}, commonFlags{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "sandwich"`)
}

func TestDispatchUnknownSubcommands(t *testing.T) {
	base := commonFlags{addr: defaultAddr}
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"simulation", []string{"simulation", "bogus"}, "unknown simulation command"},
		{"run", []string{"run", "bogus"}, "unknown run command"},
		{"schedule", []string{"schedule", "bogus"}, "unknown schedule command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := dispatch(context.Background(), tt.args, base)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestIsHelpToken(t *testing.T) {
	assert.True(t, isHelpToken("help"))
	assert.True(t, isHelpToken("-h"))
	assert.True(t, isHelpToken("--help"))
	assert.True(t, isHelpToken("  help  "))
	assert.False(t, isHelpToken("status"))
	assert.False(t, isHelpToken(""))
}
