package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ingest/pkg/ingest"
)

func TestBuildRequest(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    ingest.Request
		wantErr string
	}{
		{
			name: "get status",
			args: []string{"GET", "/status"},
			want: ingest.Request{Method: ingest.MethodGet, Path: "/status"},
		},
		{
			name: "lowercase method",
			args: []string{"post", "/data", "hello world"},
			want: ingest.Request{Method: ingest.MethodPost, Path: "/data", Payload: "hello world"},
		},
		{
			name: "get ignores payload position",
			args: []string{"GET", "/shutdown", "extra"},
			want: ingest.Request{Method: ingest.MethodGet, Path: "/shutdown", Payload: "extra"},
		},
		{
			name:    "too few arguments",
			args:    []string{"GET"},
			wantErr: errInsufficientArgs.Error(),
		},
		{
			name:    "no arguments",
			args:    nil,
			wantErr: errInsufficientArgs.Error(),
		},
		{
			name:    "unknown method",
			args:    []string{"PUT", "/data", "x"},
			wantErr: "unknown method 'PUT'",
		},
		{
			name:    "post without payload",
			args:    []string{"POST", "/data"},
			wantErr: errPayloadRequired.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildRequest(tt.args)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRootCommandAgainstServer(t *testing.T) {
	server := ingest.NewServer("127.0.0.1:0", ingest.Config{})
	done, err := server.Start(context.Background())
	require.NoError(t, err)
	defer func() {
		_ = server.Stop()
		<-done
	}()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs([]string{"--addr", server.GetAddress(), "POST", "/data", "from cli"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, ingest.ResponseDataCreated+"\n", stdout.String())
	assert.Equal(t, []string{"from cli"}, server.Store().Snapshot())
}

func TestRootCommandRejectsBadArgs(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs([]string{"POST", "/data"})

	err := cmd.Execute()
	assert.ErrorIs(t, err, errPayloadRequired)
	assert.Contains(t, stdout.String(), "Usage:")
}

func TestRootCommandConnectFailure(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs([]string{
		"--addr", "127.0.0.1:1",
		"--reconnect=false",
		"--timeout", (500 * time.Millisecond).String(),
		"GET", "/status",
	})

	err := cmd.Execute()
	assert.ErrorIs(t, err, ingest.ErrConnectionFailed)
	assert.Empty(t, stdout.String())
}
