package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_makeVersionString(t *testing.T) {
	type args struct {
		version    string
		commitHash string
		prerelease string
		snapshot   string
		os         string
		arch       string
		branch     string
	}
	tests := []struct {
		name     string
		args     args
		expected string
	}{
		{
			name: "Typical Development",
			args: args{
				version:    "1.0.0",
				commitHash: "abc123",
				os:         "darwin",
				arch:       "amd64",
				branch:     "Branch1",
			},
			expected: "1.0.0(abc123)[Branch1]/darwin-amd64",
		},
		{
			name: "With prerelease",
			args: args{
				version:    "1.0.0",
				commitHash: "abc123",
				prerelease: "alpha",
				snapshot:   "true",
				os:         "linux",
				arch:       "arm64",
			},
			expected: "1.0.0(abc123)-alpha/linux-arm64",
		},
		{
			name: "Snapshot",
			args: args{
				version:    "1.0.0",
				commitHash: "abc123",
				snapshot:   "true",
			},
			expected: "1.0.0(abc123)-snapshot",
		},
		{
			name: "No commit hash, os only",
			args: args{
				version: "1.0.0",
				os:      "windows",
			},
			expected: "1.0.0/windows",
		},
		{
			name: "Branch Main",
			args: args{
				version:    "1.0.0",
				commitHash: "abc123",
				os:         "darwin",
				arch:       "amd64",
				branch:     "main",
			},
			expected: "1.0.0(abc123)/darwin-amd64",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := makeVersionString(tt.args.version, tt.args.commitHash, tt.args.prerelease, tt.args.snapshot, tt.args.os, tt.args.arch, tt.args.branch)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestGetVersion(t *testing.T) {
	defer func() {
		Version = ""
		CommitHash = ""
	}()

	testCases := []struct {
		name     string
		version  string
		commit   string
		expected string
	}{
		{"unset", "", "", "dev"},
		{"tagged release", "v1.0.0", "deadbeef", "v1.0.0(deadbeef)"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			Version = tc.version
			CommitHash = tc.commit
			assert.Equal(t, tc.expected, GetVersion())
			assert.Equal(t, "rget/"+tc.expected, UserAgent())
		})
	}
}
