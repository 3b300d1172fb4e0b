package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name string
		path string
		ok   bool
	}{
		{"valid sdcard path", "/sdcard/Sync", true},
		{"valid nested path", "/home/user/Documents/Shared", true},
		{"root", "/", true},
		{"empty", "", false},
		{"blank", "   ", false},
		{"relative", "sdcard/Sync", false},
		{"traversal", "/sdcard/../data/data/evil", false},
		{"traversal at end", "/sdcard/Sync/..", false},
		{"denied data", "/data/data/evil", false},
		{"denied data exact", "/data", false},
		{"denied system", "/system/bin", false},
		{"denied proc", "/proc/1/mem", false},
		{"denied sys", "/sys/kernel", false},
		{"denied dev", "/dev/block", false},
		{"denied etc", "/etc/passwd", false},
		{"prefix lookalike is fine", "/database/files", true},
		{"dots in names are fine", "/sdcard/..hidden../x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path)
			if tt.ok {
				assert.NoError(t, err, "path %q", tt.path)
			} else {
				assert.Error(t, err, "path %q", tt.path)
			}
		})
	}
}
