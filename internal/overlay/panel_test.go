package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTogglePanel(t *testing.T) {
	tests := []struct {
		name               string
		current, requested Panel
		want               Panel
	}{
		{"opens from none", PanelNone, PanelMenu, PanelMenu},
		{"same panel closes", PanelMenu, PanelMenu, PanelNone},
		{"switches to another", PanelMenu, PanelHistory, PanelHistory},
		{"none stays none", PanelNone, PanelNone, PanelNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TogglePanel(tt.current, tt.requested))
		})
	}
}

func TestGetPanelByKey(t *testing.T) {
	p, ok := GetPanelByKey('d')
	assert.True(t, ok)
	assert.Equal(t, PanelDevices, p)

	_, ok = GetPanelByKey('x')
	assert.False(t, ok)

	info, ok := GetPanelInfo(PanelConfirmStop)
	assert.True(t, ok)
	assert.Zero(t, info.KeyBinding, "the stop confirmation has no toggle key")
}
