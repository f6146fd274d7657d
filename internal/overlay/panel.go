package overlay

// Panel is the popup shown under the road. At most one is open at a time.
type Panel int

const (
	PanelNone Panel = iota
	PanelMenu
	PanelDevices
	PanelHelp
	PanelHistory
	PanelConfirmStop
)

func (p Panel) String() string {
	switch p {
	case PanelNone:
		return "None"
	case PanelMenu:
		return "Menu"
	case PanelDevices:
		return "Devices"
	case PanelHelp:
		return "Help"
	case PanelHistory:
		return "History"
	case PanelConfirmStop:
		return "ConfirmStop"
	default:
		return "Unknown"
	}
}

// PanelInfo contains display information for a panel
type PanelInfo struct {
	Panel       Panel
	DisplayName string
	KeyBinding  rune // 0 when the panel has no toggle key
}

// AllPanels lists the panels in menu order
var AllPanels = []PanelInfo{
	{Panel: PanelMenu, DisplayName: "Menu", KeyBinding: 'm'},
	{Panel: PanelDevices, DisplayName: "Devices", KeyBinding: 'd'},
	{Panel: PanelHistory, DisplayName: "History", KeyBinding: 'r'},
	{Panel: PanelHelp, DisplayName: "Help", KeyBinding: '?'},
	{Panel: PanelConfirmStop, DisplayName: "Stop recording?"},
}

// GetPanelByKey returns the panel toggled by key
func GetPanelByKey(key rune) (Panel, bool) {
	for _, info := range AllPanels {
		if info.KeyBinding != 0 && info.KeyBinding == key {
			return info.Panel, true
		}
	}
	return PanelNone, false
}

// GetPanelInfo returns the display information for p
func GetPanelInfo(p Panel) (PanelInfo, bool) {
	for _, info := range AllPanels {
		if info.Panel == p {
			return info, true
		}
	}
	return PanelInfo{}, false
}

// TogglePanel returns the panel to show when requested is asked for while
// current is open. Asking for the open panel again closes it.
func TogglePanel(current, requested Panel) Panel {
	if current == requested {
		return PanelNone
	}
	return requested
}
