package model

// The notification model is vendor-neutral. Adapters translate it to
// whatever payload shape their chat backend expects.

// Color hints for rendered messages.
const (
	ColorGreen  = "#36a64f"
	ColorRed    = "#a6364f"
	ColorOrange = "#ffa500"
	ColorBlack  = "#000000"
)

// MessageAction is an interactive control attached to a message. Value is
// echoed back in the callback so the confirmation workflow can tell which
// action (or decline) was chosen.
type MessageAction struct {
	Name  string
	Label string
	Value string
	Style string
}

// MessageAttachment is one block of a notification, optionally carrying
// interactive actions correlated by CallbackID (the ActionSet id).
type MessageAttachment struct {
	Title      string
	Text       string
	Fallback   string
	Color      string
	CallbackID string
	Actions    []MessageAction
}

// NotificationMessage is a renderable message for an operator channel.
type NotificationMessage struct {
	Channel     string
	Text        string
	Color       string
	Attachments []MessageAttachment
}

// MessageRef identifies a posted message so it can later be updated in
// place.
type MessageRef struct {
	Channel   string
	Timestamp string
}
