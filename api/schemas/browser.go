package schemas

// -- Low-Level Interaction Schemas --

// ElementGeometry defines the bounding box, vertices, and metadata of a DOM element.
type ElementGeometry struct {
	// Vertices holds the four corners of the border box as x,y pairs.
	Vertices []float64 `json:"vertices"`
	Width    int64     `json:"width"`
	Height   int64     `json:"height"`
	TagName  string    `json:"tagName"`
	Type     string    `json:"type,omitempty"`
}

// MouseEventType defines the type of a native mouse event.
type MouseEventType string

const (
	MouseMove    MouseEventType = "mouseMoved"
	MousePress   MouseEventType = "mousePressed"
	MouseRelease MouseEventType = "mouseReleased"
)

// MouseButton defines the mouse button being pressed.
type MouseButton string

const (
	ButtonNone MouseButton = "none"
	ButtonLeft MouseButton = "left"
)

// MouseEventData encapsulates all data for a native mouse event.
type MouseEventData struct {
	Type       MouseEventType `json:"type"`
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	Button     MouseButton    `json:"button"`
	Buttons    int64          `json:"buttons"`
	ClickCount int            `json:"clickCount"`
}

// CursorCoordinate is a viewport position of the visual cursor.
type CursorCoordinate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Visual is a captured image of the visible tab.
type Visual struct {
	OK   bool   `json:"ok"`
	Data []byte `json:"data,omitempty"` // PNG bytes
}
