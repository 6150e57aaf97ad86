package domain

// Markers the model is instructed to put around an embedded SVG drawing.
// They are stripped before text is displayed or spoken.
const (
	GraphicsOpenMarker  = "[[DESEN_SVG]]"
	GraphicsCloseMarker = "[[/DESEN_SVG]]"
)
