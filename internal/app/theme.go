package app

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

// MaskforgeTheme darkens the chrome around the preview so the mask is judged
// against the same black the exposure panel shows.
type MaskforgeTheme struct{}

var _ fyne.Theme = (*MaskforgeTheme)(nil)

func (t *MaskforgeTheme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	switch name {
	case theme.ColorNameBackground:
		return color.NRGBA{R: 0x1A, G: 0x1A, B: 0x1E, A: 0xFF}
	case theme.ColorNamePrimary:
		return color.NRGBA{R: 0x7B, G: 0x2F, B: 0xBF, A: 0xFF} // UV violet
	default:
		return theme.DefaultTheme().Color(name, theme.VariantDark)
	}
}

func (t *MaskforgeTheme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

func (t *MaskforgeTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

func (t *MaskforgeTheme) Size(name fyne.ThemeSizeName) float32 {
	return theme.DefaultTheme().Size(name)
}
