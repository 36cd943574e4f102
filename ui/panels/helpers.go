// Package panels provides the per-format input panels.
package panels

import (
	"path/filepath"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"

	"maskforge/ui/prefs"
)

const prefKeyLastDir = "lastDirectory"

// openFile shows a file-open dialog filtered to exts, remembering the last
// used directory across panels and sessions.
func openFile(win fyne.Window, p *prefs.Prefs, exts []string, cb func(path string)) {
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		reader.Close()
		path := reader.URI().Path()
		p.SetString(prefKeyLastDir, filepath.Dir(path))
		cb(path)
	}, win)
	fd.SetFilter(storage.NewExtensionFileFilter(exts))
	if dir := p.String(prefKeyLastDir); dir != "" {
		if lister, err := storage.ListerForURI(storage.NewFileURI(dir)); err == nil {
			fd.SetLocation(lister)
		}
	}
	fd.Show()
}
