// Package main provides the entry point for the Maskforge application.
package main

import (
	"log"
	"time"

	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/dialog"

	"maskforge/internal/app"
	"maskforge/internal/version"
	"maskforge/ui/mainwindow"
	"maskforge/ui/prefs"
)

const appTitle = "Maskforge"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("Starting %s v%s", appTitle, version.Version)

	fyneApp := fyneapp.New()
	fyneApp.Settings().SetTheme(&app.MaskforgeTheme{})

	appState := app.NewState()
	appPrefs := prefs.Load()

	win := mainwindow.New(fyneApp, appState, appPrefs)
	win.SetTitle(appTitle)
	win.SetCloseIntercept(func() {
		win.SavePreferences()
		win.Close()
	})

	setupHotReload(win)

	win.ShowAndRun()
}

// setupHotReload prompts for a restart when a newer binary lands on disk.
func setupHotReload(win *mainwindow.MainWindow) {
	watcher := app.NewBinaryWatcher(2 * time.Second)
	if watcher == nil {
		log.Println("Hot reload: unable to determine executable path")
		return
	}
	log.Printf("Hot reload: watching %s", watcher.ExecPath())

	watcher.OnNewBinary(func() {
		log.Println("Hot reload: newer binary detected")
		dialog.ShowConfirm("New Version Available",
			"The application binary has been updated.\nRestart now?",
			func(restart bool) {
				if !restart {
					watcher.ResetBaseline()
					watcher.Start()
					return
				}
				win.SavePreferences()
				log.Println("Hot reload: restarting...")
				if err := watcher.Restart(); err != nil {
					log.Printf("Hot reload: restart failed: %v", err)
				}
			}, win.Window)
	})

	watcher.Start()
}
