package main

import (
	"context"
	"flag"
	"log"
	"runtime"

	"offline-enhancer/internal/config"
	"offline-enhancer/internal/gui"
	"offline-enhancer/internal/logger"
	"offline-enhancer/internal/shutdown"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
)

const (
	AppName    = "Offline Enhancer"
	AppID      = "com.offline-enhancer.desktop"
	AppVersion = "1.0.0"
)

type Application struct {
	fyneApp    fyne.App
	window     fyne.Window
	logger     logger.Logger
	controller *gui.Controller
	view       *gui.View
	shutdown   *shutdown.Manager
}

func main() {
	configPath := flag.String("config", "", "JSON config file")
	flag.Parse()

	opts := config.Defaults()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Config load failed: %v", err)
		}
		opts = loaded
	}

	application := NewApplication(context.Background(), opts)
	application.Run()
}

func NewApplication(ctx context.Context, opts config.Options) *Application {
	app.SetMetadata(fyne.AppMetadata{
		ID:      AppID,
		Name:    AppName,
		Version: AppVersion,
	})
	fyneApp := app.NewWithID(AppID)

	window := fyneApp.NewWindow(AppName)
	window.CenterOnScreen()

	appLogger := logger.NewConsoleLogger(logger.LevelFromEnv())
	appLogger.Info("Application", "application starting", map[string]interface{}{
		"version":    AppVersion,
		"go_version": runtime.Version(),
		"num_cpu":    runtime.NumCPU(),
	})

	shutdownManager := shutdown.NewManager(ctx, appLogger)

	controller := gui.NewController(shutdownManager.Context(), opts, appLogger)
	view := gui.NewView(window)
	controller.SetView(view)
	view.SetController(controller)

	shutdownManager.Register("controller", shutdown.Func(func(context.Context) error {
		controller.Shutdown()
		return nil
	}))

	application := &Application{
		fyneApp:    fyneApp,
		window:     window,
		logger:     appLogger,
		controller: controller,
		view:       view,
		shutdown:   shutdownManager,
	}
	application.setupWindowEvents()

	return application
}

func (a *Application) Run() {
	a.shutdown.Listen()

	go func() {
		<-a.shutdown.Done()
		fyne.Do(func() {
			a.fyneApp.Quit()
		})
	}()

	a.view.Show()
	a.fyneApp.Run()

	a.logger.Info("Application", "application terminated", nil)
}

func (a *Application) setupWindowEvents() {
	a.window.SetOnClosed(func() {
		a.logger.Info("Application", "window closed, performing cleanup", nil)
		go a.shutdown.Shutdown()
	})
}
