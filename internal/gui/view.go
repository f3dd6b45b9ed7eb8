package gui

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
)

var scaleOptions = []string{"2x", "4x"}

// View holds the widgets of the batch window. All methods must run on the
// fyne main goroutine.
type View struct {
	window     fyne.Window
	controller *Controller

	fileList    *widget.List
	files       []string
	modelEntry  *widget.Entry
	scaleSelect *widget.Select
	addButton   *widget.Button
	clearButton *widget.Button
	startButton *widget.Button
	stopButton  *widget.Button
	progressBar *widget.ProgressBar
	statusLabel *widget.Label

	mainContainer *fyne.Container
}

func NewView(window fyne.Window) *View {
	view := &View{
		window: window,
	}

	view.setupComponents()
	view.setupLayout()

	return view
}

func (v *View) SetController(controller *Controller) {
	v.controller = controller
	v.setupEventHandlers()
}

func (v *View) setupComponents() {
	v.fileList = widget.NewList(
		func() int { return len(v.files) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			obj.(*widget.Label).SetText(v.files[id])
		},
	)

	v.modelEntry = widget.NewEntry()
	v.modelEntry.SetPlaceHolder("model.onnx, nearest or resample:lanczos")

	v.scaleSelect = widget.NewSelect(scaleOptions, nil)
	v.scaleSelect.SetSelected("4x")

	v.addButton = widget.NewButton("Add Images", nil)
	v.clearButton = widget.NewButton("Clear", nil)

	v.startButton = widget.NewButton("Start", nil)
	v.startButton.Importance = widget.HighImportance

	v.stopButton = widget.NewButton("Stop", nil)
	v.stopButton.Disable()

	v.progressBar = widget.NewProgressBar()
	v.statusLabel = widget.NewLabel("Ready")
}

func (v *View) setupLayout() {
	settings := container.NewVBox(
		widget.NewLabel("Model"),
		v.modelEntry,
		widget.NewLabel("Scale"),
		v.scaleSelect,
	)

	buttons := container.NewHBox(
		v.addButton,
		v.clearButton,
		widget.NewSeparator(),
		v.startButton,
		v.stopButton,
	)

	bottom := container.NewVBox(
		buttons,
		v.progressBar,
		v.statusLabel,
	)

	v.mainContainer = container.NewBorder(settings, bottom, nil, nil, v.fileList)
}

func (v *View) setupEventHandlers() {
	if v.controller == nil {
		return
	}

	v.addButton.OnTapped = v.controller.AddFiles
	v.clearButton.OnTapped = v.controller.ClearFiles
	v.startButton.OnTapped = v.controller.Start
	v.stopButton.OnTapped = v.controller.Stop
}

func (v *View) SetFiles(files []string) {
	v.files = files
	v.fileList.Refresh()
}

func (v *View) ModelPath() string {
	return v.modelEntry.Text
}

func (v *View) ScaleLabel() string {
	return v.scaleSelect.Selected
}

func (v *View) SetStatus(status string) {
	v.statusLabel.SetText(status)
}

func (v *View) SetProgress(progress float64) {
	v.progressBar.SetValue(progress)
}

// SetRunning toggles the controls between idle and batch-in-progress
func (v *View) SetRunning(running bool) {
	if running {
		v.startButton.Disable()
		v.addButton.Disable()
		v.clearButton.Disable()
		v.stopButton.Enable()
		return
	}
	v.startButton.Enable()
	v.addButton.Enable()
	v.clearButton.Enable()
	v.stopButton.Disable()
}

func (v *View) ShowError(err error) {
	dialog.ShowError(err, v.window)
}

func (v *View) ShowInfo(title, message string) {
	dialog.ShowInformation(title, message, v.window)
}

func (v *View) ShowFileDialog(callback func(fyne.URIReadCloser, error)) {
	dialog.ShowFileOpen(callback, v.window)
}

func (v *View) ShowFolderDialog(callback func(fyne.ListableURI, error)) {
	dialog.ShowFolderOpen(callback, v.window)
}

func (v *View) Show() {
	v.window.SetContent(v.mainContainer)
	v.window.Resize(fyne.NewSize(640, 480))
	v.window.Show()
}

func summaryText(succeeded, failed int, cancelled bool) string {
	if cancelled {
		return fmt.Sprintf("Cancelled: %d written, %d failed", succeeded, failed)
	}
	return fmt.Sprintf("Done: %d written, %d failed", succeeded, failed)
}
