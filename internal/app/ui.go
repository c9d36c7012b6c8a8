package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/data/binding"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"go.uber.org/zap"

	"yashubustudio/reviewlens/internal/client"
	"yashubustudio/reviewlens/internal/dashboard"
	"yashubustudio/reviewlens/sentiment"
)

const (
	correctedCSVName  = "sentiment_corrected.csv"
	correctedXLSXName = "sentiment_corrected.xlsx"
	timeoutMessage    = "the service did not answer in time; the model may still be loading, retry in a minute"
)

type tableColumn struct {
	Title  string
	Width  float32
	Render func(dashboard.Row) string
}

var tableColumns = []tableColumn{
	{Title: "#", Width: 60, Render: func(r dashboard.Row) string { return strconv.Itoa(r.Pos + 1) }},
	{Title: "text", Width: 420, Render: func(r dashboard.Row) string { return r.Text }},
	{Title: "src", Width: 100, Render: func(r dashboard.Row) string { return r.Source }},
	{Title: "label", Width: 100, Render: func(r dashboard.Row) string { return r.Label.String() }},
	{Title: "confidence", Width: 100, Render: func(r dashboard.Row) string { return fmt.Sprintf("%.3f", r.Confidence) }},
}

type uiState struct {
	cfgPath string
	logger  *zap.Logger

	w          fyne.Window
	statusBind binding.String
	logBind    binding.String
	log        *widget.Entry
	sources    *widget.CheckGroup
	labels     *widget.CheckGroup
	search     *widget.Entry
	resTbl     *widget.Table
	hist       *histogram
	f1         *widget.Label

	uploadBtn *widget.Button
	csvBtn    *widget.Button
	xlsxBtn   *widget.Button
	truthBtn  *widget.Button

	mu      sync.Mutex
	cfg     Config
	client  *client.Client
	session *dashboard.Session
	view    []dashboard.Row
}

func labelNames() []string {
	out := make([]string, len(sentiment.Labels))
	for i, l := range sentiment.Labels {
		out[i] = l.String()
	}
	return out
}

func buildUI(a fyne.App, cfgPath string, cfg Config, c *client.Client, logBind binding.String, logger *zap.Logger) *uiState {
	u := &uiState{cfgPath: cfgPath, cfg: cfg, client: c, logger: logger, logBind: logBind}
	u.w = a.NewWindow("ReviewLens - Sentiment Review")

	u.statusBind = binding.NewString()
	_ = u.statusBind.Set("Upload a CSV with a 'text' column")

	u.log = widget.NewEntryWithData(u.logBind)
	u.log.MultiLine = true
	u.log.Wrapping = fyne.TextWrapWord
	u.log.Disable()

	u.sources = widget.NewCheckGroup(nil, func([]string) { u.refreshView() })
	u.labels = widget.NewCheckGroup(labelNames(), func([]string) { u.refreshView() })
	u.labels.SetSelected(labelNames())
	u.search = widget.NewEntry()
	u.search.SetPlaceHolder("Search text")
	u.search.OnChanged = func(string) { u.refreshView() }

	u.hist = newHistogram()
	u.f1 = widget.NewLabelWithStyle("Macro-F1: -", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})

	u.uploadBtn = widget.NewButtonWithIcon("Upload CSV", theme.FolderOpenIcon(), func() { u.onUpload() })
	u.csvBtn = widget.NewButtonWithIcon("Export CSV", theme.DocumentSaveIcon(), func() { u.onExportCSV() })
	u.xlsxBtn = widget.NewButtonWithIcon("Export XLSX", theme.DocumentSaveIcon(), func() { u.onExportXLSX() })
	u.truthBtn = widget.NewButtonWithIcon("Ground truth", theme.ConfirmIcon(), func() { u.onGroundTruth() })
	settingsBtn := widget.NewButtonWithIcon("Settings", theme.SettingsIcon(), func() { u.onSettings() })

	u.resTbl = widget.NewTable(
		func() (int, int) {
			u.mu.Lock()
			defer u.mu.Unlock()
			return len(u.view) + 1, len(tableColumns)
		},
		func() fyne.CanvasObject {
			return widget.NewLabel("")
		},
		func(id widget.TableCellID, obj fyne.CanvasObject) {
			lbl := obj.(*widget.Label)
			lbl.Truncation = fyne.TextTruncateEllipsis
			if id.Row == 0 {
				lbl.TextStyle = fyne.TextStyle{Bold: true}
				lbl.SetText(tableColumns[id.Col].Title)
				return
			}
			lbl.TextStyle = fyne.TextStyle{}
			u.mu.Lock()
			var row dashboard.Row
			ok := id.Row-1 < len(u.view)
			if ok {
				row = u.view[id.Row-1]
			}
			u.mu.Unlock()
			if !ok {
				lbl.SetText("")
				return
			}
			lbl.SetText(tableColumns[id.Col].Render(row))
		},
	)
	for i, col := range tableColumns {
		u.resTbl.SetColumnWidth(i, col.Width)
	}
	u.resTbl.OnSelected = func(id widget.TableCellID) {
		u.resTbl.UnselectAll()
		if id.Row == 0 {
			return
		}
		u.mu.Lock()
		var row dashboard.Row
		ok := id.Row-1 < len(u.view)
		if ok {
			row = u.view[id.Row-1]
		}
		u.mu.Unlock()
		if ok {
			u.openRelabel(row)
		}
	}

	u.setLoaded(false)

	filters := container.NewVBox(
		widget.NewLabelWithStyle("Source", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		u.sources,
		widget.NewLabelWithStyle("Label", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		u.labels,
		u.search,
	)
	left := container.NewVBox(
		container.NewGridWithColumns(2, u.uploadBtn, u.truthBtn),
		container.NewGridWithColumns(2, u.csvBtn, u.xlsxBtn),
		settingsBtn,
		widget.NewSeparator(),
		filters,
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Distribution", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		u.hist.root,
		u.f1,
		widget.NewLabelWithData(u.statusBind),
	)
	right := container.NewVSplit(u.resTbl, u.log)
	right.Offset = 0.78
	split := container.NewHSplit(container.NewVScroll(left), right)
	split.Offset = 0.3

	u.w.SetContent(split)
	u.w.Resize(fyne.NewSize(1280, 800))
	return u
}

func (u *uiState) setStatus(text string) {
	_ = u.statusBind.Set(text)
}

func (u *uiState) setBusy(b bool) {
	fyne.Do(func() {
		if b {
			u.uploadBtn.Disable()
			u.truthBtn.Disable()
			return
		}
		u.uploadBtn.Enable()
		u.setLoaded(u.currentSession() != nil)
	})
}

func (u *uiState) setLoaded(loaded bool) {
	for _, b := range []*widget.Button{u.csvBtn, u.xlsxBtn, u.truthBtn} {
		if loaded {
			b.Enable()
		} else {
			b.Disable()
		}
	}
}

func (u *uiState) api() *client.Client {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.client
}

func (u *uiState) currentSession() *dashboard.Session {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.session
}

func (u *uiState) showError(err error) {
	if client.IsTimeout(err) {
		err = errors.New(timeoutMessage)
	}
	u.logger.Error("request failed", zap.Error(err))
	u.setStatus("Error")
	fyne.Do(func() {
		dialog.ShowError(err, u.w)
	})
}

func (u *uiState) checkHealth() {
	go func() {
		c := u.api()
		h, err := c.Health(context.Background())
		if err != nil {
			u.logger.Warn("backend unreachable", zap.String("url", c.BaseURL()), zap.Error(err))
			u.setStatus("Backend unreachable: " + c.BaseURL())
			return
		}
		if !h.ModelLoaded {
			u.setStatus(fmt.Sprintf("Backend up, model %s", h.State))
			return
		}
		u.logger.Info("backend ready", zap.String("model_id", h.ModelID))
		u.setStatus("Backend ready")
	}()
}

func (u *uiState) currentFilter(s *dashboard.Session) dashboard.Filter {
	return selectionFilter(s.HasSource(), u.sources.Selected, u.labels.Selected, u.search.Text)
}

// selectionFilter maps the check groups onto a view filter. Nothing ticked in
// a group leaves that field unfiltered.
func selectionFilter(hasSource bool, sources, labels []string, search string) dashboard.Filter {
	f := dashboard.Filter{Search: search}
	if hasSource && len(sources) > 0 {
		f.Sources = append([]string(nil), sources...)
	}
	for _, name := range labels {
		if l, err := sentiment.ParseLabel(name); err == nil {
			f.Labels = append(f.Labels, l)
		}
	}
	return f
}

// refreshView re-applies the filters. It must run on the UI goroutine.
func (u *uiState) refreshView() {
	s := u.currentSession()
	if s == nil {
		return
	}
	view := s.View(u.currentFilter(s))
	u.mu.Lock()
	u.view = view
	u.mu.Unlock()
	u.resTbl.Refresh()
	u.hist.update(dashboard.Histogram(view))
	u.setStatus(fmt.Sprintf("Showing %d of %d rows", len(view), s.Len()))
}

func (u *uiState) onUpload() {
	fd := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
		if err != nil || rc == nil {
			return
		}
		defer rc.Close()
		name := filepath.Base(rc.URI().Path())
		if !sentiment.HasCSVExtension(name) {
			dialog.ShowError(errors.New("only CSV files are supported"), u.w)
			return
		}
		data, err := io.ReadAll(rc)
		if err != nil {
			dialog.ShowError(err, u.w)
			return
		}
		u.predict(name, data)
	}, u.w)
	fd.SetFilter(storage.NewExtensionFileFilter([]string{".csv"}))
	fd.Show()
}

func (u *uiState) predict(name string, data []byte) {
	u.setBusy(true)
	u.setStatus("Predicting " + name + "...")
	u.logger.Info("uploading", zap.String("file", name), zap.Int("bytes", len(data)))

	go func() {
		defer u.setBusy(false)
		table, err := u.api().Predict(context.Background(), name, data)
		if err != nil {
			u.showError(err)
			return
		}
		s, err := dashboard.NewSession(table)
		if err != nil {
			u.showError(err)
			return
		}
		u.mu.Lock()
		u.session = s
		u.mu.Unlock()
		u.logger.Info("predictions received", zap.Int("rows", s.Len()))

		fyne.Do(func() {
			srcs := s.Sources()
			u.sources.Options = srcs
			u.sources.SetSelected(srcs)
			u.sources.Refresh()
			u.f1.SetText("Macro-F1: -")
			u.refreshView()
		})
	}()
}

func (u *uiState) openRelabel(row dashboard.Row) {
	s := u.currentSession()
	if s == nil {
		return
	}
	sel := widget.NewSelect(labelNames(), nil)
	sel.SetSelected(row.Label.String())
	text := widget.NewLabel(row.Text)
	text.Wrapping = fyne.TextWrapWord
	content := container.NewVBox(text, sel)

	title := fmt.Sprintf("Relabel row %d", row.Pos+1)
	dialog.NewCustomConfirm(title, "Save", "Cancel", content, func(ok bool) {
		if !ok {
			return
		}
		l, err := sentiment.ParseLabel(sel.Selected)
		if err != nil {
			dialog.ShowError(err, u.w)
			return
		}
		if err := s.SetLabel(row.Pos, l); err != nil {
			dialog.ShowError(err, u.w)
			return
		}
		if l != row.Label {
			u.logger.Info("changes saved", zap.Int("row", row.Pos+1), zap.String("label", l.String()))
		}
		u.refreshView()
	}, u.w).Show()
}

func (u *uiState) onExportCSV() {
	s := u.currentSession()
	if s == nil {
		return
	}
	fd := dialog.NewFileSave(func(uc fyne.URIWriteCloser, err error) {
		if err != nil || uc == nil {
			return
		}
		defer uc.Close()
		if err := s.ExportCSV(uc); err != nil {
			dialog.ShowError(err, u.w)
			return
		}
		u.logger.Info("exported csv", zap.Int("rows", s.Len()), zap.Bool("edited", s.Edited()))
	}, u.w)
	fd.SetFileName(correctedCSVName)
	fd.Show()
}

func (u *uiState) onExportXLSX() {
	s := u.currentSession()
	if s == nil {
		return
	}
	fd := dialog.NewFileSave(func(uc fyne.URIWriteCloser, err error) {
		if err != nil || uc == nil {
			return
		}
		defer uc.Close()
		if err := s.ExportXLSX(uc); err != nil {
			dialog.ShowError(err, u.w)
			return
		}
		u.logger.Info("exported xlsx", zap.Int("rows", s.Len()))
	}, u.w)
	fd.SetFileName(correctedXLSXName)
	fd.Show()
}

func (u *uiState) onGroundTruth() {
	s := u.currentSession()
	if s == nil {
		return
	}
	fd := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
		if err != nil || rc == nil {
			return
		}
		defer rc.Close()
		truth, err := io.ReadAll(rc)
		if err != nil {
			dialog.ShowError(err, u.w)
			return
		}
		u.evaluate(s, truth)
	}, u.w)
	fd.SetFilter(storage.NewExtensionFileFilter([]string{".csv"}))
	fd.Show()
}

func (u *uiState) evaluate(s *dashboard.Session, truth []byte) {
	pred, err := s.PredictionsCSV()
	if err != nil {
		dialog.ShowError(err, u.w)
		return
	}
	u.setBusy(true)
	u.setStatus("Evaluating...")
	go func() {
		defer u.setBusy(false)
		res, err := u.api().Evaluate(context.Background(), pred, truth)
		if err != nil {
			u.showError(err)
			return
		}
		u.logger.Info("evaluated", zap.Float64("macro_f1", res.MacroF1), zap.Int("rows", res.Support))
		u.setStatus(fmt.Sprintf("Evaluated %d rows", res.Support))
		fyne.Do(func() {
			u.f1.SetText(fmt.Sprintf("Macro-F1: %.4f", res.MacroF1))
		})
	}()
}

func (u *uiState) onSettings() {
	u.mu.Lock()
	cfg := u.cfg
	u.mu.Unlock()

	urlEntry := widget.NewEntry()
	urlEntry.SetText(cfg.BackendURL)
	retriesEntry := widget.NewEntry()
	retriesEntry.SetText(strconv.Itoa(cfg.MaxRetries))
	timeoutEntry := widget.NewEntry()
	timeoutEntry.SetText(time.Duration(cfg.PredictTimeout).String())

	items := []*widget.FormItem{
		widget.NewFormItem("Backend URL", urlEntry),
		widget.NewFormItem("Retries", retriesEntry),
		widget.NewFormItem("Predict timeout", timeoutEntry),
	}
	dialog.ShowForm("Backend settings", "Save", "Cancel", items, func(ok bool) {
		if !ok {
			return
		}
		next, err := applySettings(cfg, urlEntry.Text, retriesEntry.Text, timeoutEntry.Text)
		if err != nil {
			dialog.ShowError(err, u.w)
			return
		}
		if err := SaveConfig(u.cfgPath, next); err != nil {
			dialog.ShowError(fmt.Errorf("save settings: %w", err), u.w)
			return
		}
		u.mu.Lock()
		u.cfg = next
		u.client = client.New(next.ClientConfig(), u.logger)
		u.mu.Unlock()
		u.logger.Info("settings saved", zap.String("backend", next.BackendURL), zap.Int("retries", next.MaxRetries))
		u.checkHealth()
	}, u.w)
}

// applySettings validates the settings form and merges it into cfg.
func applySettings(cfg Config, backendURL, retries, predictTimeout string) (Config, error) {
	backendURL = strings.TrimSpace(backendURL)
	if !strings.HasPrefix(backendURL, "http://") && !strings.HasPrefix(backendURL, "https://") {
		return cfg, errors.New("backend URL must start with http:// or https://")
	}
	n, err := strconv.Atoi(strings.TrimSpace(retries))
	if err != nil || n < 0 {
		return cfg, errors.New("retries must be a non-negative integer")
	}
	d, err := time.ParseDuration(strings.TrimSpace(predictTimeout))
	if err != nil || d <= 0 {
		return cfg, errors.New("predict timeout must be a duration such as 3m")
	}
	cfg.BackendURL = backendURL
	cfg.MaxRetries = n
	cfg.PredictTimeout = sentiment.Duration(d)
	return sanitizeConfig(cfg), nil
}
