package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"kb-assistant/internal/api"
	"kb-assistant/internal/chat"
	"kb-assistant/internal/harvest"
	"kb-assistant/internal/ingest"
	"kb-assistant/internal/pdfcheck"
	"kb-assistant/internal/registry"
	"kb-assistant/internal/terminal"
	"kb-assistant/internal/ui"
	"kb-assistant/internal/watcher"
)

// handleCommand dispatches one slash command
func (a *app) handleCommand(ctx context.Context, cmd string, args []string) {
	switch cmd {
	case "/help":
		a.display.PrintHelp()

	case "/lang":
		a.cmdLanguage(args)

	case "/history":
		a.display.PrintHistory(a.chat.Messages())

	case "/clear":
		a.display.ClearScreen()
		a.display.PrintWelcome(a.client.BaseURL(), a.chat.Language())

	case "/export":
		if len(args) != 1 {
			a.display.PrintWarning("Usage: /export <path>")
			return
		}
		path := terminal.ExpandPaths(args, a.home)[0]
		if err := a.archive.Export(path, a.chat.Session()); err != nil {
			a.display.PrintError(err)
			return
		}
		a.display.PrintSuccess(fmt.Sprintf("Conversation saved to %s", path))

	case "/pick":
		a.cmdPick(args)

	case "/files":
		dir := "."
		if len(args) > 0 {
			dir = terminal.ExpandPaths(args[:1], a.home)[0]
		}
		files := terminal.FindMatchingFiles(dir, "", a.ingest.Accepts)
		if len(files) == 0 {
			a.display.PrintInfo(fmt.Sprintf("No documents found under %s", dir))
			return
		}
		a.display.PrintList(fmt.Sprintf("Documents under %s", dir), files)

	case "/selection":
		a.cmdSelection()

	case "/upload":
		switch err := a.ingest.Submit(); {
		case errors.Is(err, ingest.ErrBusy):
			a.display.PrintWarning("An upload is already running.")
		case errors.Is(err, ingest.ErrEmptySelection):
			// status line already reported by the coordinator
		case err != nil:
			a.display.PrintError(err)
		}

	case "/docs":
		if a.registry.Snapshot().Seq == 0 {
			a.refreshDocuments(ctx)
			return
		}
		a.display.PrintDocuments(a.registry.Snapshot(), a.registry.Status())

	case "/refresh":
		a.refreshDocuments(ctx)

	case "/watch":
		if len(args) != 1 {
			a.display.PrintWarning("Usage: /watch <dir>")
			return
		}
		dir := terminal.ExpandPaths(args, a.home)[0]
		if err := a.startWatch(ctx, dir); err != nil {
			a.display.PrintError(err)
		}

	case "/unwatch":
		dir := a.stopWatch()
		if dir == "" {
			a.display.PrintInfo("Not watching any folder.")
			return
		}
		a.display.PrintInfo(fmt.Sprintf("Stopped watching %s", dir))

	case "/harvest":
		if len(args) != 1 {
			a.display.PrintWarning("Usage: /harvest <url>")
			return
		}
		a.cmdHarvest(ctx, args[0])

	default:
		a.display.PrintWarning(fmt.Sprintf("Unknown command %s. Type /help for the list.", cmd))
	}
}

func (a *app) cmdLanguage(args []string) {
	if len(args) == 0 {
		a.display.PrintLanguages(a.chat.Language())
		return
	}
	if err := a.chat.SetLanguage(args[0]); err != nil {
		a.display.PrintError(err)
		return
	}
	lang := a.chat.Language()
	a.display.PrintInfo(fmt.Sprintf("Answer language: %s (%s)", chat.LanguageName(lang), lang))
}

func (a *app) cmdPick(args []string) {
	if len(args) == 0 {
		a.display.PrintWarning("Usage: /pick <path|glob>...")
		return
	}

	paths := terminal.ExpandPaths(args, a.home)
	refs, errs := ingest.LoadFiles(paths, a.cfg.MaxFileSize)
	for _, err := range errs {
		a.display.PrintError(err)
	}

	kept := a.ingest.Select(refs)
	if ignored := len(refs) - kept; ignored > 0 {
		a.display.PrintWarning(fmt.Sprintf("Ignored %d file(s) with unsupported extensions", ignored))
	}
	a.display.PrintInfo(fmt.Sprintf("%d file(s) selected", kept))
}

func (a *app) cmdSelection() {
	selection := a.ingest.Selection()
	entries := make([]ui.SelectionEntry, 0, len(selection))
	for _, ref := range selection {
		entry := ui.SelectionEntry{Name: ref.Name, Size: len(ref.Data)}
		if pdfcheck.HasHeader(ref.Data) {
			info, err := pdfcheck.Inspect(ref.Data)
			entry.Pages, entry.Err = info.Pages, err
		}
		entries = append(entries, entry)
	}
	a.display.PrintSelection(entries)
}

func (a *app) refreshDocuments(ctx context.Context) {
	spinner := a.display.StartSpinner("Loading documents...")
	snap, err := a.registry.Refresh(ctx)
	spinner.Stop()
	if err != nil && !errors.Is(err, registry.ErrStale) {
		a.logger.Debug("document refresh failed", zap.Error(err))
	}
	a.display.PrintDocuments(snap, a.registry.Status())
}

func (a *app) cmdHarvest(ctx context.Context, pageURL string) {
	spinner := a.display.StartSpinner("Harvesting PDFs...")
	results, err := a.harvester.Harvest(ctx, pageURL)
	spinner.Stop()
	if err != nil {
		a.display.PrintError(err)
		return
	}

	a.display.PrintHarvest(results)
	files := harvest.Files(results)
	if len(files) == 0 {
		return
	}
	added := a.ingest.Add(files)
	a.display.PrintInfo(fmt.Sprintf("Added %d file(s) to the selection. Use /upload to send them.", added))
}

// startWatch replaces any running folder watch with one on dir
func (a *app) startWatch(ctx context.Context, dir string) error {
	w, err := watcher.New(watcher.Options{Accept: a.ingest.Accepts, Logger: a.logger})
	if err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	events, err := w.Watch(watchCtx, dir)
	if err != nil {
		cancel()
		w.Stop()
		return err
	}

	a.stopWatch()
	a.watchMu.Lock()
	a.watchCancel = func() {
		cancel()
		w.Stop()
	}
	a.watchDir = dir
	a.watchMu.Unlock()

	go a.consumeWatch(events)
	a.display.PrintInfo(fmt.Sprintf("Watching %s for new documents", dir))
	return nil
}

func (a *app) consumeWatch(events <-chan watcher.Event) {
	for ev := range events {
		ref, err := ingest.LoadFile(ev.Path, a.cfg.MaxFileSize)
		if err != nil {
			a.logger.Warn("failed to read watched file", zap.String("path", ev.Path), zap.Error(err))
			continue
		}
		if a.ingest.Add([]api.FileRef{ref}) > 0 {
			a.display.PrintInfo(fmt.Sprintf("%s %s, added to the selection", filepath.Base(ev.Path), ev.Operation))
		}
	}
}

// stopWatch ends the folder watch and returns the directory it covered
func (a *app) stopWatch() string {
	a.watchMu.Lock()
	stop, dir := a.watchCancel, a.watchDir
	a.watchCancel = nil
	a.watchDir = ""
	a.watchMu.Unlock()

	if stop == nil {
		return ""
	}
	stop()
	return dir
}
