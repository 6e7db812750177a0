package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"golang.org/x/term"

	"kb-assistant/internal/api"
	"kb-assistant/internal/chat"
	"kb-assistant/internal/harvest"
	"kb-assistant/internal/registry"
)

// Options configures a Display
type Options struct {
	Out io.Writer
	// Markdown renders bot answers with glamour
	Markdown bool
	// Color enables ANSI colors; it is forced off when Out is not a terminal
	Color bool
}

// Display renders the conversation and admin views to the terminal.
// It is safe for concurrent use; controller callbacks print from
// background goroutines.
type Display struct {
	out      io.Writer
	width    int
	tty      bool
	renderer *glamour.TermRenderer

	mu sync.Mutex

	accent  *color.Color
	dim     *color.Color
	user    *color.Color
	bot     *color.Color
	info    *color.Color
	warn    *color.Color
	errc    *color.Color
	success *color.Color
}

// NewDisplay creates a new display
func NewDisplay(opts Options) *Display {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	width, tty := terminalSize(out)

	d := &Display{
		out:     out,
		width:   width,
		tty:     tty,
		accent:  color.New(color.FgCyan, color.Bold),
		dim:     color.New(color.FgHiBlack),
		user:    color.New(color.FgGreen, color.Bold),
		bot:     color.New(color.FgBlue, color.Bold),
		info:    color.New(color.FgCyan),
		warn:    color.New(color.FgYellow),
		errc:    color.New(color.FgRed),
		success: color.New(color.FgGreen),
	}
	if !opts.Color || !tty {
		for _, c := range []*color.Color{d.accent, d.dim, d.user, d.bot, d.info, d.warn, d.errc, d.success} {
			c.DisableColor()
		}
	}

	if opts.Markdown {
		style := glamour.WithAutoStyle()
		if !tty {
			style = glamour.WithStandardStyle("notty")
		}
		// Create markdown renderer
		renderer, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width-10))
		if err == nil {
			d.renderer = renderer
		}
	}
	return d
}

// ClearScreen clears the terminal
func (d *Display) ClearScreen() {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprint(d.out, "\033[2J\033[H")
}

// PrintWelcome displays the banner. The greeting is display-only and is
// not part of the conversation log.
func (d *Display) PrintWelcome(apiURL, language string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	line := strings.Repeat("─", minInt(d.width, 60))
	d.accent.Fprintln(d.out, line)
	d.accent.Fprintln(d.out, "  kb-assistant · campus knowledge base")
	d.accent.Fprintln(d.out, line)
	fmt.Fprintf(d.out, "%s %s\n", d.dim.Sprint("Backend: "), apiURL)
	fmt.Fprintf(d.out, "%s %s (%s)\n", d.dim.Sprint("Language:"), chat.LanguageName(language), language)
	d.dim.Fprintln(d.out, "Type a question, or /help for commands.")
	fmt.Fprintln(d.out)
	d.bot.Fprint(d.out, "Bot · ")
	fmt.Fprintln(d.out, "Hello! Ask me anything about admissions, fees, timetables or circulars.")
}

// PrintPrompt displays the input prompt
func (d *Display) PrintPrompt() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.user.Fprint(d.out, "\n❯ ")
}

// PrintMessage displays one conversation message
func (d *Display) PrintMessage(msg chat.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stamp := msg.Timestamp.Format("15:04:05")
	if msg.Sender == chat.SenderUser {
		fmt.Fprintf(d.out, "\n%s %s\n", d.user.Sprint("┌─ You"), d.dim.Sprint("· "+stamp))
		fmt.Fprintf(d.out, "%s %s\n", d.dim.Sprint("│"), msg.Text)
		d.dim.Fprintln(d.out, "└")
		return
	}

	fmt.Fprintf(d.out, "\n%s %s\n", d.bot.Sprint("┌─ Bot"), d.dim.Sprint("· "+stamp))
	body := msg.Text
	if msg.SourceTitle != "" {
		// the citation is printed separately below the rendered answer
		body = strings.TrimSuffix(body, "\n\nSource: "+msg.SourceTitle)
	}
	for _, line := range strings.Split(d.render(body), "\n") {
		fmt.Fprintf(d.out, "%s %s\n", d.dim.Sprint("│"), line)
	}
	if msg.SourceTitle != "" {
		fmt.Fprintf(d.out, "%s %s\n", d.dim.Sprint("│"), d.info.Sprint("Source: "+msg.SourceTitle))
	}
	d.dim.Fprintln(d.out, "└")
}

// render formats markdown when a renderer is configured
func (d *Display) render(text string) string {
	if d.renderer == nil {
		return text
	}
	rendered, err := d.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(rendered, "\n")
}

// PrintHistory displays the whole conversation log
func (d *Display) PrintHistory(messages []chat.Message) {
	if len(messages) == 0 {
		d.PrintInfo("No messages yet.")
		return
	}
	for _, m := range messages {
		d.PrintMessage(m)
	}
}

// PrintPending shows how many questions are still waiting for an answer
func (d *Display) PrintPending(n int) {
	if n <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dim.Fprintf(d.out, "… %d question(s) waiting for an answer\n", n)
}

// PrintLanguages lists the supported language codes
func (d *Display) PrintLanguages(current string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, code := range chat.Languages() {
		marker := "  "
		if code == current {
			marker = d.success.Sprint("* ")
		}
		fmt.Fprintf(d.out, "%s%-5s %s\n", marker, code, chat.LanguageName(code))
	}
}

// OutcomeLine formats one per-file upload result
func OutcomeLine(r api.UploadResult) string {
	if r.Processed {
		return fmt.Sprintf("%s - Processed", r.Filename)
	}
	reason := r.Error
	if reason == "" {
		reason = "unknown"
	}
	return fmt.Sprintf("%s - Failed (%s)", r.Filename, reason)
}

// PrintOutcome displays the per-file results of an upload
func (d *Display) PrintOutcome(results []api.UploadResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(results) == 0 {
		d.dim.Fprintln(d.out, "  (no per-file results reported)")
		return
	}
	for _, r := range results {
		c := d.success
		if !r.Processed {
			c = d.errc
		}
		c.Fprintf(d.out, "  %s\n", OutcomeLine(r))
	}
}

// DocumentLine formats one registry entry in local time
func DocumentLine(doc api.Document) string {
	created := "unknown"
	if !doc.CreatedAt.IsZero() {
		created = doc.CreatedAt.Local().Format("2006-01-02 15:04:05")
	}
	return fmt.Sprintf("%s - %s - %s", doc.Title, doc.Status, created)
}

// PrintDocuments displays the registry in service order
func (d *Display) PrintDocuments(snap registry.Snapshot, status string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if status != "" {
		d.warn.Fprintf(d.out, "⚠ %s\n", status)
	}
	if len(snap.Documents) == 0 {
		d.dim.Fprintln(d.out, "No documents yet.")
		return
	}
	d.accent.Fprintf(d.out, "Documents (%d)\n", len(snap.Documents))
	for _, doc := range snap.Documents {
		c := d.info
		switch doc.Status {
		case api.StatusReady:
			c = d.success
		case api.StatusFailed:
			c = d.errc
		case api.StatusPending, api.StatusProcessing:
			c = d.warn
		}
		c.Fprintf(d.out, "  %s\n", DocumentLine(doc))
	}
	if !snap.FetchedAt.IsZero() {
		d.dim.Fprintf(d.out, "  fetched %s\n", snap.FetchedAt.Format("15:04:05"))
	}
}

// SelectionEntry describes one selected file
type SelectionEntry struct {
	Name  string
	Size  int
	Pages int
	Err   error
}

// PrintSelection displays the files picked for upload
func (d *Display) PrintSelection(entries []SelectionEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(entries) == 0 {
		d.dim.Fprintln(d.out, "No files selected.")
		return
	}
	d.accent.Fprintf(d.out, "Selected (%d)\n", len(entries))
	for _, e := range entries {
		detail := fmt.Sprintf("%s, %d page(s)", formatSize(e.Size), e.Pages)
		if e.Err != nil {
			detail = fmt.Sprintf("%s, %s", formatSize(e.Size), d.warn.Sprint(e.Err.Error()))
		}
		fmt.Fprintf(d.out, "  %s %s\n", e.Name, d.dim.Sprint("("+detail+")"))
	}
}

// PrintHarvest displays what a web harvest downloaded
func (d *Display) PrintHarvest(results []harvest.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(results) == 0 {
		d.dim.Fprintln(d.out, "No PDF links found.")
		return
	}
	for _, r := range results {
		if r.Err != nil {
			d.errc.Fprintf(d.out, "  %s - %v\n", r.URL, r.Err)
			continue
		}
		fmt.Fprintf(d.out, "  %s %s\n", r.Name,
			d.dim.Sprintf("(%d page(s), %s, %s)", r.Pages, formatSize(len(r.Data)), formatDuration(r.Duration)))
	}
}

// PrintStatus displays a controller status line
func (d *Display) PrintStatus(status string) {
	if status == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info.Fprintf(d.out, "» %s\n", status)
}

// PrintList displays a plain list under a heading
func (d *Display) PrintList(heading string, items []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accent.Fprintln(d.out, heading)
	if len(items) == 0 {
		d.dim.Fprintln(d.out, "  (none)")
		return
	}
	for _, item := range items {
		fmt.Fprintf(d.out, "  %s\n", item)
	}
}

// PrintHelp lists the REPL commands
func (d *Display) PrintHelp() {
	d.mu.Lock()
	defer d.mu.Unlock()
	sections := []struct {
		title string
		lines []string
	}{
		{"Chat", []string{
			"<text>              ask a question",
			"/lang [code]        show or change the answer language",
			"/history            show the conversation so far",
			"/clear              clear the screen",
			"/export <path>      save this conversation as JSON",
		}},
		{"Documents", []string{
			"/pick <path|glob>…  select files for upload (replaces selection)",
			"/files [dir]        list candidate documents below a directory",
			"/selection          show the selected files",
			"/upload             upload the selection as one batch",
			"/docs               show the document list",
			"/refresh            reload the document list",
			"/watch <dir>        add new PDFs dropped in a folder",
			"/unwatch            stop watching",
			"/harvest <url>      add every PDF linked from a web page",
		}},
		{"General", []string{
			"/help               this help",
			"/exit, /quit        leave",
		}},
	}
	for _, s := range sections {
		d.accent.Fprintln(d.out, s.title)
		for _, l := range s.lines {
			fmt.Fprintf(d.out, "  %s\n", l)
		}
	}
}

// PrintInfo displays info message
func (d *Display) PrintInfo(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info.Fprintf(d.out, "ℹ %s\n", msg)
}

// PrintWarning displays warning message
func (d *Display) PrintWarning(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.warn.Fprintf(d.out, "⚠ %s\n", msg)
}

// PrintError displays error message
func (d *Display) PrintError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errc.Fprintf(d.out, "✗ Error: %v\n", err)
}

// PrintSuccess displays success message
func (d *Display) PrintSuccess(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.success.Fprintf(d.out, "✓ %s\n", msg)
}

// PrintGoodbye displays goodbye message
func (d *Display) PrintGoodbye() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accent.Fprintln(d.out, "\nGoodbye!")
}

// Helper functions

func formatSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// terminalSize reports the width of out and whether it is a terminal
func terminalSize(out io.Writer) (int, bool) {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 80, false
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return 80, true
	}
	return width, true
}
