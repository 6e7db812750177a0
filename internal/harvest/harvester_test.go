package harvest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kb-assistant/internal/stub"
)

const admissionsPage = `<!DOCTYPE html>
<html><head><title>Admissions</title></head>
<body>
  <a href="/docs/Fee%20Circular.pdf">Fees</a>
  <a href="timetable.PDF#page=2">Timetable</a>
  <a href="/docs/Fee%20Circular.pdf">Fees again</a>
  <a href="https://cdn.example.org/brochure.pdf?v=3">Brochure</a>
  <a href="/about.html">About</a>
  <a href="mailto:office@example.org">Mail</a>
  <a>no href</a>
</body></html>`

func TestExtractPDFLinks(t *testing.T) {
	base, _ := url.Parse("https://college.example.org/admissions/index.html")

	links, err := ExtractPDFLinks([]byte(admissionsPage), base)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://college.example.org/docs/Fee%20Circular.pdf",
		"https://college.example.org/admissions/timetable.PDF",
		"https://cdn.example.org/brochure.pdf?v=3",
	}, links)
}

func TestExtractPDFLinks_BaseElement(t *testing.T) {
	base, _ := url.Parse("https://college.example.org/a/")
	page := `<html><head><base href="https://files.example.org/notices/"></head>
<body><a href="n1.pdf">n1</a></body></html>`

	links, err := ExtractPDFLinks([]byte(page), base)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://files.example.org/notices/n1.pdf"}, links)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "Fee Circular.pdf", FileName("https://x.org/docs/Fee%20Circular.pdf"))
	assert.Equal(t, "brochure.pdf", FileName("https://x.org/brochure.pdf?v=3"))
	assert.Equal(t, "document.pdf", FileName("https://x.org/"))
}

func TestReadLimitedBody(t *testing.T) {
	data, err := ReadLimitedBody(strings.NewReader("12345"), 5)
	require.NoError(t, err)
	assert.Equal(t, "12345", string(data))

	_, err = ReadLimitedBody(strings.NewReader("123456"), 5)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/admissions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body>
<a href="/files/one.pdf">1</a>
<a href="/files/two.pdf">2</a>
<a href="/files/fake.pdf">fake</a>
<a href="/files/missing.pdf">gone</a>
</body></html>`))
	})
	mux.HandleFunc("/files/one.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(stub.PDF(1))
	})
	mux.HandleFunc("/files/two.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(stub.PDF(2))
	})
	mux.HandleFunc("/files/fake.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>login required</html>"))
	})
	mux.HandleFunc("/brochure.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(stub.PDF(1))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestHarvest(t *testing.T) {
	server := newSite(t)
	h := NewHarvester(Options{MaxWorkers: 2})

	results, err := h.Harvest(context.Background(), server.URL+"/admissions")
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "one.pdf", results[0].Name)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, 1, results[0].Pages)

	assert.Equal(t, "two.pdf", results[1].Name)
	assert.Equal(t, 2, results[1].Pages)

	assert.Error(t, results[2].Err, "non-PDF body is rejected")
	assert.ErrorContains(t, results[3].Err, "HTTP 404")

	files := Files(results)
	require.Len(t, files, 2)
	assert.Equal(t, "one.pdf", files[0].Name)
	assert.Equal(t, "two.pdf", files[1].Name)
}

func TestHarvest_SizeLimit(t *testing.T) {
	server := newSite(t)
	h := NewHarvester(Options{MaxPDFSize: 64})

	results := h.Download(context.Background(), []string{server.URL + "/brochure.pdf"})
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, ErrTooLarge)
}

func TestFindPDFLinks_Errors(t *testing.T) {
	server := newSite(t)
	h := NewHarvester(Options{})

	_, err := h.FindPDFLinks(context.Background(), "ftp://example.org/")
	assert.Error(t, err)

	_, err = h.FindPDFLinks(context.Background(), server.URL+"/files/one.pdf")
	assert.ErrorContains(t, err, "non-HTML")

	_, err = h.FindPDFLinks(context.Background(), server.URL+"/nowhere")
	assert.ErrorContains(t, err, "HTTP 404")
}

func TestDownload_Empty(t *testing.T) {
	h := NewHarvester(Options{})
	assert.Empty(t, h.Download(context.Background(), nil))
}

func TestFiles_SameBaseNameKeepsEveryDocument(t *testing.T) {
	results := []Result{
		{URL: "https://x.org/dept-a/notice.pdf", Name: "notice.pdf", Data: []byte("A")},
		{URL: "https://x.org/dept-b/notice.pdf", Name: "notice.pdf", Data: []byte("B")},
		{URL: "https://x.org/broken.pdf", Name: "broken.pdf", Err: ErrTooLarge},
		{URL: "https://x.org/dept-c/Notice.pdf", Name: "Notice.pdf", Data: []byte("C")},
		{URL: "https://x.org/notice-2.pdf", Name: "notice-2.pdf", Data: []byte("D")},
	}

	files := Files(results)
	require.Len(t, files, 4)
	assert.Equal(t, "notice.pdf", files[0].Name)
	assert.Equal(t, "notice-2.pdf", files[1].Name)
	assert.Equal(t, []byte("B"), files[1].Data)
	assert.Equal(t, "Notice-3.pdf", files[2].Name)
	assert.Equal(t, "notice-2-2.pdf", files[3].Name)
}
