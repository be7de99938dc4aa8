package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	docx "github.com/fumiama/go-docx"
	"github.com/microcosm-cc/bluemonday"
	"github.com/opendesk/backend/internal/config"
	"gorm.io/datatypes"
)

type ExportFormat string

const (
	ExportFormatPDF  ExportFormat = "pdf"
	ExportFormatDOCX ExportFormat = "docx"
	ExportFormatMD   ExportFormat = "md"
)

func (f ExportFormat) ContentType() string {
	switch f {
	case ExportFormatPDF:
		return "application/pdf"
	case ExportFormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ExportFormatMD:
		return "text/markdown"
	default:
		return "application/octet-stream"
	}
}

// ExportService converts document content to HTML and HTML onward to
// Markdown, DOCX, or PDF. Markdown and DOCX are produced in-process;
// PDF goes through Gotenberg's LibreOffice route from the DOCX bytes.
type ExportService struct {
	Gotenberg  config.GotenbergConfig
	HTTPClient *http.Client

	sanitizer *bluemonday.Policy
	markdown  *md.Converter
}

func NewExportService(gotenberg config.GotenbergConfig) *ExportService {
	return &ExportService{
		Gotenberg: gotenberg,
		HTTPClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		sanitizer: bluemonday.UGCPolicy(),
		markdown:  md.NewConverter("", true, nil),
	}
}

// SanitizeHTML strips scripts, event handlers, and other dangerous markup
// from client-supplied HTML before it enters the conversion pipeline.
func (e *ExportService) SanitizeHTML(input string) string {
	return e.sanitizer.Sanitize(input)
}

type contentNode struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Attrs *struct {
		Level int `json:"level"`
	} `json:"attrs"`
	Content []contentNode `json:"content"`
}

// ContentToHTML renders a stored content tree to HTML. Only paragraph,
// heading, and text nodes are recognized; anything else yields no output,
// and an unrecognized overall structure yields an empty string.
func (e *ExportService) ContentToHTML(content datatypes.JSON) string {
	if len(content) == 0 {
		return ""
	}

	var root contentNode
	if err := json.Unmarshal(content, &root); err != nil {
		return ""
	}

	parts := make([]string, 0, len(root.Content))
	for _, node := range root.Content {
		switch node.Type {
		case "paragraph":
			parts = append(parts, fmt.Sprintf("<p>%s</p>", html.EscapeString(nodeText(node))))
		case "heading":
			level := 1
			if node.Attrs != nil && node.Attrs.Level >= 1 && node.Attrs.Level <= 6 {
				level = node.Attrs.Level
			}
			parts = append(parts, fmt.Sprintf("<h%d>%s</h%d>", level, html.EscapeString(nodeText(node)), level))
		}
	}
	return strings.Join(parts, "\n")
}

func nodeText(node contentNode) string {
	var b strings.Builder
	for _, child := range node.Content {
		if child.Text != "" {
			b.WriteString(child.Text)
		}
	}
	return b.String()
}

// Convert dispatches to the requested format and returns the bytes together
// with their content type.
func (e *ExportService) Convert(ctx context.Context, format ExportFormat, htmlInput string) ([]byte, error) {
	switch format {
	case ExportFormatMD:
		return e.ToMarkdown(htmlInput)
	case ExportFormatDOCX:
		return e.ToDOCX(htmlInput)
	case ExportFormatPDF:
		return e.ToPDF(ctx, htmlInput)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func (e *ExportService) ToMarkdown(htmlInput string) ([]byte, error) {
	converted, err := e.markdown.ConvertString(htmlInput)
	if err != nil {
		return nil, fmt.Errorf("markdown conversion failed: %w", err)
	}
	return []byte(converted), nil
}

// heading sizes in half-points, indexed by level-1
var headingSizes = [6]string{"48", "40", "36", "32", "28", "26"}

func (e *ExportService) ToDOCX(htmlInput string) ([]byte, error) {
	parsed, err := goquery.NewDocumentFromReader(strings.NewReader(htmlInput))
	if err != nil {
		return nil, fmt.Errorf("docx conversion failed: %w", err)
	}

	w := docx.New().WithDefaultTheme()

	blocks := parsed.Find("body").Children()
	if blocks.Length() == 0 {
		if text := strings.TrimSpace(parsed.Text()); text != "" {
			w.AddParagraph().AddText(text)
		}
	}

	blocks.Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}

		tag := goquery.NodeName(s)
		if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
			level := int(tag[1] - '1')
			w.AddParagraph().AddText(text).Size(headingSizes[level]).Bold()
			return
		}
		w.AddParagraph().AddText(text)
	})

	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("docx conversion failed: %w", err)
	}
	return buf.Bytes(), nil
}

// ToPDF converts via DOCX and hands the result to Gotenberg's LibreOffice
// route. Single attempt, failures surface as conversion errors.
func (e *ExportService) ToPDF(ctx context.Context, htmlInput string) ([]byte, error) {
	docxBytes, err := e.ToDOCX(htmlInput)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("files", "document.docx")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(docxBytes); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(e.Gotenberg.URL, "/") + "/forms/libreoffice/convert"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pdf conversion failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("pdf conversion failed: %s", string(detail))
	}

	return io.ReadAll(resp.Body)
}
